package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/hxnx/weeve/internal/music"
)

const failureRepoTimeout = 2 * time.Second

// FailureRepository journals failed resolutions. A repository without a
// database drops every record.
type FailureRepository struct {
	db *sql.DB
}

func NewFailureRepository(db *sql.DB) *FailureRepository {
	return &FailureRepository{db: db}
}

func (r *FailureRepository) RecordFailure(ctx context.Context, f music.Failure) error {
	if r == nil || r.db == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, failureRepoTimeout)
	defer cancel()

	const query = `
		INSERT INTO resolution_failures (guild_id, source, query, reason, auth_missing, rotated_to)
		VALUES ($1, $2, $3, $4, $5, $6);
	`

	_, err := r.db.ExecContext(ctx, query,
		f.GuildID, f.Source, f.Query, f.Reason, f.AuthMissing, nullString(f.RotatedTo))
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
