package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var (
	db   *sql.DB
	once sync.Once
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (cfg *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.DBName, cfg.SSLMode,
	)

	if cfg.Password != "" {
		connStr += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return connStr
}

func Initialize(ctx context.Context, cfg *Config, logger *zap.Logger) error {
	var initError error
	if logger == nil {
		logger = zap.NewNop()
	}

	once.Do(func() {
		var err error
		db, err = sql.Open("postgres", cfg.ConnectionString())
		if err != nil {
			initError = fmt.Errorf("failed to open database: %w", err)
			return
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			initError = fmt.Errorf("failed to ping database: %w", err)
			discard()
			return
		}

		if err := runMigrations(pingCtx); err != nil {
			initError = fmt.Errorf("failed to run migrations: %w", err)
			discard()
			return
		}

		logger.Info("Database connection established",
			zap.String("host", cfg.Host),
			zap.String("database", cfg.DBName))
	})

	return initError
}

var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS resolution_failures (
		id BIGSERIAL PRIMARY KEY,
		guild_id TEXT NOT NULL,
		source TEXT NOT NULL,
		query TEXT NOT NULL,
		reason TEXT NOT NULL,
		auth_missing BOOLEAN NOT NULL DEFAULT FALSE,
		rotated_to TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`,
	`
	CREATE INDEX IF NOT EXISTS resolution_failures_source_created_idx
		ON resolution_failures (source, created_at DESC);
	`,
}

func runMigrations(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("failed to execute migration: %w\nQuery: %s", err, m)
		}
	}
	return nil
}

// discard drops a connection that failed to come up, which disables the
// journal.
func discard() {
	_ = db.Close()
	db = nil
}

func GetDB() *sql.DB {
	return db
}

// Ping reports whether the journal is reachable. A disabled journal is
// always healthy.
func Ping(ctx context.Context) error {
	if db == nil {
		return nil
	}
	return db.PingContext(ctx)
}

func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}
