package music

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"
)

type ResultKind int

const (
	ResultEmpty ResultKind = iota
	ResultTrack
	ResultPlaylist
)

// LoadResult is what a loader found for a query. Selected is -1 unless the
// query pointed at a specific playlist entry.
type LoadResult struct {
	Kind     ResultKind `json:"kind"`
	Tracks   []Track    `json:"tracks"`
	Selected int        `json:"selected"`
	Name     string     `json:"name"`
}

func (r LoadResult) SelectedTrack() (Track, bool) {
	if r.Selected >= 0 && r.Selected < len(r.Tracks) {
		return r.Tracks[r.Selected], true
	}
	if len(r.Tracks) > 0 {
		return r.Tracks[0], true
	}
	return Track{}, false
}

// Loader turns a search target or URL into tracks.
type Loader interface {
	Load(ctx context.Context, src *Source, target string) (LoadResult, error)
}

// IsURL reports whether query is a well-formed absolute URL.
func IsURL(query string) bool {
	u, err := url.Parse(strings.TrimSpace(query))
	return err == nil && u.Scheme != "" && u.Host != ""
}

var authMarkers = []string{
	"sign in to confirm",
	"login required",
	"use --cookies",
	"requires authentication",
}

// YTDLPLoader resolves queries by shelling out to yt-dlp.
type YTDLPLoader struct {
	Binary string
	logger *zap.Logger
}

func NewYTDLPLoader(binary string, logger *zap.Logger) *YTDLPLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YTDLPLoader{
		Binary: binary,
		logger: logger.Named("ytdlp"),
	}
}

// command builds the metadata lookup. Linked playlists are listed flat;
// search results are fully extracted so titles and durations are present.
func (l *YTDLPLoader) command(flat bool) *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig().
		SetExecutable(l.binary())
	if flat {
		cmd.FlatPlaylist()
	}
	return cmd
}

func (l *YTDLPLoader) Load(ctx context.Context, src *Source, target string) (LoadResult, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return LoadResult{}, fmt.Errorf("%w: empty input", ErrMissingInput)
	}

	args, err := authArgs(ctx, src)
	if err != nil {
		return LoadResult{}, err
	}
	args = append(args, "--dump-single-json", "--skip-download", target)

	flat := src == nil || src.SearchPrefix == "" || !strings.HasPrefix(target, src.SearchPrefix)

	start := time.Now()
	res, err := l.command(flat).Run(ctx, args...)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		if needsAuth(stderr) {
			return LoadResult{}, fmt.Errorf("%w: %s", ErrAuthMissing, stderr)
		}
		return LoadResult{}, fmt.Errorf("%w: yt-dlp failed: %v: %s", ErrResolveFailed, err, stderr)
	}

	l.logger.Debug("yt-dlp finished",
		zap.String("target", target),
		zap.Duration("took", time.Since(start)))

	var root ytDLPItem
	if err := json.Unmarshal([]byte(res.Stdout), &root); err != nil {
		return LoadResult{}, fmt.Errorf("%w: invalid json: %v", ErrResolveFailed, err)
	}

	return buildLoadResult(root), nil
}

// StreamURL returns a direct media URL for the track's best audio format.
func (l *YTDLPLoader) StreamURL(ctx context.Context, src *Source, uri string) (string, error) {
	args, err := authArgs(ctx, src)
	if err != nil {
		return "", err
	}
	args = append(args, "--skip-download", uri)

	res, err := ytdlp.New().
		Format("bestaudio/best").
		Print("urls").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		SetExecutable(l.binary()).
		Run(ctx, args...)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		return "", fmt.Errorf("%w: yt-dlp failed: %v: %s", ErrResolveFailed, err, stderr)
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%w: empty stream url", ErrResolveFailed)
}

func (l *YTDLPLoader) binary() string {
	if l.Binary == "" {
		return "yt-dlp"
	}
	return l.Binary
}

func authArgs(ctx context.Context, src *Source) ([]string, error) {
	if src == nil || src.Auth() == nil || !src.Available() {
		return nil, nil
	}
	token, err := src.Auth().AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthMissing, err)
	}
	return []string{"--add-headers", "Authorization:Bearer " + token}, nil
}

func needsAuth(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

type ytDLPItem struct {
	Type       string      `json:"_type"`
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	WebpageURL string      `json:"webpage_url"`
	URL        string      `json:"url"`
	Duration   *float64    `json:"duration"`
	IsLive     bool        `json:"is_live"`
	LiveStatus string      `json:"live_status"`
	Entries    []ytDLPItem `json:"entries"`
}

func (it ytDLPItem) link() string {
	if it.WebpageURL != "" {
		return it.WebpageURL
	}
	return it.URL
}

func (it ytDLPItem) track() (Track, bool) {
	link := it.link()
	if link == "" {
		return Track{}, false
	}

	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = "Unknown Title"
	}

	duration := DurationUnknown
	if it.Duration != nil && *it.Duration > 0 {
		duration = time.Duration(*it.Duration * float64(time.Second))
	}

	return Track{
		URI:      link,
		Title:    title,
		Duration: duration,
		IsLive:   it.IsLive || it.LiveStatus == "is_live",
	}, true
}

func buildLoadResult(root ytDLPItem) LoadResult {
	if root.Type != "playlist" && len(root.Entries) == 0 {
		if t, ok := root.track(); ok {
			return LoadResult{Kind: ResultTrack, Tracks: []Track{t}, Selected: 0}
		}
		return LoadResult{Kind: ResultEmpty, Selected: -1}
	}

	tracks := make([]Track, 0, len(root.Entries))
	for _, entry := range root.Entries {
		if t, ok := entry.track(); ok {
			tracks = append(tracks, t)
		}
	}
	if len(tracks) == 0 {
		return LoadResult{Kind: ResultEmpty, Selected: -1}
	}

	return LoadResult{
		Kind:     ResultPlaylist,
		Tracks:   tracks,
		Selected: -1,
		Name:     strings.TrimSpace(root.Title),
	}
}
