package music

import (
	"errors"
	"time"
)

// DurationUnknown marks a track whose length the source did not report.
const DurationUnknown time.Duration = -1

var (
	ErrResolveFailed  = errors.New("failed to resolve track metadata")
	ErrAuthMissing    = errors.New("source requires account linking")
	ErrAuthPending    = errors.New("account linking still pending")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrNoVoiceChannel = errors.New("user is not in a voice channel")
	ErrMissingInput   = errors.New("missing input")
)

type Track struct {
	URI      string        `json:"uri"`
	Title    string        `json:"title"`
	Duration time.Duration `json:"duration"`
	IsLive   bool          `json:"is_live"`
}

// Seekable reports whether the track has a finite, known length.
func (t Track) Seekable() bool {
	return !t.IsLive && t.Duration > 0
}

// QueueEntry is a track bound to the voice channel it should play in.
// ID is assigned by the owning SessionQueue and lets the playback backend
// report which entry ended. Origin is the text channel the request came from.
type QueueEntry struct {
	ID      uint64
	Track   Track
	Channel string
	Origin  string
}

type EndReason int

const (
	EndFinished EndReason = iota
	EndLoadFailed
	EndStopped
	EndReplaced
	EndCleanup
)

func (r EndReason) String() string {
	switch r {
	case EndFinished:
		return "finished"
	case EndLoadFailed:
		return "load_failed"
	case EndStopped:
		return "stopped"
	case EndReplaced:
		return "replaced"
	case EndCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// MayStartNext reports whether the queue should move on after a track ended
// for this reason.
func (r EndReason) MayStartNext() bool {
	return r == EndFinished || r == EndLoadFailed
}

type PlaybackOutcome struct {
	StartedImmediately bool
	WillPlayNext       bool
}

// Player is the per-guild playback backend. Play replaces whatever is
// playing and joins entry.Channel when not already connected there. Stop
// must not block on the end callback.
type Player interface {
	Play(entry QueueEntry)
	Stop()
	Position() time.Duration
	Seek(pos time.Duration) error
}

// Platform is the chat platform as seen by the playback core.
type Platform interface {
	NewPlayer(guildID string, onEnd func(QueueEntry, EndReason, error)) Player
	CloseAudioConnection(guildID string) error
	SendMessage(channelID, content string) error
}
