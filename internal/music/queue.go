package music

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultIdleTimeout = time.Hour
	queueListingLimit  = 8
)

// SessionQueue is the playback state of one guild. Every method is safe for
// concurrent use and serialized on the queue's own lock.
type SessionQueue struct {
	guildID     string
	platform    Platform
	player      Player
	selections  *SelectionTable
	idleTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu           sync.Mutex
	current      *QueueEntry
	pending      []QueueEntry
	loop         bool
	loops        int
	idleDeadline time.Time
	textChannel  string
	epoch        uint64
	nextID       uint64
}

type QueueOptions struct {
	IdleTimeout time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

func NewSessionQueue(guildID string, platform Platform, opts QueueOptions) *SessionQueue {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	q := &SessionQueue{
		guildID:     guildID,
		platform:    platform,
		selections:  NewSelectionTable(),
		idleTimeout: opts.IdleTimeout,
		now:         opts.Now,
		logger:      opts.Logger.With(zap.String("guild_id", guildID)),
	}
	q.player = platform.NewPlayer(guildID, q.OnTrackEnd)
	return q
}

func (q *SessionQueue) GuildID() string {
	return q.guildID
}

func (q *SessionQueue) Selections() *SelectionTable {
	return q.selections
}

// Epoch changes every time the queue is reset. Work started under one epoch
// must be dropped if the epoch has moved on when it completes.
func (q *SessionQueue) Epoch() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.epoch
}

func (q *SessionQueue) TextChannel() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.textChannel
}

func (q *SessionQueue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// Enqueue starts entry right away when nothing is playing, otherwise puts it
// at the front or back of the pending queue.
func (q *SessionQueue) Enqueue(entry QueueEntry, playNext bool) PlaybackOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueLocked(entry, playNext)
}

// EnqueueAll queues entries as one block that keeps its order, including
// when inserted at the front.
func (q *SessionQueue) EnqueueAll(entries []QueueEntry, playNext bool) PlaybackOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueAllLocked(entries, playNext)
}

// EnqueueAt is EnqueueAll that does nothing unless the queue is still at
// epoch.
func (q *SessionQueue) EnqueueAt(epoch uint64, entries []QueueEntry, playNext bool) (PlaybackOutcome, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.epoch != epoch {
		return PlaybackOutcome{}, false
	}
	return q.enqueueAllLocked(entries, playNext), true
}

func (q *SessionQueue) enqueueAllLocked(entries []QueueEntry, playNext bool) PlaybackOutcome {
	if len(entries) == 0 {
		return PlaybackOutcome{}
	}

	outcome := q.enqueueLocked(entries[0], playNext)
	if len(entries) == 1 {
		return outcome
	}

	rest := make([]QueueEntry, 0, len(entries)-1)
	for _, e := range entries[1:] {
		rest = append(rest, q.stamp(e))
	}

	if playNext && !outcome.StartedImmediately {
		// entries[0] is already at the front; the rest follow it.
		head := q.pending[0]
		q.pending = append(append([]QueueEntry{head}, rest...), q.pending[1:]...)
	} else {
		q.pending = append(q.pending, rest...)
	}
	return outcome
}

func (q *SessionQueue) enqueueLocked(entry QueueEntry, playNext bool) PlaybackOutcome {
	entry = q.stamp(entry)
	q.idleDeadline = time.Time{}
	if entry.Origin != "" {
		q.textChannel = entry.Origin
	}

	if q.current == nil {
		q.start(entry)
		return PlaybackOutcome{StartedImmediately: true}
	}

	if playNext {
		q.pending = append([]QueueEntry{entry}, q.pending...)
	} else {
		q.pending = append(q.pending, entry)
	}
	return PlaybackOutcome{WillPlayNext: playNext}
}

func (q *SessionQueue) stamp(entry QueueEntry) QueueEntry {
	q.nextID++
	entry.ID = q.nextID
	return entry
}

func (q *SessionQueue) start(entry QueueEntry) {
	q.current = &entry
	q.idleDeadline = time.Time{}
	q.player.Play(entry)
}

// OnTrackEnd is called by the playback backend. Ends for entries that are no
// longer current are ignored.
func (q *SessionQueue) OnTrackEnd(entry QueueEntry, reason EndReason, cause error) {
	var notice, channel string

	q.mu.Lock()
	if q.current == nil || q.current.ID != entry.ID {
		q.mu.Unlock()
		return
	}

	if !reason.MayStartNext() {
		q.mu.Unlock()
		return
	}

	switch {
	case reason == EndLoadFailed:
		q.logger.Warn("Track failed to load",
			zap.String("uri", entry.Track.URI),
			zap.Error(cause))
		notice = "Error loading " + formatTrack(entry.Track, trackFormat{bold: true, link: true})
		if cause != nil {
			notice += ": `" + strings.ReplaceAll(cause.Error(), "`", "'") + "`"
		}
		channel = q.textChannel
		q.advanceLocked()
	case q.loop:
		q.loops++
		q.start(q.stamp(*q.current))
	default:
		q.advanceLocked()
	}
	q.mu.Unlock()

	if notice != "" && channel != "" {
		if err := q.platform.SendMessage(channel, Truncate(notice, MaxMessageLength)); err != nil {
			q.logger.Warn("Failed to send track error notice", zap.Error(err))
		}
	}
}

// Advance moves to the next pending entry, or goes idle when there is none.
// It reports whether something was playing before the call.
func (q *SessionQueue) Advance() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.advanceLocked()
}

func (q *SessionQueue) advanceLocked() bool {
	wasPlaying := q.current != nil

	if len(q.pending) > 0 {
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.start(next)
		return wasPlaying
	}

	q.current = nil
	if wasPlaying {
		q.player.Stop()
		q.idleDeadline = q.now().Add(q.idleTimeout)
	}
	return wasPlaying
}

func (q *SessionQueue) SkipTracks(n int) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.skipLocked(n)
}

func (q *SessionQueue) skipLocked(n int) string {
	if n < 1 {
		n = 1
	}

	skipped := 0
	for skipped < n-1 && len(q.pending) > 0 {
		q.pending = q.pending[1:]
		skipped++
	}
	exhausted := skipped < n-1 || len(q.pending) == 0

	suffix := ""
	if q.loop {
		suffix = " and stopped loop"
	}
	q.loop = false
	q.loops = 0

	var playing Track
	if q.current != nil {
		playing = q.current.Track
	}

	if q.advanceLocked() {
		skipped++
	}

	switch {
	case skipped == 0:
		return "Nothing is playing"
	case n > 1 && exhausted:
		return "Skipped all tracks" + suffix
	case skipped == 1:
		return "Skipped " + formatTrack(playing, trackFormat{bold: true}) + suffix
	default:
		return fmt.Sprintf("Skipped **%d** tracks%s", skipped, suffix)
	}
}

// Forward moves the playing track ahead by delta. Reaching the end is the
// same as skipping the track.
func (q *SessionQueue) Forward(delta time.Duration) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return "Nothing is playing"
	}

	track := q.current.Track
	if !track.Seekable() {
		return "Can't fast-forward streams"
	}

	pos := q.player.Position() + delta
	if pos >= track.Duration {
		return q.skipLocked(1)
	}

	if err := q.player.Seek(pos); err != nil {
		q.logger.Warn("Seek failed", zap.Duration("position", pos), zap.Error(err))
		return "Couldn't fast-forward the playing track"
	}

	return fmt.Sprintf("Skipped to **%s**/%s of playing track", FormatDuration(pos), FormatDuration(track.Duration))
}

func (q *SessionQueue) Loop(enable bool) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loop == enable {
		if enable {
			return "Looping is already on"
		}
		return "Looping is already off"
	}

	q.loop = enable
	if !enable {
		q.loops = 0
		return "Looping turned off"
	}
	return "Looping turned on. Skipping the track will stop the loop."
}

// Reset drops everything queued, stops playback and starts the idle clock.
// Work tagged with the previous epoch becomes stale.
func (q *SessionQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked()
}

func (q *SessionQueue) resetLocked() {
	q.epoch++
	q.selections.Clear()
	q.pending = nil
	q.loop = false
	q.loops = 0
	if q.current != nil {
		q.current = nil
		q.player.Stop()
	}
	q.idleDeadline = q.now().Add(q.idleTimeout)
}

// Abandon resets the queue and makes it eligible for the next idle sweep.
func (q *SessionQueue) Abandon() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked()
	q.idleDeadline = q.now()
}

// IdleExpired reports whether nothing is playing and the idle deadline has
// passed at now.
func (q *SessionQueue) IdleExpired(now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current == nil && !q.idleDeadline.IsZero() && now.After(q.idleDeadline)
}

func (q *SessionQueue) RenderQueueListing() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return "The queue is empty"
	}

	var b strings.Builder
	pos := q.player.Position()
	b.WriteString("♪ " + formatTrack(q.current.Track, trackFormat{bold: true, duration: true, link: true, position: &pos}))

	if len(q.pending) == 0 {
		b.WriteString(". No tracks queued")
		return Truncate(b.String(), MaxMessageLength)
	}

	listing := trackFormat{duration: true, link: true}
	b.WriteString("\n**On deck**: " + formatTrack(q.pending[0].Track, listing))

	for i := 1; i < len(q.pending); i++ {
		number := i + 2
		fmt.Fprintf(&b, "\n**#%d**: %s", number, formatTrack(q.pending[i].Track, listing))

		if number > queueListingLimit && len(q.pending) > number {
			fmt.Fprintf(&b, "\n\t*... %d more*", len(q.pending)-number+1)
			break
		}
	}

	return Truncate(b.String(), MaxMessageLength)
}

// QueueSnapshot is a copy of the queue state.
type QueueSnapshot struct {
	Current      *QueueEntry
	Pending      []QueueEntry
	Loop         bool
	Loops        int
	IdleDeadline time.Time
	Epoch        uint64
}

func (q *SessionQueue) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := QueueSnapshot{
		Pending:      append([]QueueEntry(nil), q.pending...),
		Loop:         q.loop,
		Loops:        q.loops,
		IdleDeadline: q.idleDeadline,
		Epoch:        q.epoch,
	}
	if q.current != nil {
		cur := *q.current
		snap.Current = &cur
	}
	return snap
}
