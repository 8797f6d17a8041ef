package music

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const InactivityNotice = "Left due to inactivity"

type SessionObserver interface {
	SessionsActive(n int)
}

// SessionRegistry maps guild IDs to their SessionQueue. Session code never
// takes the registry lock, so the registry may lock a session while holding
// its own.
type SessionRegistry struct {
	platform Platform
	opts     QueueOptions
	logger   *zap.Logger
	observer SessionObserver

	mu       sync.RWMutex
	sessions map[string]*SessionQueue
}

func NewSessionRegistry(platform Platform, opts QueueOptions) *SessionRegistry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SessionRegistry{
		platform: platform,
		opts:     opts,
		logger:   opts.Logger.Named("sessions"),
		sessions: make(map[string]*SessionQueue),
	}
}

func (r *SessionRegistry) WithObserver(o SessionObserver) *SessionRegistry {
	r.observer = o
	return r
}

func (r *SessionRegistry) GetOrCreate(guildID string) *SessionQueue {
	r.mu.RLock()
	q, ok := r.sessions[guildID]
	r.mu.RUnlock()
	if ok {
		return q
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.sessions[guildID]; ok {
		return q
	}

	q = NewSessionQueue(guildID, r.platform, QueueOptions{
		IdleTimeout: r.opts.IdleTimeout,
		Now:         r.opts.Now,
		Logger:      r.logger,
	})
	r.sessions[guildID] = q
	r.logger.Debug("Session created", zap.String("guild_id", guildID))
	r.observeLocked()
	return q
}

func (r *SessionRegistry) Lookup(guildID string) (*SessionQueue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.sessions[guildID]
	return q, ok
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove resets the guild's session and forgets it.
func (r *SessionRegistry) Remove(guildID string) bool {
	r.mu.Lock()
	q, ok := r.sessions[guildID]
	delete(r.sessions, guildID)
	r.observeLocked()
	r.mu.Unlock()

	if ok {
		q.Reset()
	}
	return ok
}

// Leave closes the guild's audio connection and removes its session.
func (r *SessionRegistry) Leave(guildID string) error {
	r.Remove(guildID)
	return r.platform.CloseAudioConnection(guildID)
}

// Expire marks the guild's session for removal on the next Tick.
func (r *SessionRegistry) Expire(guildID string) bool {
	q, ok := r.Lookup(guildID)
	if ok {
		q.Abandon()
	}
	return ok
}

// Tick reaps every session that has been idle past its deadline. Sessions
// without a deadline are left alone, so calling it often is harmless.
func (r *SessionRegistry) Tick(now time.Time) int {
	r.mu.RLock()
	candidates := make([]*SessionQueue, 0, len(r.sessions))
	for _, q := range r.sessions {
		candidates = append(candidates, q)
	}
	r.mu.RUnlock()

	reaped := 0
	for _, q := range candidates {
		if !q.IdleExpired(now) {
			continue
		}

		r.mu.Lock()
		current, ok := r.sessions[q.guildID]
		if !ok || current != q || !q.IdleExpired(now) {
			r.mu.Unlock()
			continue
		}
		delete(r.sessions, q.guildID)
		r.observeLocked()
		r.mu.Unlock()

		reaped++
		r.logger.Info("Leaving idle session", zap.String("guild_id", q.guildID))

		if channel := q.TextChannel(); channel != "" {
			if err := r.platform.SendMessage(channel, InactivityNotice); err != nil {
				r.logger.Warn("Failed to send inactivity notice", zap.String("guild_id", q.guildID), zap.Error(err))
			}
		}
		if err := r.platform.CloseAudioConnection(q.guildID); err != nil {
			r.logger.Warn("Failed to close audio connection", zap.String("guild_id", q.guildID), zap.Error(err))
		}
	}
	return reaped
}

func (r *SessionRegistry) observeLocked() {
	if r.observer != nil {
		r.observer.SessionsActive(len(r.sessions))
	}
}
