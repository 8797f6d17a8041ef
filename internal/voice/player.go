package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hxnx/weeve/internal/music"
	"go.uber.org/zap"
)

const (
	frameDuration    = 20 * time.Millisecond
	frameSendTimeout = time.Second
)

var ErrVoiceNotConnected = errors.New("voice connection not established")

// Conn is a joined voice channel that accepts Opus frames.
type Conn interface {
	Frames() chan<- []byte
	Speaking(speaking bool)
}

// Dialer joins, or moves to, a voice channel in a guild.
type Dialer interface {
	Dial(ctx context.Context, guildID, channelID string) (Conn, error)
}

// StreamResolver turns a track URI into a URL the transcoder can read.
type StreamResolver interface {
	StreamURL(ctx context.Context, uri string) (string, error)
}

type PlayerConfig struct {
	Dialer     Dialer
	Streams    StreamResolver
	Transcoder Transcoder
	Logger     *zap.Logger
}

// Player streams one guild's tracks into its voice channel. Play, Stop and
// Seek return immediately; the stream runs on its own goroutine and reports
// how it ended through onEnd.
type Player struct {
	guildID string
	cfg     PlayerConfig
	onEnd   func(music.QueueEntry, music.EndReason, error)
	logger  *zap.Logger

	mu  sync.Mutex
	cur *playback
}

type playback struct {
	entry  music.QueueEntry
	ctx    context.Context
	cancel context.CancelFunc
	seek   chan time.Duration

	reason atomic.Int32
	offset atomic.Int64
	frames atomic.Int64

	imu       sync.Mutex
	interrupt context.CancelFunc
}

func (pb *playback) setInterrupt(cancel context.CancelFunc) {
	pb.imu.Lock()
	defer pb.imu.Unlock()
	pb.interrupt = cancel
}

// requestSeek replaces any pending seek and interrupts the running
// transcoder so the stream restarts at pos.
func (pb *playback) requestSeek(pos time.Duration) {
	pb.imu.Lock()
	defer pb.imu.Unlock()

	select {
	case <-pb.seek:
	default:
	}
	pb.seek <- pos
	pb.offset.Store(int64(pos))
	pb.frames.Store(0)

	if pb.interrupt != nil {
		pb.interrupt()
	}
}

func (pb *playback) pendingSeek() (time.Duration, bool) {
	pb.imu.Lock()
	defer pb.imu.Unlock()

	select {
	case pos := <-pb.seek:
		return pos, true
	default:
		return 0, false
	}
}

func (pb *playback) position() time.Duration {
	return time.Duration(pb.offset.Load()) + time.Duration(pb.frames.Load())*frameDuration
}

func (pb *playback) end(reason music.EndReason) {
	pb.reason.CompareAndSwap(int32(music.EndFinished), int32(reason))
	pb.cancel()
}

func NewPlayer(guildID string, cfg PlayerConfig, onEnd func(music.QueueEntry, music.EndReason, error)) *Player {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Transcoder == nil {
		cfg.Transcoder = FFmpeg{Logger: cfg.Logger}
	}
	return &Player{
		guildID: guildID,
		cfg:     cfg,
		onEnd:   onEnd,
		logger:  cfg.Logger.Named("player").With(zap.String("guild_id", guildID)),
	}
}

func (p *Player) Play(entry music.QueueEntry) {
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{
		entry:  entry,
		ctx:    ctx,
		cancel: cancel,
		seek:   make(chan time.Duration, 1),
	}
	pb.reason.Store(int32(music.EndFinished))

	p.mu.Lock()
	if p.cur != nil {
		p.cur.end(music.EndReplaced)
	}
	p.cur = pb
	p.mu.Unlock()

	go p.run(pb)
}

func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		p.cur.end(music.EndStopped)
		p.cur = nil
	}
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return 0
	}
	return p.cur.position()
}

// Seek restarts the current stream at pos. Only the latest request is kept
// when several arrive before the stream reacts.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return music.ErrNothingPlaying
	}
	p.cur.requestSeek(pos)
	return nil
}

func (p *Player) run(pb *playback) {
	reason, err := p.stream(pb)
	if pb.ctx.Err() != nil {
		reason, err = music.EndReason(pb.reason.Load()), nil
	}
	pb.cancel()

	p.mu.Lock()
	if p.cur == pb {
		p.cur = nil
	}
	p.mu.Unlock()

	p.logger.Debug("Playback ended",
		zap.String("uri", pb.entry.Track.URI),
		zap.Stringer("reason", reason),
		zap.Duration("position", pb.position()),
		zap.Error(err))

	if p.onEnd != nil {
		p.onEnd(pb.entry, reason, err)
	}
}

func (p *Player) stream(pb *playback) (music.EndReason, error) {
	ctx := pb.ctx

	conn, err := p.cfg.Dialer.Dial(ctx, p.guildID, pb.entry.Channel)
	if err != nil {
		return music.EndLoadFailed, fmt.Errorf("join voice channel: %w", err)
	}
	if conn == nil {
		return music.EndLoadFailed, ErrVoiceNotConnected
	}

	url, err := p.cfg.Streams.StreamURL(ctx, pb.entry.Track.URI)
	if err != nil {
		return music.EndLoadFailed, err
	}

	conn.Speaking(true)
	defer conn.Speaking(false)

	for ctx.Err() == nil {
		sctx, scancel := context.WithCancel(ctx)
		pb.setInterrupt(scancel)

		rc, err := p.cfg.Transcoder.Start(sctx, url, time.Duration(pb.offset.Load()))
		if err != nil {
			scancel()
			if pos, ok := pb.pendingSeek(); ok && ctx.Err() == nil {
				pb.offset.Store(int64(pos))
				continue
			}
			return music.EndLoadFailed, err
		}

		seekTo, seeked, err := p.pump(sctx, pb, rc, conn)
		_ = rc.Close()
		scancel()

		switch {
		case seeked:
			pb.offset.Store(int64(seekTo))
			pb.frames.Store(0)
		case err != nil:
			return music.EndLoadFailed, err
		default:
			return music.EndFinished, nil
		}
	}
	return music.EndFinished, nil
}

// pump copies packets to the connection until the stream ends, the playback
// is cancelled or a seek interrupts it.
func (p *Player) pump(ctx context.Context, pb *playback, rc io.ReadCloser, conn Conn) (time.Duration, bool, error) {
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer stop()

	reader := newOggReader(rc)
	frames := conn.Frames()
	timer := time.NewTimer(frameSendTimeout)
	defer timer.Stop()

	for {
		if pos, ok := pb.pendingSeek(); ok {
			return pos, true, nil
		}

		packet, err := reader.NextPacket()
		if err != nil {
			if pos, ok := pb.pendingSeek(); ok {
				return pos, true, nil
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return 0, false, nil
			}
			return 0, false, fmt.Errorf("read audio stream: %w", err)
		}

		timer.Reset(frameSendTimeout)
		select {
		case frames <- packet:
			pb.frames.Add(1)
		case <-ctx.Done():
			if pos, ok := pb.pendingSeek(); ok {
				return pos, true, nil
			}
			return 0, false, nil
		case <-timer.C:
			p.logger.Warn("Timed out sending opus frame", zap.Int64("frame", pb.frames.Load()))
		}
	}
}
