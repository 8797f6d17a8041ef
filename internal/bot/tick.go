package bot

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// every runs fn on each tick of interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context, time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(ctx, now)
		}
	}
}

// tick reaps idle sessions and advances pending source authorizations.
func (b *Bot) tick(ctx context.Context, now time.Time) {
	if n := b.service.Sessions().Tick(now); n > 0 {
		b.metrics.Reaped(n)
		b.logger.Info("Reaped idle sessions", zap.Int("count", n))
	}

	for _, src := range b.service.Sources().Sources() {
		if poller := src.Auth(); poller != nil {
			poller.Tick(ctx)
		}
	}
}
