package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	client *redislib.Client
	once   sync.Once
)

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (cfg Config) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Init connects the shared result cache, retrying the first ping with
// backoff. It returns an error when Redis never answered.
func Init(ctx context.Context, cfg Config, logger *zap.Logger) (*redislib.Client, error) {
	var initErr error
	if logger == nil {
		logger = zap.NewNop()
	}

	once.Do(func() {
		client = redislib.NewClient(&redislib.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		attempts := 5
		backoff := 200 * time.Millisecond

		for attempt := 1; attempt <= attempts; attempt++ {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := client.Ping(pingCtx).Err()
			cancel()

			if err == nil {
				initErr = nil
				logger.Info("Redis connection established", zap.String("addr", cfg.Addr()))
				return
			}

			initErr = err
			logger.Warn("Redis ping failed",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			if attempt < attempts {
				select {
				case <-ctx.Done():
					initErr = ctx.Err()
					_ = client.Close()
					client = nil
					return
				case <-time.After(backoff):
				}
				backoff *= 2
			}
		}

		_ = client.Close()
		client = nil
	})

	if client == nil && initErr == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	return client, initErr
}

func Client() *redislib.Client {
	return client
}

// Ping reports whether the shared cache is reachable. A disabled cache is
// always healthy.
func Ping(ctx context.Context) error {
	if client == nil {
		return nil
	}
	return client.Ping(ctx).Err()
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
