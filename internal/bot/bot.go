package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/weeve/config"
	"github.com/hxnx/weeve/internal/database"
	commands "github.com/hxnx/weeve/internal/features"
	"github.com/hxnx/weeve/internal/metrics"
	"github.com/hxnx/weeve/internal/music"
	"github.com/hxnx/weeve/internal/redis"
	"github.com/hxnx/weeve/internal/voice"
	"go.uber.org/zap"
)

const youtubeScope = "https://www.googleapis.com/auth/youtube"

type Bot struct {
	config   *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	sessions []*discordgo.Session
	service  *music.Service
	router   *commands.Router

	mu      sync.Mutex
	started bool
}

func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dbCfg := cfg.GetDBConfig(); dbCfg.Enabled {
		err := database.Initialize(ctx, &database.Config{
			Host:     dbCfg.Host,
			Port:     dbCfg.Port,
			User:     dbCfg.User,
			Password: dbCfg.Password,
			DBName:   dbCfg.Name,
			SSLMode:  dbCfg.SSLMode,
		}, logger.Named("database"))
		if err != nil {
			logger.Warn("Database initialization failed, failure journal disabled", zap.Error(err))
		}
	}

	if redisCfg := cfg.GetRedisConfig(); redisCfg.Enabled {
		_, err := redis.Init(ctx, redis.Config{
			Host:     redisCfg.Host,
			Port:     redisCfg.Port,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		}, logger.Named("redis"))
		if err != nil {
			logger.Warn("Redis initialization failed, shared cache disabled", zap.Error(err))
		}
	}

	sessions, err := openShards(cfg, logger)
	if err != nil {
		return nil, err
	}

	sources, err := buildSources(cfg, m, logger)
	if err != nil {
		return nil, err
	}

	ytdlp := music.NewYTDLPLoader(cfg.YTDLPBinary, logger)
	loader := music.NewCachingLoader(ytdlp, cfg.SearchCacheSize, cfg.SearchCacheTTL, redis.Client(), logger).
		WithObserver(m)

	plat := newPlatform(
		sessions,
		voice.NewStreamResolver(ytdlp, sources),
		voice.FFmpeg{Binary: cfg.FFmpegBinary, Logger: logger.Named("ffmpeg")},
		logger,
	)

	registry := music.NewSessionRegistry(plat, music.QueueOptions{
		IdleTimeout: cfg.IdleTimeout,
		Logger:      logger,
	}).WithObserver(m)

	service := music.NewService(sources, registry, loader, music.ServiceOptions{
		BotName:  cfg.BotName,
		Failures: database.NewFailureRepository(database.GetDB()),
		Observer: m,
		Logger:   logger,
	})

	return &Bot{
		config:   cfg,
		logger:   logger.Named("bot"),
		metrics:  m,
		sessions: sessions,
		service:  service,
		router:   commands.NewRouter(service, cfg.BotName, m, logger),
	}, nil
}

func openShards(cfg *config.Config, logger *zap.Logger) ([]*discordgo.Session, error) {
	shardCount := cfg.ShardCount
	if shardCount < 1 {
		s, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return nil, err
		}

		if gw, err := s.GatewayBot(); err == nil && gw.Shards > 0 {
			shardCount = gw.Shards
		} else {
			logger.Warn("Failed to auto-detect shard count, defaulting to 1", zap.Error(err))
			shardCount = 1
		}
	}

	sessions := make([]*discordgo.Session, 0, shardCount)
	for shard := 0; shard < shardCount; shard++ {
		s, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return nil, err
		}

		s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

		if shardCount > 1 {
			s.Identify.Shard = &[2]int{shard, shardCount}
			s.ShardID = shard
			s.ShardCount = shardCount
		}

		sessions = append(sessions, s)
	}
	return sessions, nil
}

// buildSources registers SoundCloud and Bandcamp, plus YouTube behind device
// authorization when OAuth credentials are configured.
func buildSources(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*music.SourceRegistry, error) {
	list := []*music.Source{
		music.NewSource("soundcloud", "SoundCloud", "scsearch5:", "soundcloud.com"),
		music.NewSource("bandcamp", "Bandcamp", "bcsearch:", "bandcamp.com"),
	}

	if cfg.YouTubeEnabled() {
		authorizer := music.NewOAuthDeviceAuthorizer(
			cfg.YouTubeClientID,
			cfg.YouTubeClientSecret,
			music.GoogleDeviceEndpoint,
			youtubeScope,
		)
		youtube := music.NewSource("youtube", "YouTube", "ytsearch5:", "youtube.com", "youtu.be").
			WithAuth(music.NewAuthPoller("youtube", authorizer, logger).WithObserver(m))
		list = append(list, youtube)
	}

	registry, err := music.NewSourceRegistry(cfg.DefaultSource, list...)
	if err != nil {
		return nil, fmt.Errorf("cannot build sources: %w", err)
	}
	return registry, nil
}

func (b *Bot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started || len(b.sessions) == 0 {
		return nil
	}

	for _, s := range b.sessions {
		b.registerHandlers(s)
		b.router.AddHandlers(s)
	}

	list := commands.CommandList(b.service.Sources().Sources())
	if _, err := commands.RegisterCommands(b.sessions[0], b.config.ApplicationID, b.config.GuildID, list, b.logger); err != nil {
		b.logger.Warn("Failed to register slash commands", zap.Error(err))
	}

	for _, s := range b.sessions {
		if err := s.Open(); err != nil {
			return fmt.Errorf("cannot open shard %d: %w", s.ShardID, err)
		}
	}

	b.started = true
	b.logger.Info("Bot session opened", zap.Int("shards", len(b.sessions)))
	return nil
}

func (b *Bot) registerHandlers(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("Bot ready",
			zap.String("user", r.User.Username),
			zap.Int("shard", s.ShardID),
			zap.Int("guilds", len(r.Guilds)))
		b.updatePresence()
	})
}

// Run starts the bot and drives the idle sweep, authorization polling and
// presence until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		every(ctx, b.config.TickInterval, b.tick)
	}()
	go func() {
		defer wg.Done()
		every(ctx, presenceUpdateInterval, func(context.Context, time.Time) { b.updatePresence() })
	}()

	<-ctx.Done()
	wg.Wait()
	return b.Stop()
}

func (b *Bot) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}
	b.started = false

	for _, s := range b.sessions {
		if err := s.Close(); err != nil {
			b.logger.Warn("Failed to close shard", zap.Int("shard", s.ShardID), zap.Error(err))
		}
	}

	if err := database.Close(); err != nil {
		b.logger.Warn("Failed to close database", zap.Error(err))
	}

	if err := redis.Close(); err != nil {
		b.logger.Warn("Failed to close redis", zap.Error(err))
	}

	b.logger.Info("Bot session closed", zap.Int("shards", len(b.sessions)))
	return nil
}
