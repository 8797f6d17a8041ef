package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SourceNames lists the sources DEFAULT_SOURCE may name.
var SourceNames = []string{"soundcloud", "bandcamp", "youtube"}

type Config struct {
	DiscordToken  string
	ApplicationID string

	GuildID string

	ShardCount int

	BotName string

	LogLevel      string
	IdleTimeout   time.Duration
	TickInterval  time.Duration
	DefaultSource string

	YouTubeClientID     string
	YouTubeClientSecret string

	YTDLPBinary  string
	FFmpegBinary string

	SearchCacheTTL  time.Duration
	SearchCacheSize int

	MetricsAddr string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:  os.Getenv("DISCORD_TOKEN"),
		ApplicationID: os.Getenv("DISCORD_APPLICATION_ID"),

		GuildID: os.Getenv("DISCORD_GUILD_ID"),

		ShardCount: getEnvAsIntWithDefault("SHARD_COUNT", 0),

		BotName: getEnvWithDefault("BOT_NAME", "Weeve"),

		LogLevel:      getEnvWithDefault("LOG_LEVEL", "info"),
		IdleTimeout:   getEnvAsSecondsWithDefault("IDLE_TIMEOUT", time.Hour),
		TickInterval:  getEnvAsSecondsWithDefault("TICK_INTERVAL", 30*time.Second),
		DefaultSource: strings.ToLower(getEnvWithDefault("DEFAULT_SOURCE", "soundcloud")),

		YouTubeClientID:     os.Getenv("YOUTUBE_OAUTH_CLIENT_ID"),
		YouTubeClientSecret: os.Getenv("YOUTUBE_OAUTH_CLIENT_SECRET"),

		YTDLPBinary:  getEnvWithDefault("YTDLP_BINARY", "yt-dlp"),
		FFmpegBinary: getEnvWithDefault("FFMPEG_BINARY", "ffmpeg"),

		SearchCacheTTL:  getEnvAsSecondsWithDefault("SEARCH_CACHE_TTL", 5*time.Minute),
		SearchCacheSize: getEnvAsIntWithDefault("SEARCH_CACHE_SIZE", 512),

		MetricsAddr: getEnvWithDefault("METRICS_ADDR", ":9090"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnvAsIntWithDefault("DB_PORT", 5432),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnvAsIntWithDefault("REDIS_PORT", 6379),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsIntWithDefault("REDIS_DB", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}

	if c.ApplicationID == "" {
		return errors.New("DISCORD_APPLICATION_ID is required")
	}

	if c.IdleTimeout <= 0 {
		return errors.New("IDLE_TIMEOUT must be positive")
	}

	if c.TickInterval <= 0 {
		return errors.New("TICK_INTERVAL must be positive")
	}

	if !knownSource(c.DefaultSource) {
		return fmt.Errorf("DEFAULT_SOURCE must be one of %s", strings.Join(SourceNames, ", "))
	}

	if c.DefaultSource == "youtube" && !c.YouTubeEnabled() {
		return errors.New("DEFAULT_SOURCE youtube requires YOUTUBE_OAUTH_CLIENT_ID and YOUTUBE_OAUTH_CLIENT_SECRET")
	}

	if c.SearchCacheSize < 1 {
		return errors.New("SEARCH_CACHE_SIZE must be at least 1")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.GuildID != ""
}

// YouTubeEnabled reports whether the gated YouTube source can be offered.
func (c *Config) YouTubeEnabled() bool {
	return c.YouTubeClientID != "" && c.YouTubeClientSecret != ""
}

func knownSource(name string) bool {
	for _, s := range SourceNames {
		if s == name {
			return true
		}
	}
	return false
}

func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsSecondsWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getEnvWithDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	Enabled  bool
}

func (c *Config) GetDBConfig() *DBConfig {
	return &DBConfig{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
		Enabled:  c.DBHost != "",
	}
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

func (c *Config) GetRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Enabled:  c.RedisHost != "",
	}
}
