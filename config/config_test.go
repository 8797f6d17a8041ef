package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_APPLICATION_ID", "app")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.IdleTimeout != time.Hour {
		t.Errorf("IdleTimeout = %v, expected 1h", cfg.IdleTimeout)
	}
	if cfg.TickInterval != 30*time.Second {
		t.Errorf("TickInterval = %v, expected 30s", cfg.TickInterval)
	}
	if cfg.DefaultSource != "soundcloud" {
		t.Errorf("DefaultSource = %q", cfg.DefaultSource)
	}
	if cfg.SearchCacheTTL != 5*time.Minute || cfg.SearchCacheSize != 512 {
		t.Errorf("cache = %v/%d", cfg.SearchCacheTTL, cfg.SearchCacheSize)
	}
	if cfg.BotName != "Weeve" {
		t.Errorf("BotName = %q", cfg.BotName)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	if cfg.YouTubeEnabled() || cfg.GetDBConfig().Enabled || cfg.GetRedisConfig().Enabled {
		t.Error("optional integrations should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("IDLE_TIMEOUT", "120")
	t.Setenv("DEFAULT_SOURCE", "Bandcamp")
	t.Setenv("METRICS_ADDR", "")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("DB_HOST", "db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.IdleTimeout != 2*time.Minute {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if cfg.DefaultSource != "bandcamp" {
		t.Errorf("DefaultSource = %q", cfg.DefaultSource)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("an empty METRICS_ADDR should disable metrics, got %q", cfg.MetricsAddr)
	}
	if redis := cfg.GetRedisConfig(); !redis.Enabled || redis.Port != 6379 {
		t.Errorf("redis = %+v", redis)
	}
	if db := cfg.GetDBConfig(); !db.Enabled || db.Port != 5432 {
		t.Errorf("db = %+v", db)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DiscordToken:    "token",
			ApplicationID:   "app",
			IdleTimeout:     time.Hour,
			TickInterval:    time.Second,
			DefaultSource:   "soundcloud",
			SearchCacheSize: 1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.DiscordToken = "" }, "DISCORD_TOKEN"},
		{"missing app", func(c *Config) { c.ApplicationID = "" }, "DISCORD_APPLICATION_ID"},
		{"zero idle", func(c *Config) { c.IdleTimeout = 0 }, "IDLE_TIMEOUT"},
		{"negative tick", func(c *Config) { c.TickInterval = -time.Second }, "TICK_INTERVAL"},
		{"unknown source", func(c *Config) { c.DefaultSource = "napster" }, "DEFAULT_SOURCE"},
		{"youtube without credentials", func(c *Config) { c.DefaultSource = "youtube" }, "YOUTUBE_OAUTH_CLIENT_ID"},
		{"youtube with credentials", func(c *Config) {
			c.DefaultSource = "youtube"
			c.YouTubeClientID = "id"
			c.YouTubeClientSecret = "secret"
		}, ""},
		{"empty cache", func(c *Config) { c.SearchCacheSize = 0 }, "SEARCH_CACHE_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, expected mention of %s", err, tt.wantErr)
			}
		})
	}
}
