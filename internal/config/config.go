package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// DevIdentityKey is the identity key used in dev mode when IDENTITY_KEY is
// unset. Tokens signed with it must not be trusted outside development.
const DevIdentityKey = "dev-identity-key"

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/hunt.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	// RedisURL enables the shared graph cache. Empty disables it.
	RedisURL string `env:"REDIS_URL"`

	// IdentityKey verifies the HS256 caller tokens minted by the web
	// frontend and the chat relay. Required unless DevMode is set.
	IdentityKey string `env:"IDENTITY_KEY"`

	// DevMode allows running without IDENTITY_KEY, using a well-known
	// development key instead. Never enable it in production.
	DevMode bool `env:"DEV_MODE"`

	// ChatChannels maps chat channel IDs to event IDs, e.g.
	// "123456:summer-hunt,789:winter-hunt".
	ChatChannels map[string]string `env:"CHAT_CHANNELS" envKeyValSeparator:":"`

	GraphCacheTTL  time.Duration `env:"GRAPH_CACHE_TTL" envDefault:"5m"`
	ActivityReplay int           `env:"ACTIVITY_REPLAY" envDefault:"200"`
	ActivityBuffer int           `env:"ACTIVITY_BUFFER" envDefault:"256"`

	// OTelEndpoint is the OTLP/HTTP collector URL. Empty disables export.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	SeedDemo bool `env:"SEED_DEMO" envDefault:"true"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.ActivityReplay <= 0 {
		return nil, fmt.Errorf("ACTIVITY_REPLAY must be positive, got %d", cfg.ActivityReplay)
	}
	if cfg.ActivityBuffer <= 0 {
		return nil, fmt.Errorf("ACTIVITY_BUFFER must be positive, got %d", cfg.ActivityBuffer)
	}
	if cfg.IdentityKey == "" {
		if !cfg.DevMode {
			return nil, fmt.Errorf("IDENTITY_KEY is required (set DEV_MODE=true to use the development key)")
		}
		cfg.IdentityKey = DevIdentityKey
	}
	return &cfg, nil
}
