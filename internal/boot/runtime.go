// Package boot provides runtime configuration for the bridge process.
package boot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/memohai/bridgebot/internal/config"
)

// EnvOverrides are the environment variables that take precedence over config.toml.
type EnvOverrides struct {
	ConfigPath   string `env:"CONFIG_PATH"`
	DiscordToken string `env:"DISCORD_TOKEN"`
	HTTPAddr     string `env:"HTTP_ADDR"`
	SQLitePath   string `env:"BRIDGE_DB_PATH"`
	AdminToken   string `env:"BRIDGE_ADMIN_TOKEN"`
}

// ParseEnv loads overrides from the process environment.
func ParseEnv() (EnvOverrides, error) {
	var overrides EnvOverrides
	if err := env.Parse(&overrides); err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return overrides, nil
}

// RuntimeConfig is the validated configuration the bot runs with.
type RuntimeConfig struct {
	Config config.Config
}

// ApplyOverrides returns cfg with the non-empty overrides applied.
func ApplyOverrides(cfg config.Config, overrides EnvOverrides) config.Config {
	if value := strings.TrimSpace(overrides.DiscordToken); value != "" {
		cfg.Discord.Token = value
	}
	if value := strings.TrimSpace(overrides.HTTPAddr); value != "" {
		cfg.Server.Addr = value
	}
	if value := strings.TrimSpace(overrides.SQLitePath); value != "" {
		cfg.Storage.SQLitePath = value
	}
	if value := strings.TrimSpace(overrides.AdminToken); value != "" {
		cfg.Server.AdminToken = value
	}
	return cfg
}

// ProvideRuntimeConfig applies env overrides to cfg and validates the result.
func ProvideRuntimeConfig(cfg config.Config, overrides EnvOverrides) (*RuntimeConfig, error) {
	cfg = ApplyOverrides(cfg, overrides)
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return nil, errors.New("discord token is required")
	}
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
			return nil, errors.New("sqlite path is required")
		}
	case config.DriverPostgres, config.DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
	return &RuntimeConfig{Config: cfg}, nil
}
