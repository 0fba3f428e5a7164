// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath    = "config.toml"
	DefaultCommandPrefix = "!"
	DefaultWebhookName   = "Bridge"
	DefaultStorageDriver = "sqlite"
	DefaultSQLitePath    = "data/bridge.db"
	DefaultAuditSchedule = "@every 30m"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "bridgebot"
	DefaultPGSSLMode     = "disable"
)

// Storage drivers accepted in [storage].driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Discord  DiscordConfig  `toml:"discord"`
	Relay    RelayConfig    `toml:"relay"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Server   ServerConfig   `toml:"server"`
	Audit    AuditConfig    `toml:"audit"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DiscordConfig holds the bot token, the chat command prefix, the name given to
// provisioned webhooks and the owner user ids that are always authorized.
type DiscordConfig struct {
	Token         string   `toml:"token"`
	CommandPrefix string   `toml:"command_prefix"`
	WebhookName   string   `toml:"webhook_name"`
	Owners        []string `toml:"owners"`
}

// RelayConfig controls which inbound messages are relayed.
type RelayConfig struct {
	// RelayBots relays messages from other bots. Bridge webhooks are never relayed.
	RelayBots bool `toml:"relay_bots"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// ServerConfig holds the admin HTTP listen address; empty disables the server.
type ServerConfig struct {
	Addr       string `toml:"addr"`
	AdminToken string `toml:"admin_token"`
}

// AuditConfig holds the cron spec of the bridge audit; empty disables it.
type AuditConfig struct {
	Schedule string `toml:"schedule"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Discord: DiscordConfig{
			CommandPrefix: DefaultCommandPrefix,
			WebhookName:   DefaultWebhookName,
		},
		Storage: StorageConfig{
			Driver:     DefaultStorageDriver,
			SQLitePath: DefaultSQLitePath,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Audit: AuditConfig{
			Schedule: DefaultAuditSchedule,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if strings.TrimSpace(c.Discord.CommandPrefix) == "" {
		c.Discord.CommandPrefix = DefaultCommandPrefix
	}
	if strings.TrimSpace(c.Discord.WebhookName) == "" {
		c.Discord.WebhookName = DefaultWebhookName
	}
	owners := make([]string, 0, len(c.Discord.Owners))
	for _, id := range c.Discord.Owners {
		if id = strings.TrimSpace(id); id != "" {
			owners = append(owners, id)
		}
	}
	c.Discord.Owners = owners
}
