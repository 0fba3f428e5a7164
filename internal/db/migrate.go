package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/memohai/bridgebot/internal/config"
)

// RunMigrate applies or rolls back database migrations.
// The migrationsFS should contain .sql files under migrations/.
// Supported commands: "up", "down", "version", "force N".
// It opens and closes its own connection so callers can keep a pool open meanwhile.
func RunMigrate(ctx context.Context, logger *slog.Logger, cfg config.Config, migrationsFS fs.FS, command string, args []string) error {
	switch command {
	case "up", "down", "version", "force":
	default:
		return fmt.Errorf("unknown migrate command: %s (use: up, down, version, force)", command)
	}
	if command == "force" && len(args) == 0 {
		return fmt.Errorf("force requires a version number argument")
	}
	if cfg.Storage.Driver == config.DriverMemory {
		if logger != nil {
			logger.Info("memory storage selected, skipping migrations")
		}
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("migrate open: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("migration source: %w", err)
	}

	var dbDriver database.Driver
	switch conn.Dialect {
	case DialectSQLite:
		dbDriver, err = migratesqlite.WithInstance(conn.DB, &migratesqlite.Config{})
	case DialectPostgres:
		dbDriver, err = migratepgx.WithInstance(conn.DB, &migratepgx.Config{})
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, string(conn.Dialect), dbDriver)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("migrate init: %w", err)
	}
	defer func() {
		_, _ = m.Close()
		_ = conn.Close()
	}()

	m.Log = &migrateLogger{logger: logger}

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		ver, dirty, _ := m.Version()
		logger.Info("migration complete", slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate down: %w", err)
		}
		logger.Info("all migrations rolled back")

	case "version":
		ver, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("migrate version: %w", err)
		}
		logger.Info("current version", slog.Uint64("version", uint64(ver)), slog.Bool("dirty", dirty))

	case "force":
		var version int
		if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("migrate force: %w", err)
		}
		logger.Info("forced version", slog.Int("version", version))
	}

	return nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
