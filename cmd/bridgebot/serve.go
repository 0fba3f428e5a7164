package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	migrations "github.com/memohai/bridgebot/db"
	"github.com/memohai/bridgebot/internal/access"
	"github.com/memohai/bridgebot/internal/audit"
	"github.com/memohai/bridgebot/internal/boot"
	"github.com/memohai/bridgebot/internal/bridge"
	"github.com/memohai/bridgebot/internal/command"
	"github.com/memohai/bridgebot/internal/config"
	"github.com/memohai/bridgebot/internal/db"
	"github.com/memohai/bridgebot/internal/discord"
	"github.com/memohai/bridgebot/internal/handlers"
	"github.com/memohai/bridgebot/internal/logger"
	"github.com/memohai/bridgebot/internal/relay"
	"github.com/memohai/bridgebot/internal/server"
	"github.com/memohai/bridgebot/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and relay bridged channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, overrides, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			app := fx.New(
				fx.Supply(cfg, overrides),
				fx.Provide(
					boot.ProvideRuntimeConfig,
					provideLogger,

					provideStores,
					provideSession,
					discord.NewSessionAdapter,
					fx.Annotate(func(a *discord.Adapter) *discord.Adapter { return a }, fx.As(new(bridge.Platform))),
					provideRegistry,
					provideAccess,
					provideRelay,
					provideCommands,
					provideBot,
					provideAudit,

					provideServerHandler(handlers.NewPingHandler),
					provideServerHandler(provideBridgesHandler),
					provideServer,
				),
				fx.Invoke(
					startBot,
					startAudit,
					startServer,
				),
				fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
					return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func provideLogger(rc *boot.RuntimeConfig) *slog.Logger {
	logger.Init(rc.Config.Log.Level, rc.Config.Log.Format)
	return logger.L
}

type storesResult struct {
	fx.Out

	Bridges   bridge.Store
	Operators access.Store
}

// provideStores migrates and opens the configured database, or falls back to the
// in-memory stores for the memory driver.
func provideStores(lc fx.Lifecycle, log *slog.Logger, rc *boot.RuntimeConfig) (storesResult, error) {
	cfg := rc.Config
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("using in-memory storage, bridges are lost on restart")
		return storesResult{Bridges: bridge.NewMemoryStore(), Operators: access.NewMemoryStore()}, nil
	}

	ctx := context.Background()
	if err := db.RunMigrate(ctx, log, cfg, migrations.MigrationsFS, "up", nil); err != nil {
		return storesResult{}, fmt.Errorf("migrate: %w", err)
	}
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return storesResult{}, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return conn.Close()
		},
	})
	return storesResult{Bridges: bridge.NewSQLStore(conn), Operators: access.NewSQLStore(conn)}, nil
}

func provideSession(rc *boot.RuntimeConfig) (*discordgo.Session, error) {
	return discord.NewSession(rc.Config.Discord.Token)
}

func provideRegistry(log *slog.Logger, store bridge.Store, platform bridge.Platform, rc *boot.RuntimeConfig) *bridge.Registry {
	return bridge.NewRegistry(log, store, platform, rc.Config.Discord.WebhookName)
}

func provideAccess(log *slog.Logger, store access.Store, rc *boot.RuntimeConfig) *access.Service {
	return access.NewService(log, store, rc.Config.Discord.Owners)
}

func provideRelay(log *slog.Logger, registry *bridge.Registry, adapter *discord.Adapter, rc *boot.RuntimeConfig) *relay.Relay {
	return relay.New(log, registry, adapter, relay.Options{RelayBots: rc.Config.Relay.RelayBots})
}

func provideCommands(log *slog.Logger, registry *bridge.Registry, accessService *access.Service, adapter *discord.Adapter, rc *boot.RuntimeConfig) *command.Handler {
	return command.NewHandler(log, registry, accessService, adapter, rc.Config.Discord.CommandPrefix)
}

func provideBot(log *slog.Logger, session *discordgo.Session, adapter *discord.Adapter, r *relay.Relay, commands *command.Handler) *discord.Bot {
	return discord.NewBot(log, session, adapter, r, commands)
}

func provideAudit(log *slog.Logger, registry *bridge.Registry, adapter *discord.Adapter, rc *boot.RuntimeConfig) (*audit.Service, error) {
	return audit.NewService(log, registry, adapter, rc.Config.Audit.Schedule)
}

func provideBridgesHandler(log *slog.Logger, registry *bridge.Registry) *handlers.BridgesHandler {
	return handlers.NewBridgesHandler(log, registry)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	cfg := params.RuntimeConfig.Config.Server
	return server.NewServer(params.Logger, cfg.Addr, cfg.AdminToken, params.ServerHandlers...)
}

func startBot(lc fx.Lifecycle, log *slog.Logger, registry *bridge.Registry, bot *discord.Bot) {
	log.Info("starting bridgebot", slog.String("version", version.GetInfo()))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Load(ctx); err != nil {
				return err
			}
			return bot.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return bot.Stop(ctx)
		},
	})
}

func startAudit(lc fx.Lifecycle, auditService *audit.Service) {
	lc.Append(fx.Hook{
		OnStart: auditService.Start,
		OnStop:  auditService.Stop,
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, rc *boot.RuntimeConfig) {
	if strings.TrimSpace(rc.Config.Server.Addr) == "" {
		log.Info("admin http server disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil { // block until server is stopped
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown() // shutdown the application if the server fails to start
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
