package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/stagehandhq/stagehand/internal/batch"
	"github.com/stagehandhq/stagehand/internal/config"
	"github.com/stagehandhq/stagehand/internal/conversation"
	"github.com/stagehandhq/stagehand/internal/db"
	"github.com/stagehandhq/stagehand/internal/dialogue"
	"github.com/stagehandhq/stagehand/internal/handlers"
	"github.com/stagehandhq/stagehand/internal/logger"
	"github.com/stagehandhq/stagehand/internal/provider"
	"github.com/stagehandhq/stagehand/internal/provider/telegram"
	"github.com/stagehandhq/stagehand/internal/provider/whatsapp"
	"github.com/stagehandhq/stagehand/internal/route"
	"github.com/stagehandhq/stagehand/internal/server"
	"github.com/stagehandhq/stagehand/internal/turn"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideRouteService,
			provideRouteReader,
			provideConversationStore,
			provideBatchStore,
			provideRegistry,
			provideInvoker,
			providePipeline,
			provideRunner,
			provideScheduler,
			provideSweeper,
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideConversationsHandler),
			provideServerHandler(provideRoutesHandler),
			provideServerHandler(func() *handlers.PingHandler { return handlers.NewPingHandler() }),
			provideServer,
		),
		fx.Invoke(
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideRouteService(log *slog.Logger, pool *pgxpool.Pool) route.Service {
	return route.NewService(log, pool)
}

func provideRouteReader(svc route.Service) route.Reader { return svc }

func provideConversationStore(log *slog.Logger, pool *pgxpool.Pool) conversation.Store {
	return conversation.NewDBStore(log, pool)
}

func provideBatchStore(log *slog.Logger, pool *pgxpool.Pool) batch.Store {
	return batch.NewDBStore(log, pool)
}

func provideRegistry(log *slog.Logger) *provider.Registry {
	registry := provider.NewRegistry()
	registry.MustRegister(telegram.NewAdapter(log))
	registry.MustRegister(whatsapp.NewAdapter(log))
	return registry
}

func provideInvoker(log *slog.Logger, cfg config.Config) dialogue.Invoker {
	d := cfg.Dialogue
	return dialogue.NewOpenAIClient(log, d.BaseURL, d.APIKey, d.Model,
		time.Duration(d.TimeoutSeconds)*time.Second)
}

func providePipeline(log *slog.Logger, routes route.Reader, conversations conversation.Store, registry *provider.Registry, invoker dialogue.Invoker, cfg config.Config) *turn.Pipeline {
	return turn.NewPipeline(log, routes, conversations, registry, invoker,
		time.Duration(cfg.Coalesce.TurnTimeoutSeconds)*time.Second)
}

func provideRunner(p *turn.Pipeline) turn.Runner { return p }

func provideScheduler(lc fx.Lifecycle, log *slog.Logger, store batch.Store, runner turn.Runner, cfg config.Config) *turn.Scheduler {
	scheduler := turn.NewScheduler(log, store, runner,
		time.Duration(cfg.Coalesce.WindowSeconds)*time.Second)
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { scheduler.Close(); return nil }})
	return scheduler
}

func provideSweeper(log *slog.Logger, store batch.Store, scheduler *turn.Scheduler, cfg config.Config) *turn.Sweeper {
	return turn.NewSweeper(log, store, scheduler,
		time.Duration(cfg.Coalesce.SweepSeconds)*time.Second)
}

func provideWebhookHandler(log *slog.Logger, routes route.Reader, registry *provider.Registry, scheduler *turn.Scheduler) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, routes, registry, scheduler)
}

func provideConversationsHandler(log *slog.Logger, store conversation.Store, scheduler *turn.Scheduler) *handlers.ConversationsHandler {
	return handlers.NewConversationsHandler(log, store, scheduler)
}

func provideRoutesHandler(log *slog.Logger, routes route.Service) *handlers.RoutesHandler {
	return handlers.NewRoutesHandler(log, routes)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(p serverParams) *server.Server {
	return server.New(p.Logger, p.Config.Server.Addr, p.Config.Auth.JWTSecret, p.Handlers)
}

func startSweeper(lc fx.Lifecycle, sweeper *turn.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return sweeper.Start() },
		OnStop:  func(ctx context.Context) error { sweeper.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					log.Error("server stopped", slog.Any("error", err))
				}
			}()
			log.Info("server listening", slog.String("addr", cfg.Server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
