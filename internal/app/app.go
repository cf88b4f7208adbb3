package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/journey-tutor-backend/internal/http"
	"github.com/yungbote/journey-tutor-backend/internal/observability"
	"github.com/yungbote/journey-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics
	Server   *http.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "journey-tutor",
		Environment: cfg.Env,
		Version:     envutil.String("APP_VERSION", ""),
	})
	metrics := observability.Init(log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	theDB := clients.Postgres.DB()

	ssehub := realtime.NewSSEHub(log)
	var pub realtime.Publisher
	if clients.SSEBus != nil {
		pub = clients.SSEBus
	}
	notifier := realtime.NewNotifier(log, ssehub, pub)

	reposet := wireRepos(theDB, log, clients.PromptLog)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, notifier)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, cfg, theDB, serviceset, ssehub)
	middleware := wireMiddleware(log, serviceset)
	server := wireServer(log, cfg, metrics, handlerset, middleware)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		SSEHub:       ssehub,
		Metrics:      metrics,
		Server:       server,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP and the background collectors until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if a.Clients.SSEBus != nil {
		if err := a.Clients.SSEBus.StartForwarder(gctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
	}
	a.Metrics.StartServer(gctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartPostgresCollector(gctx, a.Log, a.DB)
	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(gctx, a.Log, a.Clients.Redis)
	}

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr())
		return a.Server.Run(gctx)
	})
	return g.Wait()
}

// Close drains pending prompt logs before the stores they write to are closed.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if err := a.Services.PromptLog.Close(); err != nil && a.Log != nil {
		a.Log.Warn("prompt log sink close failed", "error", err)
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
