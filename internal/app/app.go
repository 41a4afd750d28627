package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-remedy/internal/data/db"
	apphttp "github.com/yungbote/neurobridge-remedy/internal/http"
	"github.com/yungbote/neurobridge-remedy/internal/observability"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
	"github.com/yungbote/neurobridge-remedy/internal/realtime/bus"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services

	dbService    *db.Service
	server       *apphttp.Server
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	a, err := NewWithConfig(context.Background(), log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

// NewWithConfig builds the app from an explicit config.
func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)
	observability.Init(cfg.MetricsEnabled)

	dbService, err := db.Open(log, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		_ = dbService.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbService.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(log, cfg, reposet, clients)
	handlerset := wireHandlers(log, serviceset)
	router := wireRouter(log, cfg, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		dbService:    dbService,
		server:       apphttp.NewServer(router, net.JoinHostPort("", cfg.Port)),
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background workers. Calling it twice is a no-op.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Services.Registry.StartJanitor(ctx, a.Cfg.RegistrySweepInterval)

	if m := observability.Current(); m != nil {
		m.StartDBCollector(ctx, a.Log, a.DB, a.Cfg.MetricsScrapeInterval)
		m.StartRedisCollector(ctx, a.Log, a.Cfg.RedisAddr, a.Cfg.MetricsScrapeInterval)
	}

	eventLog := a.Log.With("component", "EventForwarder")
	err := a.Clients.Bus.StartForwarder(ctx, func(ev bus.Event) {
		switch ev.Type {
		case bus.EventJobStatus:
			eventLog.Debug("Event", "type", ev.Type, "job_id", ev.JobID)
		default:
			eventLog.Info("Event", "type", ev.Type, "job_id", ev.JobID, "scope_id", ev.ScopeID)
		}
	})
	if err != nil {
		a.Log.Warn("Event forwarder not started", "error", err)
	}
}

func (a *App) Run() error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
	return a.server.Run()
}

// Close stops the HTTP server, joins outstanding jobs and releases clients.
func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.Log.Warn("HTTP shutdown", "error", err)
		}
	}
	if err := errors.Join(a.Services.Plans.Wait(ctx), a.Services.Runner.Wait(ctx)); err != nil {
		a.Log.Warn("Background jobs still running at shutdown", "error", err)
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if err := a.Services.Notifier.Close(ctx); err != nil {
		a.Log.Warn("Job notifier drain", "error", err)
	}
	a.Clients.close()
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("Database close", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown", "error", err)
		}
	}
	a.Log.Sync()
}
