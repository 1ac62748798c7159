package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	httpserver "github.com/yungbote/ratebench-backend/internal/http"
	"github.com/yungbote/ratebench-backend/internal/platform/envutil"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

const serviceName = "ratebench-backend"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	server   *httpserver.Server
	cancel   context.CancelFunc
}

func New() (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	clients, err := wireClients(context.Background(), log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(clients.DB, log)
	serviceset := wireServices(clients.DB, log, cfg, clients, reposet)
	handlerset := wireHandlers(log, clients, serviceset)
	middleware := wireMiddleware(log, cfg)
	router := wireRouter(log, cfg, clients, handlerset, middleware)

	return &App{
		Log:      log,
		DB:       clients.DB,
		Router:   router,
		Cfg:      cfg,
		Clients:  clients,
		Repos:    reposet,
		Services: serviceset,
		server:   &httpserver.Server{Engine: router},
	}, nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Start runs the one-time settings sync and the optional worker poller.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.SettingsSync != nil {
		if err := a.Services.SettingsSync.Ensure(ctx); err != nil {
			a.Log.Error("settings sync failed", "error", err)
		}
	}
	if a.Services.Poller != nil {
		a.Services.Poller.Start(ctx)
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.server.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Poller != nil {
		a.Services.Poller.Wait()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Clients.Close(ctx)
	if a.Log != nil {
		a.Log.Sync()
	}
}
