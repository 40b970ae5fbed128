package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/nanofleet/agentd/internal/db"
	"github.com/nanofleet/agentd/internal/heartbeat"
	"github.com/nanofleet/agentd/internal/identity"
	"github.com/nanofleet/agentd/internal/llm"
	"github.com/nanofleet/agentd/internal/logger"
	"github.com/nanofleet/agentd/internal/notify"
	"github.com/nanofleet/agentd/internal/observability"
	"github.com/nanofleet/agentd/internal/skills"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Handlers Handlers
	Bus      *notify.Bus

	heartbeat    *heartbeat.Runner
	mirror       *notify.RedisMirror
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
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "agentd",
		Environment: logMode,
		Version:     Version,
	})

	database, err := db.NewService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := database.DB()

	bus := notify.NewBus(log)
	var mirror *notify.RedisMirror
	if os.Getenv("REDIS_ADDR") != "" {
		mirror, err = notify.NewRedisMirror(log)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init redis mirror: %w", err)
		}
		bus.SetMirror(mirror)
	}

	identityLoader := identity.NewLoader(cfg.Workspace, log)
	loadedSkills := skills.NewLoader(cfg.Workspace, log).Load()

	systemPrompt, err := identityLoader.AssembleSystemPrompt()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("assemble system prompt: %w", err)
	}
	if xml := skills.MetadataXML(loadedSkills); xml != "" {
		systemPrompt += "\n" + xml
	}

	client, err := llm.NewClient(log, cfg.AgentModel)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init model client: %w", err)
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, client, systemPrompt)
	handlerset := wireHandlers(log, cfg, serviceset, bus, identityLoader, loadedSkills)
	router := wireRouter(handlerset)

	runner := heartbeat.NewRunner(log, cfg.Workspace, cfg.HeartbeatInterval, serviceset.Gateway, bus)

	log.Info("Agent ready", "agent_id", cfg.AgentID, "model", cfg.AgentModel, "workspace", cfg.Workspace)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Handlers:     handlerset,
		Bus:          bus,
		heartbeat:    runner,
		mirror:       mirror,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background heartbeat loop. Idempotent.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.heartbeat.Start(ctx)
}

// Run serves HTTP until ctx is cancelled, then shuts the server down
// gracefully.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}

	srv := &http.Server{
		Addr:    ":" + a.Cfg.Port,
		Handler: a.Router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("Listening", "port", a.Cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.Log.Warn("Failed to close redis mirror", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("Failed to shut down tracing", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
