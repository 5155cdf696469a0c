package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/agent/api"
	"github.com/kandev/voicectl/internal/agent/history"
	"github.com/kandev/voicectl/internal/agent/lifecycle"
	"github.com/kandev/voicectl/internal/agent/registry"
	"github.com/kandev/voicectl/internal/agent/worker"
	"github.com/kandev/voicectl/internal/common/config"
	"github.com/kandev/voicectl/internal/common/httpmw"
	"github.com/kandev/voicectl/internal/common/logger"
	"github.com/kandev/voicectl/internal/db"
	"github.com/kandev/voicectl/internal/events"
	"github.com/kandev/voicectl/internal/realtime"
	"github.com/kandev/voicectl/internal/tracing"
)

const (
	serverName = "voicectl"

	historyDrainTimeout = 10 * time.Second
)

func runServer(args []string) error {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	configDir := flags.String("config", "", "directory containing config.yaml")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// 1. Load configuration
	cfg, err := config.LoadWithPath(*configDir)
	if err != nil {
		return err
	}
	if err := cfg.RequireEngine(); err != nil {
		return err
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("Starting voicectl server...", zap.Bool("tracing", tracing.Enabled()))

	// 3. Event bus
	eventBus, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		return err
	}
	defer closeBus()

	// 4. Optional session history
	var (
		historyReader api.HistoryReader
		recorder      *history.Recorder
	)
	pool, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if pool != nil {
		defer func() { _ = pool.Close() }()
		store, err := history.NewStore(context.Background(), pool)
		if err != nil {
			return err
		}
		recorder = history.NewRecorder(store, eventBus, log)
		if err := recorder.Start(); err != nil {
			return err
		}
		historyReader = store
		log.Info("Session history enabled", zap.String("driver", cfg.Database.Driver))
	}

	// 5. Agent lifecycle
	templates, err := realtime.LoadTemplates(cfg.Agent.InstructionsFile)
	if err != nil {
		return err
	}
	log.Info("Instruction templates loaded", zap.Int("languages", templates.Languages()))
	spawner := worker.NewExecSpawner(worker.ExecConfig{
		BinaryPath: cfg.Agent.BinaryPath,
		ConfigDir:  workerConfigDir(*configDir),
		AppID:      cfg.Engine.AppID,
		AppCert:    cfg.Engine.AppCert,
		WritePCM:   cfg.Agent.WritePCM,
		PCMDir:     cfg.Agent.PCMDir,
	}, log)
	manager := lifecycle.NewManager(registry.New(), spawner, templates, eventBus,
		lifecycle.Config{ShutdownTimeout: cfg.Agent.ShutdownTimeoutDuration()}, log)

	// 6. HTTP server
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestID())
	router.Use(httpmw.OtelTracing(serverName))
	router.Use(httpmw.RequestLogger(log, serverName))
	api.SetupRoutes(router, api.NewHandler(manager, historyReader, eventBus, log))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server error", zap.Error(err))
		}
	}

	// Workers go first so none outlive the controller.
	agentCtx, agentCancel := agentShutdownContext(cfg.Agent.ShutdownTimeoutDuration())
	defer agentCancel()
	if err := manager.Shutdown(agentCtx); err != nil {
		log.WithError(err).Error("Agent shutdown incomplete")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	// The exits published by the agent shutdown are still queued for the
	// recorder; write them before the pool closes.
	if recorder != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), historyDrainTimeout)
		if err := recorder.Stop(drainCtx); err != nil {
			log.WithError(err).Warn("Session history may be missing exits")
		}
		drainCancel()
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := tracing.Shutdown(flushCtx); err != nil {
		log.Warn("Failed to flush traces", zap.Error(err))
	}

	log.Info("voicectl server stopped")
	return nil
}

// agentShutdownContext bounds the whole agent shutdown, reapers included, to
// twice the per-worker wait. A zero wait leaves it unbounded.
func agentShutdownContext(perWorker time.Duration) (context.Context, context.CancelFunc) {
	if perWorker <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), 2*perWorker)
}

// workerConfigDir makes the server's config directory usable from a worker.
func workerConfigDir(dir string) string {
	if dir == "" {
		return ""
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
