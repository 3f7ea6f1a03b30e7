package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sukryu/stellane/internal/config"
	"github.com/sukryu/stellane/internal/events"
	"github.com/sukryu/stellane/internal/httpapi"
	"github.com/sukryu/stellane/internal/logger"
	"github.com/sukryu/stellane/internal/recovery"
	"github.com/sukryu/stellane/internal/runtime"
	"github.com/sukryu/stellane/internal/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting stellane node")

	rt, err := runtime.Init(*cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize runtime")
	}

	if cfg.Recovery.Enabled {
		if err := rt.EnableRequestRecovery(); err != nil {
			log.Fatal().Err(err).Msg("failed to enable request recovery")
		}
		if err := rt.OnRecover(defaultRecoveryHook); err != nil {
			log.Fatal().Err(err).Msg("failed to register recovery hook")
		}
	}
	rt.OnTaskError(func(taskID string, err error) {
		log.Error().Str("task_id", taskID).Err(err).Msg("task failed")
	})

	bus := events.NewLocalBus()
	defer bus.Close()

	adminSrv := httpapi.NewServer(cfg, rt, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start runtime")
	}

	adminSrv.Start(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.AdminPort),
		Handler:      adminSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("admin server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin server error")
		}
	}()

	submitDemoTasks(rt)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down stellane node")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	adminSrv.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin server shutdown error")
	}
	if err := rt.Stop(30 * time.Second); err != nil {
		log.Error().Err(err).Msg("runtime shutdown error")
	}

	log.Info().Msg("stellane node stopped")
}

// defaultRecoveryHook logs recovered requests; operators register their own
// hook via rt.OnRecover/OnRecoverAdvanced for real replay logic.
func defaultRecoveryHook(ctx context.Context, req *recovery.RecoveredRequest) error {
	logger.Info().Str("method", req.Method).Str("path", req.Path).Msg("replaying recovered request")
	return nil
}

// submitDemoTasks schedules a few example tasks, mirroring the handler set
// operators typically wire up first against a fresh node.
func submitDemoTasks(rt *runtime.Runtime) {
	echo := task.New("echo", func(ctx context.Context) (any, error) {
		logger.Info().Msg("echo task running")
		return map[string]any{"echoed": true}, nil
	})
	if err := rt.Schedule(echo); err != nil {
		logger.Error().Err(err).Msg("failed to schedule echo task")
	}
}
