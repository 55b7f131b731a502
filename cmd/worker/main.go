// Package main - точка входа для фонового процесса (Worker) Study Match.
//
// Worker отвечает за:
// - Периодический цикл автоматического подбора учебных пар
// - Плановый пересчёт статистики совпадений
// - Приём сигналов вовлечённости от сервиса чатов (webhook)
// - Операторский HTTP API и метрики Prometheus
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/alem-hub/study-match/config"
	"github.com/alem-hub/study-match/internal/app"
	httpserver "github.com/alem-hub/study-match/internal/interface/http"
	"github.com/alem-hub/study-match/pkg/logger"
)

// version задаётся при сборке через -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	// .env нужен только локально, в контейнере переменные уже заданы.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = version
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.Setup(logger.Options{
		Level:   cfg.Observability.LogLevel,
		Format:  cfg.Observability.LogFormat,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
	})
	log.Info("starting Study Match worker",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"cycle_interval", cfg.Scheduler.CycleInterval.String(),
		"threshold", cfg.Matching.Threshold,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩА И ДВИЖОК ПОДБОРА
	// ─────────────────────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections...")
		application.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := application.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to configure scheduler: %w", err)
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()
	} else {
		log.Warn("scheduler is disabled, cycles run only on demand")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	var serverErr <-chan error
	var server *httpserver.Server
	if cfg.HTTP.Enabled {
		httpCfg := httpserver.DefaultConfig()
		httpCfg.Addr = cfg.HTTP.Addr
		httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
		httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
		httpCfg.EnableMetrics = cfg.Observability.MetricsEnabled
		httpCfg.AdminAPIKey = cfg.HTTP.AdminAPIKey
		httpCfg.WebhookSecret = cfg.HTTP.WebhookSecret
		httpCfg.Version = cfg.App.Version

		server = httpserver.NewServer(httpCfg, httpserver.Dependencies{
			Cycles:      application.Cycles,
			CycleStatus: application.CycleStatus,
			Stats:       application.Stats,
			Engagement:  application.Engage,
			Scores:      application.Scores,
			Jobs:        sched,
			Features:    cfg.Features,
			Health:      application.Health,
			Metrics:     application.Metrics,
			Logger:      log,
		})
		serverErr = server.StartAsync()
	}

	log.Info("Study Match worker is running",
		"scheduler", cfg.Scheduler.Enabled,
		"http", cfg.HTTP.Enabled,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ОЖИДАНИЕ СИГНАЛА ЗАВЕРШЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-serverErr:
		if ok && err != nil {
			runErr = fmt.Errorf("http server stopped: %w", err)
		}
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("http server shutdown failed", "error", err)
		}
	}

	log.Info("shutdown completed")
	return runErr
}
