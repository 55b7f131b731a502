// Package app wires the matching engine from configuration. It is shared by
// the worker and the matchctl operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/study-match/config"
	"github.com/alem-hub/study-match/internal/application/command"
	"github.com/alem-hub/study-match/internal/application/eventhandler"
	"github.com/alem-hub/study-match/internal/application/query"
	"github.com/alem-hub/study-match/internal/domain/engagement"
	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
	"github.com/alem-hub/study-match/internal/infrastructure/external/conversation"
	"github.com/alem-hub/study-match/internal/infrastructure/messaging"
	"github.com/alem-hub/study-match/internal/infrastructure/metrics"
	"github.com/alem-hub/study-match/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/study-match/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/study-match/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/study-match/internal/interface/http/handlers"
	"github.com/alem-hub/study-match/pkg/retry"
)

// ErrNoDatabase is returned by operations that need PostgreSQL when the
// process runs on in-memory stores.
var ErrNoDatabase = errors.New("app: DATABASE_URL is not configured")

// CycleStatusStore keeps the summary of the last completed cycle.
type CycleStatusStore interface {
	Record(event shared.Event) error
	Last(ctx context.Context) (*shared.CycleCompletedEvent, error)
}

// App holds the wired engine.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Profiles   profile.Store
	Ledger     matching.Ledger
	Engagement engagement.Store

	Bus         *messaging.InMemoryEventBus
	Metrics     *metrics.Recorder
	Health      *handlers.CompositeHealthChecker
	CycleStatus CycleStatusStore

	Cycles     *command.CycleOrchestrator
	Stats      *command.StatsTracker
	Engage     *command.RecordEngagementHandler
	Scores     *query.ScorePairHandler
	OnEngaged  *eventhandler.OnEngagementRecordedHandler
	lock       command.CycleLock
	db         *postgres.Connection
	redis      *redis.Client
	closeHooks []func()
}

// Options tunes what New connects to.
type Options struct {
	// ConnectAttempts bounds startup retries of PostgreSQL and Redis.
	ConnectAttempts int
}

// New connects the backends and builds the engine. Close must be called
// to release them.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.ConnectAttempts < 1 {
		opts.ConnectAttempts = 5
	}

	a := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewRecorder(),
		Health:  handlers.NewCompositeHealthChecker(cfg.App.Version),
	}

	if err := a.connectStores(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.connectLock(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	a.buildBus()
	a.buildHandlers()

	if err := a.subscribe(); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORES
// ══════════════════════════════════════════════════════════════════════════════

func (a *App) connectStores(ctx context.Context, opts Options) error {
	cfg := a.Config

	if cfg.Database.URL == "" {
		a.Logger.Warn("DATABASE_URL is empty, using in-memory stores")
		a.Profiles = memory.NewProfileStore()
		a.Ledger = memory.NewLedger()
		a.Engagement = memory.NewEngagementStore()
		return nil
	}

	pool := postgres.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	}

	a.Logger.Info("connecting to database")
	retrier := retry.ConnectRetrier(opts.ConnectAttempts, func(attempt int, err error, delay time.Duration) {
		a.Logger.Warn("database not reachable, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
	})
	err := retrier.Do(ctx, func(ctx context.Context) error {
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, pool)
		if err != nil {
			return err
		}
		a.db = conn
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closeHooks = append(a.closeHooks, a.db.Close)
	a.Health.AddCheck("postgres", databaseCheck(a.db, a.Logger))

	if cfg.Database.AutoMigrate {
		if _, err := a.Migrate(ctx); err != nil {
			return err
		}
	}

	a.Profiles = postgres.NewProfileRepository(a.db)
	a.Ledger = postgres.NewLedgerRepository(a.db)
	a.Engagement = postgres.NewEngagementRepository(a.db)
	a.Logger.Info("database connection established")
	return nil
}

// connectLock picks the Redis lock when Redis is reachable. Outside
// development an unreachable Redis is fatal: an in-process lock cannot
// serialize cycles of several workers.
func (a *App) connectLock(ctx context.Context, opts Options) error {
	cfg := a.Config

	if cfg.Redis.Disabled {
		a.useMemoryLock()
		return nil
	}

	rcfg := redis.DefaultConfig()
	rcfg.URL = cfg.Redis.URL
	rcfg.Host = cfg.Redis.Host
	rcfg.Port = cfg.Redis.Port
	rcfg.Password = cfg.Redis.Password
	rcfg.DB = cfg.Redis.DB
	rcfg.PoolSize = cfg.Redis.PoolSize
	rcfg.MinIdleConns = cfg.Redis.MinIdleConns
	rcfg.DialTimeout = cfg.Redis.DialTimeout
	rcfg.ReadTimeout = cfg.Redis.ReadTimeout
	rcfg.WriteTimeout = cfg.Redis.WriteTimeout

	attempts := opts.ConnectAttempts
	if cfg.IsDevelopment() {
		attempts = 1
	}
	retrier := retry.ConnectRetrier(attempts, func(attempt int, err error, delay time.Duration) {
		a.Logger.Warn("redis not reachable, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
	})
	err := retrier.Do(ctx, func(ctx context.Context) error {
		client, err := redis.NewClient(ctx, rcfg)
		if err != nil {
			return err
		}
		a.redis = client
		return nil
	})
	if err != nil {
		if cfg.IsDevelopment() {
			a.Logger.Warn("failed to connect to Redis, using in-process cycle lock", "error", err)
			a.useMemoryLock()
			return nil
		}
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.closeHooks = append(a.closeHooks, func() { _ = a.redis.Close() })
	a.Health.AddCheck("redis", handlers.NewPingCheck(a.redis))
	a.lock = redis.NewCycleLock(a.redis, cfg.Matching.LockKey, cfg.Matching.LockTTL)
	a.CycleStatus = redis.NewCycleStatusStore(a.redis)
	a.Logger.Info("Redis connection established", "lock_key", cfg.Matching.LockKey)
	return nil
}

// databaseCheck fails readiness when PostgreSQL does not answer a ping.
func databaseCheck(db *postgres.Connection, log *slog.Logger) handlers.HealthCheckFunc {
	return func(ctx context.Context) error {
		status, err := db.Health(ctx)
		if err != nil {
			return err
		}
		if !status.Healthy {
			return errors.New(status.Error)
		}
		log.Debug("database pool",
			"total_conns", status.TotalConns,
			"idle_conns", status.IdleConns,
			"acquired_conns", status.AcquiredConns,
			"max_conns", status.MaxConns,
			"ping_latency", status.PingLatency.String(),
		)
		return nil
	}
}

func (a *App) useMemoryLock() {
	a.lock = memory.NewCycleLock()
	a.CycleStatus = memory.NewCycleStatusStore()
}

// Migrate applies pending migrations.
func (a *App) Migrate(ctx context.Context) (int, error) {
	if a.db == nil {
		return 0, ErrNoDatabase
	}
	applied, err := postgres.NewMigrator(a.db).Migrate(ctx)
	if err != nil {
		return applied, fmt.Errorf("failed to run migrations: %w", err)
	}
	a.Logger.Info("database schema is up to date", "applied", applied)
	return applied, nil
}

// MigrationStatus lists known migrations and whether they were applied.
func (a *App) MigrationStatus(ctx context.Context) ([]postgres.Migration, error) {
	if a.db == nil {
		return nil, ErrNoDatabase
	}
	return postgres.NewMigrator(a.db).Status(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

func (a *App) buildBus() {
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = a.Logger
	busCfg.Observer = a.Metrics
	a.Bus = messaging.NewInMemoryEventBus(busCfg)
}

func (a *App) buildHandlers() {
	cfg := a.Config
	features := cfg.Features

	scorer := matching.NewCompatibilityScorer()
	filter := matching.NewEligibilityFilter(a.Profiles, cfg.Matching.Cooldown, cfg.Matching.PoolLimit)
	matcher := matching.NewGreedyMatcher(scorer, a.Ledger, a.Profiles, matching.MatcherConfig{
		Threshold:      cfg.Matching.Threshold,
		ScoringWorkers: cfg.Matching.ScoringWorkers,
	})

	orchestratorCfg := command.DefaultCycleOrchestratorConfig()
	orchestratorCfg.CalloutTimeout = cfg.Conversation.RequestTimeout * time.Duration(cfg.Conversation.MaxRetries+1)
	orchestratorCfg.ConversationsEnabled = func() bool {
		return features.IsEnabled(config.FeatureConversationCallout)
	}
	orchestratorCfg.UniversityGate = func(university string) bool {
		return features.IsEnabledFor(config.FeatureAutoMatching, university)
	}

	a.Cycles = command.NewCycleOrchestrator(
		filter,
		matcher,
		a.conversationService(),
		a.lock,
		a.Bus,
		a.Metrics,
		a.Logger,
		orchestratorCfg,
	)

	a.Stats = command.NewStatsTracker(
		a.Ledger,
		a.Profiles,
		a.Engagement,
		a.Bus,
		a.Metrics,
		a.Logger,
		cfg.Matching.StatsWorkers,
	)

	a.Engage = command.NewRecordEngagementHandler(a.Ledger, a.Engagement, a.Bus, a.Logger)
	a.Scores = query.NewScorePairHandler(a.Profiles, a.Ledger, scorer, cfg.Matching.Threshold)

	onEngagedCfg := eventhandler.DefaultEngagementRecordedConfig()
	onEngagedCfg.Enabled = func() bool {
		return features.IsEnabled(config.FeatureMessageDrivenStats)
	}
	a.OnEngaged = eventhandler.NewOnEngagementRecordedHandler(a.Stats, a.Logger, onEngagedCfg)
}

func (a *App) conversationService() matching.ConversationService {
	cfg := a.Config.Conversation
	if cfg.BaseURL == "" {
		a.Logger.Info("CONVERSATION_BASE_URL is empty, conversations are logged only")
		return conversation.NewNoopService(a.Logger)
	}

	ccfg := conversation.DefaultClientConfig(cfg.BaseURL)
	ccfg.APIKey = cfg.APIKey
	ccfg.Timeout = cfg.RequestTimeout
	ccfg.MaxRetries = cfg.MaxRetries
	ccfg.RetryBaseDelay = cfg.RetryBaseDelay
	ccfg.RetryMaxDelay = cfg.RetryMaxDelay
	ccfg.Logger = a.Logger
	return conversation.NewClient(ccfg)
}

func (a *App) subscribe() error {
	if err := a.Bus.Subscribe(shared.EventEngagementRecorded, a.OnEngaged.Handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", shared.EventEngagementRecorded, err)
	}
	if err := a.Bus.Subscribe(shared.EventCycleCompleted, a.CycleStatus.Record); err != nil {
		return fmt.Errorf("subscribe %s: %w", shared.EventCycleCompleted, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Close drains the event bus and releases the backends in reverse order.
func (a *App) Close() {
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	for i := len(a.closeHooks) - 1; i >= 0; i-- {
		a.closeHooks[i]()
	}
	a.closeHooks = nil
}
