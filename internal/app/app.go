// Package app is the composition root shared by cmd/api and cmd/notifier.
// It connects Postgres and (optionally) Redis, then wires the gateway
// client, token lifecycle, receipt checker, dispatcher and the three
// notification drivers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/albapepper/hifz-notify/internal/api/handler"
	"github.com/albapepper/hifz-notify/internal/cache"
	"github.com/albapepper/hifz-notify/internal/config"
	"github.com/albapepper/hifz-notify/internal/db"
	"github.com/albapepper/hifz-notify/internal/jobs"
	"github.com/albapepper/hifz-notify/internal/metrics"
	"github.com/albapepper/hifz-notify/internal/notifications"
	"github.com/albapepper/hifz-notify/internal/push"
	"github.com/albapepper/hifz-notify/internal/scheduler"
	"github.com/albapepper/hifz-notify/internal/store"
)

const schedulerLockKey = "lock:scheduler"

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	Pool  *db.Pool
	Cache *cache.Client // nil without REDIS_URL

	Store      *store.Store
	Gateway    *push.Client
	Receipts   *push.ReceiptChecker
	Dispatcher *push.Dispatcher
	JobMetrics *metrics.JobMetrics

	Homework  *jobs.HomeworkReminder
	Summaries *jobs.TeacherSummary
	Events    *jobs.EventNotifier
}

// New connects the backends and wires the application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	var kv *cache.Client
	if cfg.RedisEnabled() {
		kv, err = cache.New(ctx, cfg.RedisURL, cache.DefaultNamespace)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("Redis connected; shared dedup and run markers enabled")
	} else {
		logger.Info("Redis disabled; using in-memory dedup")
	}

	a := wire(cfg, store.New(pool), kv, logger)
	a.Pool = pool
	return a, nil
}

// wire builds every component on top of an already-connected store and
// optional Redis client.
func wire(cfg *config.Config, st *store.Store, kv *cache.Client, logger *slog.Logger) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pushMetrics := metrics.NewPushMetrics(reg)

	gateway := push.NewClient(push.DefaultBaseURL, cfg.PushAccessToken, float64(cfg.PushRequestsPerSecond), logger)
	tokens := push.NewTokenManager(st, pushMetrics, logger)
	receipts := push.NewReceiptChecker(gateway, tokens, cfg.ReceiptDelay, logger)
	dispatcher := push.NewDispatcher(gateway, tokens, receipts, pushMetrics, logger)

	deps := jobs.Deps{
		Store:   st,
		Builder: notifications.NewBuilder(st),
		Push:    dispatcher,
		Guard:   notifications.NewMemoryGuard(cfg.DedupWindow),
		Logger:  logger,
	}
	if kv != nil {
		deps.Marker = kv
		deps.Guard = notifications.NewRedisGuard(kv, cfg.DedupWindow)
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Registry:   reg,
		Cache:      kv,
		Store:      st,
		Gateway:    gateway,
		Receipts:   receipts,
		Dispatcher: dispatcher,
		JobMetrics: metrics.NewJobMetrics(reg),
		Homework:   jobs.NewHomeworkReminder(deps),
		Summaries:  jobs.NewTeacherSummary(deps),
		Events:     jobs.NewEventNotifier(deps),
	}
}

// HandlerDeps exposes the drivers and health probes to the HTTP layer.
func (a *App) HandlerDeps() handler.Deps {
	d := handler.Deps{
		Events:    a.Events,
		Homework:  a.Homework,
		Summaries: a.Summaries,
		Logger:    a.Logger,
	}
	if a.Pool != nil {
		d.DB = handler.PingFunc(a.Pool.HealthCheck)
	}
	if a.Cache != nil {
		d.Redis = a.Cache
	}
	return d
}

// Scheduler builds the in-process cron runner for both periodic drivers.
// With Redis the tick is guarded by a cross-replica lock.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	var lock scheduler.Lock = &scheduler.LocalLock{}
	if a.Cache != nil {
		rl, err := scheduler.NewRedisLock(a.Cache, schedulerLockKey, a.Config.SchedulerLockTTL)
		if err != nil {
			return nil, err
		}
		lock = rl
	}

	return scheduler.New(scheduler.Params{
		Spec: a.Config.SchedulerSpec,
		Jobs: []scheduler.Job{
			scheduler.Func(a.Homework.Name(), func(ctx context.Context) error {
				_, err := a.Homework.Run(ctx)
				return err
			}),
			scheduler.Func(a.Summaries.Name(), func(ctx context.Context) error {
				_, err := a.Summaries.Run(ctx)
				return err
			}),
		},
		Lock:    lock,
		Metrics: a.JobMetrics,
		Timeout: a.Config.SchedulerLockTTL,
		Logger:  a.Logger,
	})
}

// Close waits (bounded by ctx) for pending receipt checks, then releases
// the backends.
func (a *App) Close(ctx context.Context) {
	if err := a.Dispatcher.Wait(ctx); err != nil {
		a.Logger.Warn("pending receipt checks abandoned", "error", err)
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn("redis close failed", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// ShutdownTimeout bounds Close in both binaries.
const ShutdownTimeout = 15 * time.Second
