package app

import (
	"context"
	"fmt"
	"time"

	"flowstate/internal/config"
	"flowstate/internal/infrastructure/errors"
	"flowstate/internal/infrastructure/logging"
	"flowstate/internal/platform"
	"flowstate/internal/types"
)

const (
	healthCheckTimeout = 5 * time.Second
	defaultRecentDays  = 30
)

// DaySummary is one day of the ledger as sent to the dashboard
type DaySummary struct {
	Date   string            `json:"date"`
	Bucket types.DailyBucket `json:"bucket"`
}

// App is the dashboard window's backend. Its exported methods are bound
// to the frontend. The dashboard runs alongside the background host and
// only reads the ledger or writes task deltas.
type App struct {
	ctx    context.Context
	rt     *Runtime
	logger logging.Logger
}

// NewApp opens the ledger for the dashboard
func NewApp(cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	rt, err := NewRuntime(context.Background(), cfg, platform.SystemClock{}, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		ctx:    context.Background(),
		rt:     rt,
		logger: logger,
	}, nil
}

// Startup is called at application startup
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx

	if err := a.checkDatabase(ctx); err != nil {
		logging.LogError(a.logger, err, "App.Startup", nil)
		return
	}
	a.logger.Info("Dashboard started", "environment", a.rt.Config.Database.Environment)
}

func (a *App) checkDatabase(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := a.rt.DB.Health(healthCtx); err != nil {
		return errors.NewRepositoryErrorWithContext("startup",
			err,
			errors.ClassifyError(err),
			map[string]string{
				"operation": "health_check",
				"db_path":   a.rt.Config.Database.Path,
			})
	}
	return nil
}

// DomReady is called after front-end resources have been loaded
func (a *App) DomReady(ctx context.Context) {}

// BeforeClose is called when the application is about to quit
func (a *App) BeforeClose(ctx context.Context) (prevent bool) {
	return false
}

// Shutdown is called at application termination
func (a *App) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := a.rt.Close(shutdownCtx); err != nil {
		if errors.IsTimeout(err) {
			a.logger.Warn("Database did not close in time", "timeout", shutdownTimeout)
			return
		}
		logging.LogError(a.logger, err, "App.Shutdown", nil)
		return
	}
	a.logger.Info("Dashboard stopped")
}

// GetTodaysBucket returns today's totals, zero when nothing was tracked yet
func (a *App) GetTodaysBucket() (types.DailyBucket, error) {
	return a.rt.Ledger.TodaysBucket(a.ctx)
}

// GetRecentDays returns up to days of the newest tracked days, newest first
func (a *App) GetRecentDays(days int) ([]DaySummary, error) {
	if days <= 0 {
		days = defaultRecentDays
	}

	seq, err := a.rt.Ledger.RecentBuckets(a.ctx, days)
	if err != nil {
		return nil, err
	}

	out := make([]DaySummary, 0, days)
	for date, bucket := range seq {
		out = append(out, DaySummary{Date: date, Bucket: bucket})
	}
	return out, nil
}

// GetTopDomains returns today's domains by time spent
func (a *App) GetTopDomains(limit int) ([]types.DomainStat, error) {
	bucket, err := a.rt.Ledger.TodaysBucket(a.ctx)
	if err != nil {
		return nil, err
	}
	return bucket.TopDomains(limit), nil
}

// GetTrackingData returns the whole ledger
func (a *App) GetTrackingData() (types.Ledger, error) {
	return a.rt.Ledger.GetTrackingData(a.ctx)
}

// CompleteTask records a completed task for today and returns the new count
func (a *App) CompleteTask() (int64, error) {
	return a.rt.Ledger.TaskCompleted(a.ctx)
}

// UncompleteTask reverses CompleteTask, never going below zero
func (a *App) UncompleteTask() (int64, error) {
	return a.rt.Ledger.TaskUncompleted(a.ctx)
}

// ClassifyDomain returns the category a hostname would be booked under
func (a *App) ClassifyDomain(domain string) string {
	return string(a.rt.Ledger.Classify(domain))
}

// CleanupOldData removes days older than retentionDays
func (a *App) CleanupOldData(retentionDays int) (int, error) {
	removed, err := a.rt.Ledger.Prune(a.ctx, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	return removed, nil
}

// GetLogger returns the application's structured logger
func (a *App) GetLogger() logging.Logger {
	return a.logger
}
