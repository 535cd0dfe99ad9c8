package app

import (
	"context"
	"fmt"
	"time"

	"flowstate/internal/classifier"
	"flowstate/internal/config"
	"flowstate/internal/database"
	"flowstate/internal/infrastructure/errors"
	"flowstate/internal/infrastructure/logging"
	"flowstate/internal/platform"
	"flowstate/internal/repository"
	"flowstate/internal/services"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Runtime is the wiring shared by the host, the dashboard and the CLI:
// one database handle, the ledger repository and the services on top.
type Runtime struct {
	Config     *config.Config
	DB         *database.SQLiteService
	Repository repository.LedgerRepository
	Classifier *classifier.Classifier
	Ledger     *services.LedgerService
	Clock      platform.Clock
	Logger     logging.Logger
}

// NewRuntime opens the ledger database and builds the services on it
func NewRuntime(ctx context.Context, cfg *config.Config, clock platform.Clock, logger logging.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if clock == nil {
		clock = platform.SystemClock{}
	}
	errors.SetDefaultRetryLogger(logger)

	openCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	db, err := database.Open(openCtx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewSQLiteRepositoryWithPreparedQueries(openCtx, db, logger)
	if err != nil {
		logger.Warn("Prepared statements unavailable, using plain queries", "error", err)
		repo = repository.NewSQLiteRepository(db, logger)
	}

	cls := cfg.NewClassifier()
	return &Runtime{
		Config:     cfg,
		DB:         db,
		Repository: repo,
		Classifier: cls,
		Ledger:     services.NewLedgerService(repo, cls, clock, logger),
		Clock:      clock,
		Logger:     logger,
	}, nil
}

// NewAggregator builds an aggregator with the configured debounce threshold
func (r *Runtime) NewAggregator() *services.Aggregator {
	return services.NewAggregator(r.Repository, r.Classifier, r.Config.Tracking.MinRecordable, r.Logger)
}

// TrackerConfig converts the tracking settings for services.NewTracker
func (r *Runtime) TrackerConfig() services.TrackerConfig {
	cfg := services.DefaultTrackerConfig()
	cfg.FlushInterval = r.Config.Tracking.FlushInterval
	if r.Config.Tracking.QueueSize > 0 {
		cfg.QueueSize = r.Config.Tracking.QueueSize
	}
	return cfg
}

// Close releases the database, giving up after ctx expires
func (r *Runtime) Close(ctx context.Context) error {
	if r.DB == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- r.DB.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return errors.NewRepositoryErrorWithContext("shutdown", err, errors.ClassifyError(err),
				map[string]string{"operation": "close_connection"})
		}
		return nil
	case <-ctx.Done():
		return errors.NewRepositoryError("shutdown", fmt.Errorf("database close timed out: %w", ctx.Err()), errors.ErrCodeTimeout)
	}
}
