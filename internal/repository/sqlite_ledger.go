package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"flowstate/internal/database"
	queries "flowstate/internal/database/generated"
	repoerrors "flowstate/internal/infrastructure/errors"
	"flowstate/internal/infrastructure/logging"
	"flowstate/internal/types"
)

// SQLiteRepository stores the ledger in the kv_store table. Every write
// through Update is a compare-and-swap on the row version.
type SQLiteRepository struct {
	queries     *queries.Queries
	dbService   database.Service
	retryConfig *repoerrors.RetryConfig
	logger      logging.Logger
}

var _ LedgerRepository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a ledger repository with the default retry policy
func NewSQLiteRepository(dbService database.Service, logger logging.Logger) *SQLiteRepository {
	return NewSQLiteRepositoryWithConfig(dbService, nil, logger)
}

// NewSQLiteRepositoryWithConfig creates a ledger repository with a custom retry policy
func NewSQLiteRepositoryWithConfig(dbService database.Service, retryConfig *repoerrors.RetryConfig, logger logging.Logger) *SQLiteRepository {
	if retryConfig == nil {
		retryConfig = repoerrors.DefaultRetryConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &SQLiteRepository{
		queries:     dbService.GetQueries(),
		dbService:   dbService,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

// NewSQLiteRepositoryWithPreparedQueries uses the service's shared
// prepared statements. The background host writes every minute, so it
// takes this constructor.
func NewSQLiteRepositoryWithPreparedQueries(ctx context.Context, dbService database.Service, logger logging.Logger) (*SQLiteRepository, error) {
	preparedQueries, err := dbService.GetPreparedQueries(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteRepositoryWithPreparedQueries: failed to get prepared queries: %w", err)
	}

	repo := NewSQLiteRepository(dbService, logger)
	repo.queries = preparedQueries
	return repo, nil
}

// read loads the ledger and its row version. A missing row is version 0.
// An undecodable blob is logged and replaced by an empty ledger; its
// version is kept so the next write overwrites it.
func (r *SQLiteRepository) read(ctx context.Context) (types.Ledger, int64, error) {
	row, err := r.queries.GetValue(ctx, LedgerKey)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Ledger{}, 0, nil
	}
	if err != nil {
		return nil, 0, repoerrors.WrapDatabaseErrorWithContext("Ledger.Read", err, map[string]string{
			"key": LedgerKey,
		})
	}

	ledger, err := decodeLedger(row.Value)
	if repoerrors.IsCorruption(err) {
		logging.LogError(r.logger, err, "Ledger.Read", map[string]interface{}{
			"version": row.Version,
			"bytes":   len(row.Value),
		})
		r.logger.Warn("Persisted ledger is unreadable, continuing with an empty ledger")
		return types.Ledger{}, row.Version, nil
	}
	if err != nil {
		return nil, 0, err
	}

	return ledger, row.Version, nil
}

// write commits ledger if the stored version still equals version
func (r *SQLiteRepository) write(ctx context.Context, ledger types.Ledger, version int64) error {
	data, err := json.Marshal(ledger)
	if err != nil {
		return repoerrors.NewRepositoryError("Ledger.Write", err, repoerrors.ErrCodeInternal)
	}

	var affected int64
	if version == 0 {
		affected, err = r.queries.InsertValue(ctx, queries.InsertValueParams{Key: LedgerKey, Value: data})
	} else {
		affected, err = r.queries.CompareAndSwapValue(ctx, queries.CompareAndSwapValueParams{
			Value:   data,
			Key:     LedgerKey,
			Version: version,
		})
	}
	if err != nil {
		return repoerrors.WrapDatabaseErrorWithContext("Ledger.Write", err, map[string]string{
			"key": LedgerKey,
		})
	}
	if affected == 0 {
		return repoerrors.HandleConflictError("Ledger.Write", LedgerKey, version)
	}
	return nil
}

// Load returns the whole ledger; a missing or unreadable blob is an empty ledger
func (r *SQLiteRepository) Load(ctx context.Context) (types.Ledger, error) {
	var ledger types.Ledger
	err := repoerrors.WithRetryContext(ctx, r.retryConfig, func() error {
		var err error
		ledger, _, err = r.read(ctx)
		return err
	}, "Ledger.Load")
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// Save replaces the stored ledger regardless of its version
func (r *SQLiteRepository) Save(ctx context.Context, ledger types.Ledger) error {
	if ledger == nil {
		ledger = types.Ledger{}
	}
	data, err := json.Marshal(ledger)
	if err != nil {
		return repoerrors.NewRepositoryError("Ledger.Save", err, repoerrors.ErrCodeInternal)
	}

	return repoerrors.WithRetryContext(ctx, r.retryConfig, func() error {
		if _, err := r.queries.UpsertValue(ctx, queries.UpsertValueParams{Key: LedgerKey, Value: data}); err != nil {
			return repoerrors.WrapDatabaseError("Ledger.Save", err)
		}
		return nil
	}, "Ledger.Save")
}

// Update applies fn to the current ledger and commits it with a
// compare-and-swap on the row version, retrying on conflict. fn may run
// more than once and must not keep the ledger it is given.
func (r *SQLiteRepository) Update(ctx context.Context, fn func(types.Ledger) error) error {
	start := time.Now()
	attempts := 0

	err := repoerrors.WithRetryContext(ctx, r.retryConfig, func() error {
		attempts++
		ledger, version, err := r.read(ctx)
		if err != nil {
			return err
		}
		if err := fn(ledger); err != nil {
			return err
		}
		err = r.write(ctx, ledger, version)
		if repoerrors.IsConflict(err) {
			r.logger.Debug("Ledger changed underneath update, retrying", "version", version, "attempt", attempts)
		}
		return err
	}, "Ledger.Update")
	if err != nil {
		return err
	}

	logging.LogOperation(r.logger, "Ledger.Update", time.Since(start), map[string]interface{}{
		"attempts": attempts,
	})
	return nil
}

// GetBucket returns a copy of the bucket for date, or a NOT_FOUND error
func (r *SQLiteRepository) GetBucket(ctx context.Context, date string) (*types.DailyBucket, error) {
	ledger, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	bucket, ok := ledger[date]
	if !ok {
		return nil, repoerrors.HandleNotFound("GetBucket", "bucket", date)
	}
	return bucket, nil
}

// IncrementTasksCompleted adds delta to the day's task counter, clamping
// at zero, and returns the new count
func (r *SQLiteRepository) IncrementTasksCompleted(ctx context.Context, date string, delta int64) (int64, error) {
	var total int64
	err := r.Update(ctx, func(ledger types.Ledger) error {
		bucket := ledger.Bucket(date)
		bucket.AddTasksCompleted(delta)
		total = bucket.TasksCompleted
		return nil
	})
	return total, err
}

// RecentBuckets yields copies of the n newest buckets, newest first
func (r *SQLiteRepository) RecentBuckets(ctx context.Context, n int) (iter.Seq2[string, types.DailyBucket], error) {
	ledger, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return recentBuckets(ledger, n), nil
}

// Prune deletes every bucket dated before before and returns how many
// were removed
func (r *SQLiteRepository) Prune(ctx context.Context, before string) (int, error) {
	if _, err := types.ParseDateKey(before); err != nil {
		return 0, repoerrors.HandleValidationError("Prune", "before", before, "expected YYYY-MM-DD")
	}

	var removed int
	err := r.Update(ctx, func(ledger types.Ledger) error {
		removed = 0
		for date := range ledger {
			if date < before {
				delete(ledger, date)
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info("Pruned ledger", "before", before, "removed", removed)
	return removed, nil
}

// decodeLedger parses a persisted blob and repairs missing maps so every
// bucket is zero-initialized. Unparseable blobs are CORRUPTION errors.
func decodeLedger(data []byte) (types.Ledger, error) {
	var ledger types.Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, repoerrors.HandleCorruptionError("Ledger.Decode", LedgerKey, err.Error())
	}
	if ledger == nil {
		return types.Ledger{}, nil
	}
	for date, bucket := range ledger {
		if _, err := types.ParseDateKey(date); err != nil {
			return nil, repoerrors.HandleCorruptionError("Ledger.Decode", LedgerKey, fmt.Sprintf("invalid date key %q: %v", date, err))
		}
		if bucket == nil {
			delete(ledger, date)
			continue
		}
		for name, entry := range bucket.Domains {
			if entry == nil {
				delete(bucket.Domains, name)
			}
		}
		ledger.Bucket(date)
	}
	return ledger, nil
}
