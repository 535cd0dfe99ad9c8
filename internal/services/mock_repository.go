package services

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"flowstate/internal/infrastructure/errors"
	"flowstate/internal/repository"
	"flowstate/internal/types"
)

// MockRepository is an in-memory LedgerRepository for tests
type MockRepository struct {
	mu               sync.RWMutex
	ledger           types.Ledger
	loadCallCount    int
	saveCallCount    int
	updateCallCount  int
	pruneCallCount   int
	shouldFailLoad   bool
	shouldFailSave   bool
	shouldFailUpdate bool
}

var _ repository.LedgerRepository = (*MockRepository)(nil)

// NewMockRepository returns an empty in-memory ledger repository
func NewMockRepository() *MockRepository {
	return &MockRepository{ledger: types.Ledger{}}
}

// SetFailureModes makes the matching calls fail with a connection error
func (m *MockRepository) SetFailureModes(load, save, update bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailLoad = load
	m.shouldFailSave = save
	m.shouldFailUpdate = update
}

// GetCallCounts returns how often each method was called
func (m *MockRepository) GetCallCounts() (load, save, update, prune int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadCallCount, m.saveCallCount, m.updateCallCount, m.pruneCallCount
}

// Snapshot returns a copy of the stored ledger without counting as a call
func (m *MockRepository) Snapshot() types.Ledger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Clone()
}

// Load returns a copy of the ledger or the configured load error
func (m *MockRepository) Load(ctx context.Context) (types.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loadCallCount++
	if m.shouldFailLoad {
		return nil, errors.NewRepositoryError("Load", fmt.Errorf("mock load failure"), errors.ErrCodeConnection)
	}
	return m.ledger.Clone(), nil
}

// Save replaces the ledger
func (m *MockRepository) Save(ctx context.Context, ledger types.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveCallCount++
	if m.shouldFailSave {
		return errors.NewRepositoryError("Save", fmt.Errorf("mock save failure"), errors.ErrCodeConnection)
	}
	m.ledger = ledger.Clone()
	return nil
}

// Update applies fn to a copy and keeps it only if fn succeeds
func (m *MockRepository) Update(ctx context.Context, fn func(types.Ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCallCount++
	if m.shouldFailUpdate {
		return errors.NewRepositoryError("Update", fmt.Errorf("mock update failure"), errors.ErrCodeConnection)
	}

	working := m.ledger.Clone()
	if err := fn(working); err != nil {
		return err
	}
	m.ledger = working
	return nil
}

// GetBucket returns a copy of the bucket for date
func (m *MockRepository) GetBucket(ctx context.Context, date string) (*types.DailyBucket, error) {
	ledger, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	bucket, ok := ledger[date]
	if !ok {
		return nil, errors.HandleNotFound("GetBucket", "bucket", date)
	}
	return bucket, nil
}

// IncrementTasksCompleted adjusts the day's task counter
func (m *MockRepository) IncrementTasksCompleted(ctx context.Context, date string, delta int64) (int64, error) {
	var total int64
	err := m.Update(ctx, func(ledger types.Ledger) error {
		bucket := ledger.Bucket(date)
		bucket.AddTasksCompleted(delta)
		total = bucket.TasksCompleted
		return nil
	})
	return total, err
}

// RecentBuckets yields the n newest buckets
func (m *MockRepository) RecentBuckets(ctx context.Context, n int) (iter.Seq2[string, types.DailyBucket], error) {
	ledger, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	dates := ledger.Dates()
	if n >= 0 && len(dates) > n {
		dates = dates[:n]
	}
	return func(yield func(string, types.DailyBucket) bool) {
		for _, date := range dates {
			if !yield(date, *ledger[date]) {
				return
			}
		}
	}, nil
}

// Prune removes buckets dated before before
func (m *MockRepository) Prune(ctx context.Context, before string) (int, error) {
	m.mu.Lock()
	m.pruneCallCount++
	m.mu.Unlock()

	removed := 0
	err := m.Update(ctx, func(ledger types.Ledger) error {
		for date := range ledger {
			if date < before {
				delete(ledger, date)
				removed++
			}
		}
		return nil
	})
	return removed, err
}
