package repository

import (
	"context"
	"iter"

	"flowstate/internal/types"
)

// LedgerKey is the storage key of the serialized ledger blob
const LedgerKey = "flowstate-tracking-data"

// LedgerRepository persists the date-keyed ledger as a single versioned blob.
//
// Update is the write path for every component: fn receives the freshly
// loaded ledger, mutates it in place and the result is committed only if
// no other writer committed in between. A lost race is retried with a new
// read, so fn may run more than once and must only apply its own delta.
type LedgerRepository interface {
	Load(ctx context.Context) (types.Ledger, error)
	// Save replaces the whole ledger unconditionally (last writer wins)
	Save(ctx context.Context, ledger types.Ledger) error
	Update(ctx context.Context, fn func(types.Ledger) error) error

	GetBucket(ctx context.Context, date string) (*types.DailyBucket, error)
	IncrementTasksCompleted(ctx context.Context, date string, delta int64) (int64, error)
	RecentBuckets(ctx context.Context, n int) (iter.Seq2[string, types.DailyBucket], error)

	// Prune deletes every bucket dated strictly before date
	Prune(ctx context.Context, before string) (int, error)
}

// recentBuckets yields the n newest buckets of ledger, newest first
func recentBuckets(ledger types.Ledger, n int) iter.Seq2[string, types.DailyBucket] {
	dates := ledger.Dates()
	if n >= 0 && len(dates) > n {
		dates = dates[:n]
	}
	return func(yield func(string, types.DailyBucket) bool) {
		for _, date := range dates {
			if !yield(date, *ledger[date].Clone()) {
				return
			}
		}
	}
}
