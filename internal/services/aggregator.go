package services

import (
	"context"
	"math"
	"time"

	"flowstate/internal/infrastructure/logging"
	"flowstate/internal/repository"
	"flowstate/internal/types"
)

// DefaultMinRecordable is the shortest session worth recording
const DefaultMinRecordable = 6 * time.Second

// Categorizer classifies a hostname
type Categorizer interface {
	Classify(hostname string) types.Category
}

// Recording describes what Record did with a closed session
type Recording struct {
	Domain   string
	Date     string
	Minutes  int64
	Category types.Category
	// Recorded is false when the session was discarded
	Recorded bool
}

// Aggregator turns closed sessions into minute increments on the ledger
type Aggregator struct {
	repo          repository.LedgerRepository
	classifier    Categorizer
	minRecordable time.Duration
	logger        logging.Logger
}

// NewAggregator creates an aggregator that drops sessions shorter than
// minRecordable; zero uses DefaultMinRecordable
func NewAggregator(repo repository.LedgerRepository, classifier Categorizer, minRecordable time.Duration, logger logging.Logger) *Aggregator {
	if minRecordable <= 0 {
		minRecordable = DefaultMinRecordable
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Aggregator{
		repo:          repo,
		classifier:    classifier,
		minRecordable: minRecordable,
		logger:        logger,
	}
}

// ElapsedMinutes rounds elapsed to the nearest whole minute
func ElapsedMinutes(elapsed time.Duration) int64 {
	return int64(math.Round(elapsed.Minutes()))
}

// Record books elapsed time on domain into the bucket for now's date.
// Negative, sub-threshold and zero-minute sessions are discarded without
// touching the ledger.
func (a *Aggregator) Record(ctx context.Context, domain string, elapsed time.Duration, now time.Time) (Recording, error) {
	rec := Recording{Domain: domain, Date: types.DateKey(now)}

	if domain == "" || elapsed < 0 || elapsed < a.minRecordable {
		return rec, nil
	}
	rec.Minutes = ElapsedMinutes(elapsed)
	if rec.Minutes == 0 {
		return rec, nil
	}

	category := a.classifier.Classify(domain)
	err := a.repo.Update(ctx, func(ledger types.Ledger) error {
		rec.Category = ledger.Bucket(rec.Date).AddMinutes(domain, rec.Minutes, category)
		return nil
	})
	if err != nil {
		return rec, err
	}

	rec.Recorded = true
	a.logger.Info("Recorded time",
		"domain", domain,
		"minutes", rec.Minutes,
		"category", string(rec.Category),
		"date", rec.Date)
	return rec, nil
}
