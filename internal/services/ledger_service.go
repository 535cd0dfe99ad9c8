package services

import (
	"context"
	"fmt"
	"iter"
	"math"
	"strconv"

	"flowstate/internal/infrastructure/errors"
	"flowstate/internal/infrastructure/logging"
	"flowstate/internal/platform"
	"flowstate/internal/repository"
	"flowstate/internal/types"
)

// Fields accepted by UpdateProductivity
const (
	FieldProductiveMinutes  = "productiveMinutes"
	FieldDistractingMinutes = "distractingMinutes"
	FieldNeutralMinutes     = "neutralMinutes"
	FieldTasksCompleted     = "tasksCompleted"
)

// MaxMinutesPerDay bounds any single manual delta
const MaxMinutesPerDay = 24 * 60

// ManualDomain is the ledger entry that absorbs category minutes added
// without a domain, keeping category totals equal to the domain sum.
func ManualDomain(category types.Category) string {
	return "manual:" + string(category)
}

// LedgerService is the query and update surface used by the extension UI,
// the dashboard and the CLI. Every write is a delta through
// LedgerRepository.Update.
type LedgerService struct {
	repo       repository.LedgerRepository
	classifier Categorizer
	clock      platform.Clock
	logger     logging.Logger
}

// NewLedgerService creates the ledger facade used by the host, the
// dashboard and the CLI
func NewLedgerService(repo repository.LedgerRepository, classifier Categorizer, clock platform.Clock, logger logging.Logger) *LedgerService {
	if clock == nil {
		clock = platform.SystemClock{}
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &LedgerService{repo: repo, classifier: classifier, clock: clock, logger: logger}
}

// Today returns the ledger key for the current day
func (s *LedgerService) Today() string {
	return types.DateKey(s.clock.Now())
}

// EnsureToday creates today's zero bucket if it does not exist yet
func (s *LedgerService) EnsureToday(ctx context.Context) error {
	today := s.Today()
	return s.repo.Update(ctx, func(ledger types.Ledger) error {
		ledger.Bucket(today)
		return nil
	})
}

// GetTrackingData returns the whole ledger
func (s *LedgerService) GetTrackingData(ctx context.Context) (types.Ledger, error) {
	return s.repo.Load(ctx)
}

// TodaysBucket returns today's bucket, or a zero bucket when none exists
func (s *LedgerService) TodaysBucket(ctx context.Context) (types.DailyBucket, error) {
	bucket, err := s.repo.GetBucket(ctx, s.Today())
	if errors.IsNotFound(err) {
		return *types.NewDailyBucket(), nil
	}
	if err != nil {
		return types.DailyBucket{}, err
	}
	return *bucket, nil
}

// RecentBuckets yields up to n of the newest days present, newest first
func (s *LedgerService) RecentBuckets(ctx context.Context, n int) (iter.Seq2[string, types.DailyBucket], error) {
	return s.repo.RecentBuckets(ctx, n)
}

// TaskCompleted counts one more completed task today and returns the total
func (s *LedgerService) TaskCompleted(ctx context.Context) (int64, error) {
	return s.adjustTasks(ctx, 1)
}

// TaskUncompleted reverses a completion; the counter never goes below zero
func (s *LedgerService) TaskUncompleted(ctx context.Context) (int64, error) {
	return s.adjustTasks(ctx, -1)
}

func (s *LedgerService) adjustTasks(ctx context.Context, delta int64) (int64, error) {
	today := s.Today()
	total, err := s.repo.IncrementTasksCompleted(ctx, today, delta)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Tasks completed changed", "date", today, "delta", delta, "total", total)
	return total, nil
}

// TrackWebsite adds minutes to domain directly, bypassing the session
// debounce. minutes must lie in [0, MaxMinutesPerDay]. An empty or
// unknown category is resolved by the classifier.
// A domain already present today keeps its category.
func (s *LedgerService) TrackWebsite(ctx context.Context, domain string, minutes int64, category string) (types.Category, error) {
	if domain == "" {
		return "", errors.HandleValidationError("TrackWebsite", "domain", domain, "domain is required")
	}
	if minutes < 0 {
		return "", errors.HandleValidationError("TrackWebsite", "timeSpent", strconv.FormatInt(minutes, 10), "time spent cannot be negative")
	}
	if minutes > MaxMinutesPerDay {
		return "", errors.HandleValidationError("TrackWebsite", "timeSpent", strconv.FormatInt(minutes, 10), "time spent exceeds one day")
	}

	cat, ok := types.ParseCategory(category)
	if !ok {
		cat = s.classifier.Classify(domain)
		if category != "" {
			s.logger.Warn("Unknown category, classifying domain instead", "category", category, "domain", domain)
		}
	}

	today := s.Today()
	var booked types.Category
	err := s.repo.Update(ctx, func(ledger types.Ledger) error {
		booked = ledger.Bucket(today).AddMinutes(domain, minutes, cat)
		return nil
	})
	if err != nil {
		return "", err
	}
	return booked, nil
}

// UpdateProductivity merges additive deltas into today's bucket. Category
// minute deltas are booked against ManualDomain entries and must not be
// negative; tasksCompleted may go down but clamps at zero. No delta may
// exceed MaxMinutesPerDay in magnitude. Unknown fields are ignored.
func (s *LedgerService) UpdateProductivity(ctx context.Context, deltas map[string]float64) error {
	type change struct {
		category types.Category
		minutes  int64
	}
	var changes []change
	var taskDelta int64

	for field, raw := range deltas {
		if raw != math.Trunc(raw) || math.IsInf(raw, 0) {
			return errors.HandleValidationError("UpdateProductivity", field, fmt.Sprint(raw), "delta must be a whole number")
		}
		if math.Abs(raw) > MaxMinutesPerDay {
			return errors.HandleValidationError("UpdateProductivity", field, fmt.Sprint(raw), "delta exceeds one day")
		}
		delta := int64(raw)

		switch field {
		case FieldTasksCompleted:
			taskDelta += delta
		case FieldProductiveMinutes, FieldDistractingMinutes, FieldNeutralMinutes:
			if delta < 0 {
				return errors.HandleValidationError("UpdateProductivity", field, fmt.Sprint(raw), "minutes cannot decrease")
			}
			changes = append(changes, change{category: categoryForField(field), minutes: delta})
		default:
			s.logger.Warn("Ignoring unknown productivity field", "field", field)
		}
	}

	if len(changes) == 0 && taskDelta == 0 {
		return nil
	}

	today := s.Today()
	return s.repo.Update(ctx, func(ledger types.Ledger) error {
		bucket := ledger.Bucket(today)
		for _, c := range changes {
			if c.minutes > 0 {
				bucket.AddMinutes(ManualDomain(c.category), c.minutes, c.category)
			}
		}
		bucket.AddTasksCompleted(taskDelta)
		return nil
	})
}

func categoryForField(field string) types.Category {
	switch field {
	case FieldProductiveMinutes:
		return types.CategoryProductive
	case FieldDistractingMinutes:
		return types.CategoryDistracting
	default:
		return types.CategoryNeutral
	}
}

// Prune removes buckets older than keepDays days before today
func (s *LedgerService) Prune(ctx context.Context, keepDays int) (int, error) {
	if keepDays < 1 {
		return 0, errors.HandleValidationError("Prune", "keepDays", strconv.Itoa(keepDays), "must keep at least one day")
	}
	before := types.DateKey(s.clock.Now().UTC().AddDate(0, 0, -(keepDays - 1)))
	return s.repo.Prune(ctx, before)
}

// Classify exposes the configured classifier
func (s *LedgerService) Classify(domain string) types.Category {
	return s.classifier.Classify(domain)
}
