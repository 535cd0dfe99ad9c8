package services

import (
	"context"
	"math"
	"testing"
	"time"

	"flowstate/internal/classifier"
	"flowstate/internal/infrastructure/errors"
	"flowstate/internal/platform"
	"flowstate/internal/testutils"
	"flowstate/internal/types"
)

func newTestLedgerService() (*LedgerService, *MockRepository, *platform.ManualClock, *testutils.CaptureLogger) {
	repo := NewMockRepository()
	clock := platform.NewManualClock(testStart)
	logger := testutils.NewCaptureLogger()
	return NewLedgerService(repo, classifier.Default(), clock, logger), repo, clock, logger
}

func TestLedgerService_TaskCounterClampsAtZero(t *testing.T) {
	svc, repo, _, _ := newTestLedgerService()
	ctx := context.Background()

	repo.Save(ctx, types.Ledger{today: &types.DailyBucket{
		Domains:           map[string]*types.DomainUsage{"github.com": {TimeSpent: 4, Category: types.CategoryProductive}},
		ProductiveMinutes: 4,
	}})

	total, err := svc.TaskCompleted(ctx)
	if err != nil || total != 1 {
		t.Fatalf("TaskCompleted = %d, %v; want 1", total, err)
	}
	for i := 0; i < 2; i++ {
		if total, err = svc.TaskUncompleted(ctx); err != nil {
			t.Fatalf("TaskUncompleted failed: %v", err)
		}
	}
	if total != 0 {
		t.Errorf("tasksCompleted = %d, want 0", total)
	}

	bucket := repo.Snapshot()[today]
	if bucket.TasksCompleted != 0 {
		t.Errorf("stored tasksCompleted = %d, want 0", bucket.TasksCompleted)
	}
	if bucket.ProductiveMinutes != 4 || bucket.Domains["github.com"].TimeSpent != 4 {
		t.Error("task updates must not touch minutes")
	}
}

// Tracker flushes and task completions interleave without losing either
func TestLedgerService_TaskCompletedDuringTracking(t *testing.T) {
	h := newTrackerHarness(t)
	svc := NewLedgerService(h.repo, classifier.Default(), h.clock, h.logger)
	ctx := context.Background()

	h.send(t, TabActivated("https://github.com"))
	h.clock.Advance(90 * time.Second)
	h.send(t, FlushTick())

	if _, err := svc.TaskCompleted(ctx); err != nil {
		t.Fatalf("TaskCompleted failed: %v", err)
	}

	h.clock.Advance(30 * time.Second)
	h.send(t, IdleStateChanged(platform.IdleStateIdle))

	bucket := h.bucket(t)
	if bucket.TasksCompleted != 1 {
		t.Errorf("tasksCompleted = %d, want 1", bucket.TasksCompleted)
	}
	// 90s rounds to 2, 30s rounds to 1 (round half away from zero)
	if got := bucket.Domains["github.com"].TimeSpent; got != 3 {
		t.Errorf("github.com timeSpent = %d, want 3", got)
	}
	assertConsistent(t, bucket)
}

func TestLedgerService_TodaysBucket(t *testing.T) {
	svc, repo, clock, _ := newTestLedgerService()
	ctx := context.Background()

	bucket, err := svc.TodaysBucket(ctx)
	if err != nil {
		t.Fatalf("TodaysBucket failed: %v", err)
	}
	if bucket.Domains == nil || len(bucket.Domains) != 0 || bucket.TasksCompleted != 0 {
		t.Errorf("expected zero bucket, got %+v", bucket)
	}
	if len(repo.Snapshot()) != 0 {
		t.Error("reading today must not create a bucket")
	}

	if err := svc.EnsureToday(ctx); err != nil {
		t.Fatalf("EnsureToday failed: %v", err)
	}
	if _, ok := repo.Snapshot()[today]; !ok {
		t.Error("EnsureToday did not create today's bucket")
	}

	clock.Advance(15 * time.Hour) // 2024-03-02 00:00 UTC
	if svc.Today() != "2024-03-02" {
		t.Errorf("Today = %s, want 2024-03-02", svc.Today())
	}
}

func TestLedgerService_TodaysBucketPropagatesErrors(t *testing.T) {
	svc, repo, _, _ := newTestLedgerService()
	repo.SetFailureModes(true, false, false)

	if _, err := svc.TodaysBucket(context.Background()); !errors.IsConnection(err) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestLedgerService_TrackWebsite(t *testing.T) {
	tests := []struct {
		name         string
		domain       string
		minutes      int64
		category     string
		wantCategory types.Category
		wantErr      bool
	}{
		{name: "explicit category", domain: "example.org", minutes: 5, category: "productive", wantCategory: types.CategoryProductive},
		{name: "empty category classifies", domain: "youtube.com", minutes: 3, wantCategory: types.CategoryDistracting},
		{name: "unknown category classifies", domain: "github.com", minutes: 2, category: "work", wantCategory: types.CategoryProductive},
		{name: "zero minutes", domain: "example.org", minutes: 0, category: "neutral", wantCategory: types.CategoryNeutral},
		{name: "negative minutes", domain: "example.org", minutes: -1, wantErr: true},
		{name: "a full day", domain: "example.org", minutes: MaxMinutesPerDay, category: "neutral", wantCategory: types.CategoryNeutral},
		{name: "more than a day", domain: "example.org", minutes: MaxMinutesPerDay + 1, wantErr: true},
		{name: "int64 max", domain: "example.org", minutes: math.MaxInt64, wantErr: true},
		{name: "missing domain", domain: "", minutes: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, _ := newTestLedgerService()

			got, err := svc.TrackWebsite(context.Background(), tt.domain, tt.minutes, tt.category)
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if len(repo.Snapshot()) != 0 {
					t.Error("rejected call wrote to the ledger")
				}
				return
			}
			if err != nil {
				t.Fatalf("TrackWebsite failed: %v", err)
			}
			if got != tt.wantCategory {
				t.Errorf("category = %s, want %s", got, tt.wantCategory)
			}

			bucket := repo.Snapshot()[today]
			if bucket.Domains[tt.domain].TimeSpent != tt.minutes {
				t.Errorf("timeSpent = %d, want %d", bucket.Domains[tt.domain].TimeSpent, tt.minutes)
			}
			assertConsistent(t, bucket)
		})
	}
}

func TestLedgerService_TrackWebsiteKeepsFirstCategory(t *testing.T) {
	svc, repo, _, logger := newTestLedgerService()
	ctx := context.Background()

	if _, err := svc.TrackWebsite(ctx, "example.org", 2, "distracting"); err != nil {
		t.Fatal(err)
	}
	got, err := svc.TrackWebsite(ctx, "example.org", 3, "productive")
	if err != nil {
		t.Fatal(err)
	}
	if got != types.CategoryDistracting {
		t.Errorf("category = %s, want distracting", got)
	}

	bucket := repo.Snapshot()[today]
	if bucket.DistractingMinutes != 5 || bucket.ProductiveMinutes != 0 {
		t.Errorf("totals = %d distracting / %d productive", bucket.DistractingMinutes, bucket.ProductiveMinutes)
	}

	if _, err := svc.TrackWebsite(ctx, "github.com", 1, "bogus"); err != nil {
		t.Fatal(err)
	}
	if !logger.Contains("WARN", "Unknown category") {
		t.Error("unknown category should be logged")
	}
}

func TestLedgerService_UpdateProductivity(t *testing.T) {
	svc, repo, _, logger := newTestLedgerService()
	ctx := context.Background()

	err := svc.UpdateProductivity(ctx, map[string]float64{
		FieldProductiveMinutes:  10,
		FieldDistractingMinutes: 4,
		FieldTasksCompleted:     2,
		"focusScore":            99,
	})
	if err != nil {
		t.Fatalf("UpdateProductivity failed: %v", err)
	}
	if err := svc.UpdateProductivity(ctx, map[string]float64{FieldProductiveMinutes: 5, FieldTasksCompleted: -5}); err != nil {
		t.Fatalf("second UpdateProductivity failed: %v", err)
	}

	bucket := repo.Snapshot()[today]
	if bucket.ProductiveMinutes != 15 || bucket.DistractingMinutes != 4 || bucket.NeutralMinutes != 0 {
		t.Errorf("totals = %d/%d/%d, want 15/4/0",
			bucket.ProductiveMinutes, bucket.DistractingMinutes, bucket.NeutralMinutes)
	}
	if bucket.TasksCompleted != 0 {
		t.Errorf("tasksCompleted = %d, want clamp to 0", bucket.TasksCompleted)
	}
	manual := bucket.Domains[ManualDomain(types.CategoryProductive)]
	if manual == nil || manual.TimeSpent != 15 || manual.Category != types.CategoryProductive {
		t.Errorf("manual productive entry = %+v", manual)
	}
	if _, ok := bucket.Domains[ManualDomain(types.CategoryNeutral)]; ok {
		t.Error("no neutral entry should be created without neutral minutes")
	}
	assertConsistent(t, bucket)

	if !logger.Contains("WARN", "unknown productivity field") {
		t.Error("unknown field should be logged")
	}
}

func TestLedgerService_UpdateProductivityRejects(t *testing.T) {
	tests := []struct {
		name   string
		deltas map[string]float64
	}{
		{name: "fractional", deltas: map[string]float64{FieldNeutralMinutes: 1.5}},
		{name: "negative minutes", deltas: map[string]float64{FieldProductiveMinutes: -3}},
		{name: "not a number", deltas: map[string]float64{FieldTasksCompleted: math.NaN()}},
		{name: "infinite", deltas: map[string]float64{FieldTasksCompleted: math.Inf(1)}},
		{name: "beyond int64", deltas: map[string]float64{FieldProductiveMinutes: 1e20}},
		{name: "more than a day", deltas: map[string]float64{FieldNeutralMinutes: MaxMinutesPerDay + 1}},
		{name: "huge task decrement", deltas: map[string]float64{FieldTasksCompleted: -1e19}},
		{name: "one bad field", deltas: map[string]float64{FieldTasksCompleted: 1, FieldDistractingMinutes: 1e300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, _ := newTestLedgerService()
			if err := svc.UpdateProductivity(context.Background(), tt.deltas); !errors.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, _, updates, _ := repo.GetCallCounts(); updates != 0 {
				t.Error("rejected update reached the repository")
			}
		})
	}
}

func TestLedgerService_UpdateProductivityNoop(t *testing.T) {
	svc, repo, _, _ := newTestLedgerService()
	if err := svc.UpdateProductivity(context.Background(), map[string]float64{"streak": 1}); err != nil {
		t.Fatal(err)
	}
	if _, _, updates, _ := repo.GetCallCounts(); updates != 0 {
		t.Error("only unknown fields should not write")
	}
}

func TestLedgerService_RecentBuckets(t *testing.T) {
	svc, repo, _, _ := newTestLedgerService()
	ctx := context.Background()

	ledger := types.Ledger{}
	for _, date := range []string{"2024-02-25", "2024-02-28", "2024-03-01", "2024-02-29"} {
		ledger.Bucket(date).AddTasksCompleted(1)
	}
	repo.Save(ctx, ledger)

	seq, err := svc.RecentBuckets(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for date := range seq {
		got = append(got, date)
	}
	want := []string{"2024-03-01", "2024-02-29", "2024-02-28"}
	if len(got) != len(want) {
		t.Fatalf("dates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dates[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLedgerService_Prune(t *testing.T) {
	svc, repo, _, _ := newTestLedgerService()
	ctx := context.Background()

	ledger := types.Ledger{}
	for _, date := range []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"} {
		ledger.Bucket(date)
	}
	repo.Save(ctx, ledger)

	removed, err := svc.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	remaining := repo.Snapshot().Dates()
	if len(remaining) != 2 || remaining[0] != "2024-03-01" || remaining[1] != "2024-02-29" {
		t.Errorf("remaining = %v", remaining)
	}

	if _, err := svc.Prune(ctx, 0); !errors.IsValidation(err) {
		t.Errorf("keepDays 0 should be rejected, got %v", err)
	}
}
