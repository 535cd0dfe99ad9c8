package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"flowstate/internal/classifier"
	"flowstate/internal/platform"
	"flowstate/internal/testutils"
	"flowstate/internal/types"
)

const today = "2024-03-01"

type trackerHarness struct {
	tracker *Tracker
	repo    *MockRepository
	clock   *platform.ManualClock
	browser *platform.Simulator
	logger  *testutils.CaptureLogger
	cancel  context.CancelFunc
}

func newTrackerHarness(t *testing.T) *trackerHarness {
	t.Helper()
	h := &trackerHarness{
		repo:    NewMockRepository(),
		clock:   platform.NewManualClock(testStart),
		browser: platform.NewSimulator(),
		logger:  testutils.NewCaptureLogger(),
	}
	agg := NewAggregator(h.repo, classifier.Default(), 0, h.logger)
	h.tracker = NewTracker(TrackerConfig{FlushInterval: 0}, agg, h.browser, h.clock, h.logger)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.tracker.Run(ctx)
	t.Cleanup(h.stop)
	return h
}

// send posts ev and waits until the tracker has handled it
func (h *trackerHarness) send(t *testing.T, ev Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.tracker.Post(ctx, ev); err != nil {
		t.Fatalf("Post(%s) failed: %v", ev.Kind, err)
	}
	if err := h.tracker.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
}

func (h *trackerHarness) stop() {
	h.cancel()
	<-h.tracker.Done()
}

func (h *trackerHarness) bucket(t *testing.T) *types.DailyBucket {
	t.Helper()
	bucket := h.repo.Snapshot()[today]
	if bucket == nil {
		t.Fatalf("no bucket for %s", today)
	}
	return bucket
}

func assertConsistent(t *testing.T, bucket *types.DailyBucket) {
	t.Helper()
	sums := bucket.SumByCategory()
	for _, c := range []types.Category{types.CategoryProductive, types.CategoryDistracting, types.CategoryNeutral} {
		if sums[c] != bucket.CategoryMinutes(c) {
			t.Errorf("%s total %d != domain sum %d", c, bucket.CategoryMinutes(c), sums[c])
		}
	}
}

func TestTracker_IdleClosesSession(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, TabActivated("https://github.com/org/repo"))
	h.clock.Advance(125 * time.Second)
	h.send(t, IdleStateChanged(platform.IdleStateIdle))

	bucket := h.bucket(t)
	if got := bucket.Domains["github.com"].TimeSpent; got != 2 {
		t.Errorf("github.com timeSpent = %d, want 2", got)
	}
	if bucket.ProductiveMinutes != 2 {
		t.Errorf("ProductiveMinutes = %d, want 2", bucket.ProductiveMinutes)
	}
	if h.tracker.Status().Session.Tracking() {
		t.Error("tracker should be idle")
	}
}

func TestTracker_ShortSessionLeavesNoEntry(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, TabActivated("https://www.youtube.com/watch?v=1"))
	h.clock.Advance(4 * time.Second)
	h.send(t, TabActivated("https://twitter.com/home"))

	if _, ok := h.repo.Snapshot()[today]; ok {
		t.Errorf("short session created a bucket: %v", h.repo.Snapshot())
	}

	status := h.tracker.Status()
	if status.Session.Domain != "twitter.com" {
		t.Errorf("session domain = %q, want twitter.com", status.Session.Domain)
	}
	if !status.Session.StartedAt.Equal(h.clock.Now()) {
		t.Errorf("session should start at the switch, got %v", status.Session.StartedAt)
	}
	if status.Stats.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", status.Stats.Discarded)
	}
}

func TestTracker_PeriodicFlushAccumulatesInParts(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, TabActivated("https://docs.google.com/document/d/1"))
	h.clock.Advance(60 * time.Second)
	h.send(t, FlushTick())
	if got := h.bucket(t).Domains["docs.google.com"].TimeSpent; got != 1 {
		t.Fatalf("after first flush timeSpent = %d, want 1", got)
	}

	h.clock.Advance(60 * time.Second)
	h.send(t, FlushTick())
	h.clock.Advance(65 * time.Second)
	h.send(t, IdleStateChanged(platform.IdleStateLocked))

	bucket := h.bucket(t)
	if got := bucket.Domains["docs.google.com"].TimeSpent; got != 3 {
		t.Errorf("timeSpent = %d, want 3", got)
	}
	if flushes := h.tracker.Status().Stats.Flushes; flushes != 3 {
		t.Errorf("Flushes = %d, want 3", flushes)
	}
	assertConsistent(t, bucket)
}

func TestTracker_FlushTickWhileIdleIsNoop(t *testing.T) {
	h := newTrackerHarness(t)

	h.clock.Advance(10 * time.Minute)
	h.send(t, FlushTick())
	h.send(t, IdleStateChanged(platform.IdleStateIdle))

	if len(h.repo.Snapshot()) != 0 {
		t.Errorf("idle tracker wrote to the ledger: %v", h.repo.Snapshot())
	}
	if _, _, updates, _ := h.repo.GetCallCounts(); updates != 0 {
		t.Errorf("idle tracker issued %d updates", updates)
	}
}

func TestTracker_ActiveResolvesForegroundTab(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, IdleStateChanged(platform.IdleStateActive))
	requestID := h.browser.LastQuery()
	if requestID == "" {
		t.Fatal("expected an active tab query")
	}
	if h.tracker.Status().Session.Tracking() {
		t.Fatal("tracker must stay idle until the answer arrives")
	}

	// a flush tick is not a transition
	h.send(t, FlushTick())
	h.clock.Advance(time.Second)
	h.send(t, ActiveTabAnswer(requestID, "https://reddit.com/r/golang"))

	status := h.tracker.Status()
	if status.Session.Domain != "reddit.com" {
		t.Fatalf("session domain = %q, want reddit.com", status.Session.Domain)
	}
	if !status.Session.StartedAt.Equal(h.clock.Now()) {
		t.Errorf("session should start when the answer is applied")
	}

	// the same answer delivered twice is stale the second time
	h.send(t, ActiveTabAnswer(requestID, "https://github.com"))
	if got := h.tracker.Status().Session.Domain; got != "reddit.com" {
		t.Errorf("duplicate answer changed session to %q", got)
	}
}

func TestTracker_StaleActiveTabAnswerIsDropped(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, IdleStateChanged(platform.IdleStateActive))
	requestID := h.browser.LastQuery()

	// the user switched tabs before the lookup came back
	h.send(t, TabActivated("https://youtube.com"))
	h.send(t, ActiveTabAnswer(requestID, "https://reddit.com"))

	status := h.tracker.Status()
	if status.Session.Domain != "youtube.com" {
		t.Errorf("session domain = %q, want youtube.com", status.Session.Domain)
	}
	if status.Stats.StaleAnswers != 1 {
		t.Errorf("StaleAnswers = %d, want 1", status.Stats.StaleAnswers)
	}
}

func TestTracker_IdleInvalidatesPendingQuery(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, IdleStateChanged(platform.IdleStateActive))
	requestID := h.browser.LastQuery()
	h.send(t, IdleStateChanged(platform.IdleStateIdle))
	h.send(t, ActiveTabAnswer(requestID, "https://reddit.com"))

	if h.tracker.Status().Session.Tracking() {
		t.Error("answer to a query issued before going idle must be dropped")
	}
}

func TestTracker_ActiveQueryFailureStaysIdle(t *testing.T) {
	h := newTrackerHarness(t)
	h.browser.FailQueries(errors.New("port disconnected"))

	h.send(t, TabActivated("https://github.com"))
	h.clock.Advance(2 * time.Minute)
	h.send(t, IdleStateChanged(platform.IdleStateActive))

	if h.tracker.Status().Session.Tracking() {
		t.Error("tracker should be idle after a failed query")
	}
	if h.bucket(t).Domains["github.com"].TimeSpent != 2 {
		t.Error("open session should have been flushed before the query")
	}
	if !h.logger.Contains("WARN", "Active tab query failed") {
		t.Errorf("expected warning, log:\n%s", h.logger)
	}
}

func TestTracker_MalformedURLGoesIdle(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, TabActivated("https://github.com"))
	h.clock.Advance(2 * time.Minute)
	h.send(t, TabActivated("::not a url"))

	status := h.tracker.Status()
	if status.Session.Tracking() {
		t.Errorf("malformed URL should leave the tracker idle, got %+v", status.Session)
	}
	if status.Stats.MalformedURLs != 1 {
		t.Errorf("MalformedURLs = %d, want 1", status.Stats.MalformedURLs)
	}
	if h.bucket(t).Domains["github.com"].TimeSpent != 2 {
		t.Error("previous session should still be flushed")
	}
	if !h.logger.Contains("WARN", "Cannot resolve tab domain") {
		t.Errorf("expected malformed URL warning, log:\n%s", h.logger)
	}
}

func TestTracker_EmptyURLGoesIdleWithoutWarning(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, TabActivated("https://github.com"))
	h.send(t, TabActivated(""))

	if h.tracker.Status().Session.Tracking() {
		t.Error("empty URL should leave the tracker idle")
	}
	if h.logger.Contains("WARN", "Cannot resolve") {
		t.Error("empty URL is not malformed")
	}
}

func TestTracker_TabUpdatedNeedsCompleteOrNewURL(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, TabActivated("https://github.com"))
	h.send(t, TabUpdated("https://youtube.com", "loading", false))
	if got := h.tracker.Status().Session.Domain; got != "github.com" {
		t.Fatalf("loading update without new URL switched to %q", got)
	}

	h.send(t, TabUpdated("https://youtube.com", "loading", true))
	if got := h.tracker.Status().Session.Domain; got != "youtube.com" {
		t.Fatalf("URL change not honoured, domain %q", got)
	}

	h.send(t, TabUpdated("https://reddit.com", TabStatusComplete, false))
	if got := h.tracker.Status().Session.Domain; got != "reddit.com" {
		t.Fatalf("complete update not honoured, domain %q", got)
	}
}

func TestTracker_FlushFailureStillTransitions(t *testing.T) {
	h := newTrackerHarness(t)
	h.repo.SetFailureModes(false, false, true)

	h.send(t, TabActivated("https://github.com"))
	h.clock.Advance(3 * time.Minute)
	h.send(t, TabActivated("https://reddit.com"))

	status := h.tracker.Status()
	if status.Session.Domain != "reddit.com" {
		t.Errorf("transition should happen despite flush failure, domain %q", status.Session.Domain)
	}
	if status.Stats.FlushErrors != 1 {
		t.Errorf("FlushErrors = %d, want 1", status.Stats.FlushErrors)
	}
	if len(h.logger.ByLevel("ERROR")) == 0 {
		t.Errorf("flush failure should be logged, log:\n%s", h.logger)
	}
}

func TestTracker_GenerationBumpsOnTransitions(t *testing.T) {
	h := newTrackerHarness(t)
	start := h.tracker.Status().Generation

	h.send(t, TabActivated("https://github.com"))
	afterSwitch := h.tracker.Status().Generation
	h.send(t, FlushTick())
	afterTick := h.tracker.Status().Generation

	if afterSwitch <= start {
		t.Error("tab switch should bump the generation")
	}
	if afterTick != afterSwitch {
		t.Error("flush tick must not bump the generation")
	}
}

func TestTracker_SessionIDs(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, TabActivated("https://github.com"))
	first := h.tracker.Status().Session.ID
	h.send(t, TabActivated("https://github.com/other"))
	second := h.tracker.Status().Session.ID

	if first == "" || second == "" || first == second {
		t.Errorf("expected distinct session IDs, got %q and %q", first, second)
	}
	if len(first) != 26 {
		t.Errorf("session ID %q is not a ULID", first)
	}
}

func TestTracker_StopFlushesOpenSession(t *testing.T) {
	h := newTrackerHarness(t)

	h.send(t, TabActivated("https://github.com"))
	h.clock.Advance(3 * time.Minute)
	h.stop()

	if got := h.bucket(t).Domains["github.com"].TimeSpent; got != 3 {
		t.Errorf("timeSpent after stop = %d, want 3", got)
	}
	if err := h.tracker.Post(context.Background(), FlushTick()); !errors.Is(err, ErrTrackerStopped) {
		t.Errorf("Post after stop = %v, want ErrTrackerStopped", err)
	}
}

func TestTracker_TickerFlushes(t *testing.T) {
	repo := NewMockRepository()
	clock := platform.NewManualClock(testStart)
	agg := NewAggregator(repo, classifier.Default(), 0, nil)
	tracker := NewTracker(TrackerConfig{FlushInterval: 5 * time.Millisecond}, agg, nil, clock, testutils.NewCaptureLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-tracker.Done()
	}()
	go tracker.Run(ctx)

	if err := tracker.Post(ctx, TabActivated("https://github.com")); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if err := tracker.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	clock.Advance(2 * time.Minute)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if bucket := repo.Snapshot()[today]; bucket != nil && bucket.Domains["github.com"] != nil {
			if got := bucket.Domains["github.com"].TimeSpent; got != 2 {
				t.Fatalf("timeSpent = %d, want 2", got)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("ticker never flushed the open session")
}

// Same-day sessions on varying domains: every domain's total is the sum of
// its rounded pieces that clear the threshold, and category totals match.
func TestTracker_TotalsMatchRoundedPieces(t *testing.T) {
	h := newTrackerHarness(t)
	rng := rand.New(rand.NewSource(42))
	domains := []string{"github.com", "youtube.com", "example.org", "docs.google.com", "reddit.com"}
	want := map[string]int64{}

	for i := 0; i < 60; i++ {
		current := domains[rng.Intn(len(domains))]
		h.send(t, TabActivated("https://"+current+"/page"))

		elapsed := time.Duration(rng.Intn(240_000)) * time.Millisecond
		h.clock.Advance(elapsed)
		if elapsed >= DefaultMinRecordable {
			want[current] += ElapsedMinutes(elapsed)
		}
		if rng.Intn(4) == 0 {
			h.send(t, FlushTick())
		} else {
			h.send(t, IdleStateChanged(platform.IdleStateIdle))
		}
	}

	bucket := h.repo.Snapshot()[today]
	if bucket == nil {
		t.Fatal("no bucket recorded")
	}
	for domain, minutes := range want {
		var got int64
		if entry := bucket.Domains[domain]; entry != nil {
			got = entry.TimeSpent
		}
		if got != minutes {
			t.Errorf("%s: timeSpent = %d, want %d", domain, got, minutes)
		}
	}
	for domain, entry := range bucket.Domains {
		if entry.TimeSpent == 0 {
			t.Errorf("%s: zero-minute entry created", domain)
		}
	}
	assertConsistent(t, bucket)
}
