package services

import (
	"context"
	crand "crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"flowstate/internal/infrastructure/logging"
	"flowstate/internal/platform"
)

const (
	DefaultFlushInterval = time.Minute
	DefaultQueueSize     = 64
	shutdownFlushTimeout = 5 * time.Second
)

// ErrTrackerStopped is returned when posting to a tracker whose Run has returned
var ErrTrackerStopped = errors.New("tracker stopped")

// Session is the single live tracking interval. An empty Domain means
// the tracker is idle.
type Session struct {
	ID        string    `json:"id,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// Tracking reports whether the session is attributed to a domain
func (s Session) Tracking() bool {
	return s.Domain != ""
}

// TrackerStats counts what the tracker has done since start
type TrackerStats struct {
	Events          int64 `json:"events"`
	Flushes         int64 `json:"flushes"`
	RecordedMinutes int64 `json:"recordedMinutes"`
	Discarded       int64 `json:"discarded"`
	FlushErrors     int64 `json:"flushErrors"`
	StaleAnswers    int64 `json:"staleAnswers"`
	MalformedURLs   int64 `json:"malformedUrls"`
}

// TrackerStatus is a point-in-time view for status displays
type TrackerStatus struct {
	Session    Session      `json:"session"`
	Generation uint64       `json:"generation"`
	Stats      TrackerStats `json:"stats"`
}

type TrackerConfig struct {
	// FlushInterval checkpoints the open session; 0 disables the ticker
	FlushInterval time.Duration
	QueueSize     int
}

// DefaultTrackerConfig flushes once a minute with a 64 event queue
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{FlushInterval: DefaultFlushInterval, QueueSize: DefaultQueueSize}
}

// Tracker owns the live Session. All events go through one queue that
// Run drains on a single goroutine, so handlers never run concurrently
// and are processed in arrival order.
//
// Every transition bumps the generation. The active tab lookup triggered
// by an "active" idle signal is answered asynchronously; the answer is
// applied only if no transition happened since the query was sent.
type Tracker struct {
	aggregator    *Aggregator
	browser       platform.Browser
	clock         platform.Clock
	logger        logging.Logger
	flushInterval time.Duration
	events        chan Event
	stopped       chan struct{}
	stopOnce      sync.Once
	entropy       io.Reader

	// owned by the Run goroutine
	session        Session
	generation     uint64
	pendingRequest string
	pendingGen     uint64
	stats          TrackerStats

	mu     sync.RWMutex
	status TrackerStatus
}

// NewTracker creates an idle tracker. Zero config values fall back to
// DefaultTrackerConfig except a zero FlushInterval, which disables
// periodic flushes. Call Run to start processing events.
func NewTracker(cfg TrackerConfig, aggregator *Aggregator, browser platform.Browser, clock platform.Clock, logger logging.Logger) *Tracker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.FlushInterval < 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if clock == nil {
		clock = platform.SystemClock{}
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	t := &Tracker{
		aggregator:    aggregator,
		browser:       browser,
		clock:         clock,
		logger:        logger,
		flushInterval: cfg.FlushInterval,
		events:        make(chan Event, cfg.QueueSize),
		stopped:       make(chan struct{}),
		entropy:       ulid.Monotonic(crand.Reader, 0),
	}
	t.session = Session{StartedAt: clock.Now()}
	t.publish()
	return t
}

// Post enqueues ev, blocking while the queue is full
func (t *Tracker) Post(ctx context.Context, ev Event) error {
	select {
	case <-t.stopped:
		return ErrTrackerStopped
	default:
	}

	select {
	case t.events <- ev:
		return nil
	case <-t.stopped:
		return ErrTrackerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync returns once every event posted before it has been handled
func (t *Tracker) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := t.Post(ctx, Event{Kind: eventSync, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-t.stopped:
		return ErrTrackerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the last published session and counters
func (t *Tracker) Status() TrackerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Done is closed when Run has returned
func (t *Tracker) Done() <-chan struct{} {
	return t.stopped
}

// Run processes events until ctx is cancelled. Events already queued are
// handled and the open session is flushed before it returns.
func (t *Tracker) Run(ctx context.Context) error {
	defer t.stopOnce.Do(func() { close(t.stopped) })

	var tick <-chan time.Time
	if t.flushInterval > 0 {
		ticker := time.NewTicker(t.flushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	t.logger.Info("Tracker started", "flushInterval", t.flushInterval.String())

	for {
		select {
		case <-ctx.Done():
			t.shutdown(context.WithoutCancel(ctx))
			return nil
		case ev := <-t.events:
			t.handle(ctx, ev)
		case <-tick:
			t.handle(ctx, FlushTick())
		}
	}
}

func (t *Tracker) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownFlushTimeout)
	defer cancel()

drain:
	for {
		select {
		case ev := <-t.events:
			t.handle(ctx, ev)
		default:
			break drain
		}
	}

	t.closeSession(ctx, t.clock.Now())
	t.publish()
	t.logger.Info("Tracker stopped",
		"flushes", t.stats.Flushes,
		"recordedMinutes", t.stats.RecordedMinutes)
}

func (t *Tracker) handle(ctx context.Context, ev Event) {
	now := t.clock.Now()
	if ev.Kind != eventSync {
		t.stats.Events++
	}

	switch ev.Kind {
	case EventTabActivated:
		t.switchTo(ctx, ev.URL, now)

	case EventTabUpdated:
		if ev.Status != TabStatusComplete && !ev.URLChanged {
			return
		}
		t.switchTo(ctx, ev.URL, now)

	case EventIdleStateChanged:
		switch ev.IdleState {
		case platform.IdleStateIdle, platform.IdleStateLocked:
			t.closeSession(ctx, now)
		case platform.IdleStateActive:
			t.resume(ctx, now)
		default:
			t.logger.Warn("Ignoring unknown idle state", "state", string(ev.IdleState))
		}

	case EventActiveTab:
		t.answer(ctx, ev, now)

	case EventFlushTick:
		t.checkpoint(ctx, now)

	case eventSync:
		close(ev.done)
		return

	default:
		t.logger.Warn("Ignoring unknown tracker event", "kind", ev.Kind.String())
		return
	}

	t.publish()
}

// switchTo closes the open session and starts one on rawURL's host,
// or goes idle when the URL has no usable host.
func (t *Tracker) switchTo(ctx context.Context, rawURL string, now time.Time) {
	domain, err := HostnameFromURL(rawURL)
	if err != nil {
		t.stats.MalformedURLs++
		t.logger.Warn("Cannot resolve tab domain", "url", rawURL, "error", err)
	}

	t.flush(ctx, now)
	t.start(domain, now)
}

// closeSession flushes and goes idle. Pending active tab queries are
// invalidated even when already idle.
func (t *Tracker) closeSession(ctx context.Context, now time.Time) {
	t.flush(ctx, now)
	t.start("", now)
}

// resume goes idle and asks the browser for the foreground tab. The
// session starts when the answer arrives.
func (t *Tracker) resume(ctx context.Context, now time.Time) {
	t.closeSession(ctx, now)

	if t.browser == nil {
		return
	}
	requestID := t.newID(now)
	t.pendingRequest = requestID
	t.pendingGen = t.generation

	if err := t.browser.QueryActiveTab(ctx, requestID); err != nil {
		t.pendingRequest = ""
		t.logger.Warn("Active tab query failed, staying idle", "error", err)
		return
	}
	t.logger.Debug("Queried active tab", "requestId", requestID, "generation", t.generation)
}

func (t *Tracker) answer(ctx context.Context, ev Event, now time.Time) {
	if ev.RequestID == "" || ev.RequestID != t.pendingRequest || t.pendingGen != t.generation {
		t.stats.StaleAnswers++
		t.logger.Debug("Dropping stale active tab answer",
			"requestId", ev.RequestID,
			"generation", t.generation)
		return
	}
	t.pendingRequest = ""
	t.switchTo(ctx, ev.URL, now)
}

// checkpoint books the open session so far and restarts its clock
func (t *Tracker) checkpoint(ctx context.Context, now time.Time) {
	if !t.session.Tracking() {
		return
	}
	t.flush(ctx, now)
	t.session.StartedAt = now
}

// flush hands the open session to the aggregator. Failures are logged;
// callers transition regardless.
func (t *Tracker) flush(ctx context.Context, now time.Time) {
	if !t.session.Tracking() || t.aggregator == nil {
		return
	}

	elapsed := now.Sub(t.session.StartedAt)
	t.stats.Flushes++

	rec, err := t.aggregator.Record(ctx, t.session.Domain, elapsed, now)
	if err != nil {
		t.stats.FlushErrors++
		logging.LogError(t.logger, err, "Tracker.Flush", map[string]interface{}{
			"session":    t.session.ID,
			"domain":     t.session.Domain,
			"elapsed_ms": elapsed.Milliseconds(),
		})
		return
	}
	if !rec.Recorded {
		t.stats.Discarded++
		t.logger.Debug("Discarded short session",
			"session", t.session.ID,
			"domain", t.session.Domain,
			"elapsed_ms", elapsed.Milliseconds())
		return
	}
	t.stats.RecordedMinutes += rec.Minutes
}

// start replaces the session and bumps the generation
func (t *Tracker) start(domain string, now time.Time) {
	t.generation++
	if domain == "" {
		if t.session.Tracking() {
			t.logger.Debug("Tracking paused")
		}
		t.session = Session{StartedAt: now}
		return
	}

	t.session = Session{ID: t.newID(now), Domain: domain, StartedAt: now}
	t.logger.Info("Now tracking", "domain", domain, "session", t.session.ID)
}

func (t *Tracker) newID(now time.Time) string {
	id, err := ulid.New(ulid.Timestamp(now), t.entropy)
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}

func (t *Tracker) publish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TrackerStatus{
		Session:    t.session,
		Generation: t.generation,
		Stats:      t.stats,
	}
}
