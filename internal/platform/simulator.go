package platform

import (
	"context"
	"sync"
)

// Simulator is an in-memory Browser that records the host's requests
type Simulator struct {
	mu               sync.Mutex
	queries          []string
	idleIntervals    []int
	failQueries      error
	onQueryActiveTab func(requestID string)
}

var _ Browser = (*Simulator)(nil)

// NewSimulator returns a Simulator with no recorded requests
func NewSimulator() *Simulator {
	return &Simulator{}
}

// FailQueries makes QueryActiveTab return err until reset with nil
func (s *Simulator) FailQueries(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failQueries = err
}

// OnQueryActiveTab registers a hook run after each recorded query.
// Hooks must not block the caller.
func (s *Simulator) OnQueryActiveTab(fn func(requestID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onQueryActiveTab = fn
}

func (s *Simulator) QueryActiveTab(ctx context.Context, requestID string) error {
	s.mu.Lock()
	if s.failQueries != nil {
		err := s.failQueries
		s.mu.Unlock()
		return err
	}
	s.queries = append(s.queries, requestID)
	hook := s.onQueryActiveTab
	s.mu.Unlock()

	if hook != nil {
		hook(requestID)
	}
	return nil
}

func (s *Simulator) SetIdleDetectionInterval(ctx context.Context, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleIntervals = append(s.idleIntervals, seconds)
	return nil
}

// Queries returns the request IDs of every active tab query so far
func (s *Simulator) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// LastQuery returns the most recent request ID, or "" if none
func (s *Simulator) LastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return ""
	}
	return s.queries[len(s.queries)-1]
}

// IdleIntervals returns every interval passed to SetIdleDetectionInterval
func (s *Simulator) IdleIntervals() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.idleIntervals...)
}
