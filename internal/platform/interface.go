package platform

import "context"

// IdleState is the browser's idle detection state
type IdleState string

const (
	IdleStateActive IdleState = "active"
	IdleStateIdle   IdleState = "idle"
	IdleStateLocked IdleState = "locked"
)

// Valid reports whether s is a state the browser emits
func (s IdleState) Valid() bool {
	switch s {
	case IdleStateActive, IdleStateIdle, IdleStateLocked:
		return true
	default:
		return false
	}
}

// DefaultIdleDetectionInterval matches the extension's chrome.idle setting
const DefaultIdleDetectionInterval = 120

// Browser is what the tracker needs from the host browser. Both calls are
// fire-and-forget: the answer to QueryActiveTab arrives later as an
// activeTab event carrying the same request ID.
type Browser interface {
	QueryActiveTab(ctx context.Context, requestID string) error
	SetIdleDetectionInterval(ctx context.Context, seconds int) error
}
