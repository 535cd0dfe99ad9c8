package services

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"flowstate/internal/platform"
)

// ErrMalformedURL is returned for tab URLs without a parseable host
var ErrMalformedURL = errors.New("malformed url")

// EventKind identifies an inbound tracker event
type EventKind int

const (
	EventTabActivated EventKind = iota + 1
	EventTabUpdated
	EventIdleStateChanged
	EventActiveTab
	EventFlushTick
	eventSync
)

func (k EventKind) String() string {
	switch k {
	case EventTabActivated:
		return "tabActivated"
	case EventTabUpdated:
		return "tabUpdated"
	case EventIdleStateChanged:
		return "idleStateChanged"
	case EventActiveTab:
		return "activeTab"
	case EventFlushTick:
		return "flushTick"
	case eventSync:
		return "sync"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one item of the tracker's inbound queue
type Event struct {
	Kind EventKind
	URL  string
	// Status and URLChanged are only set for tab updates
	Status     string
	URLChanged bool
	IdleState  platform.IdleState
	// RequestID correlates an active tab answer with its query
	RequestID string

	done chan struct{}
}

// TabStatusComplete is the tab status reported once a page has loaded
const TabStatusComplete = "complete"

// TabActivated is sent when the user switches to a tab
func TabActivated(url string) Event {
	return Event{Kind: EventTabActivated, URL: url}
}

// TabUpdated is sent when a tab navigates or finishes loading
func TabUpdated(url, status string, urlChanged bool) Event {
	return Event{Kind: EventTabUpdated, URL: url, Status: status, URLChanged: urlChanged}
}

// IdleStateChanged carries the browser's idle detector output
func IdleStateChanged(state platform.IdleState) Event {
	return Event{Kind: EventIdleStateChanged, IdleState: state}
}

// ActiveTabAnswer answers a QueryActiveTab request; url is empty when
// no tab is active
func ActiveTabAnswer(requestID, url string) Event {
	return Event{Kind: EventActiveTab, RequestID: requestID, URL: url}
}

// FlushTick asks the tracker to checkpoint the open session
func FlushTick() Event {
	return Event{Kind: EventFlushTick}
}

// HostnameFromURL extracts the lowercase hostname of an absolute URL.
// An empty URL has no host and is not an error.
func HostnameFromURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("%w: %q is not absolute", ErrMalformedURL, raw)
	}
	return strings.ToLower(u.Hostname()), nil
}
