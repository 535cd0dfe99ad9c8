package testutils

import (
	"fmt"
	"strings"
	"sync"
)

// TestingT is the subset of testing.T used by these helpers
type TestingT interface {
	Errorf(format string, args ...any)
}

// FieldsToMap converts alternating key/value log fields into a map,
// reporting malformed pairs through t.
func FieldsToMap(t TestingT, fields []any) map[string]any {
	fieldsMap := make(map[string]any)

	for i := 0; i < len(fields); i += 2 {
		if i+1 >= len(fields) {
			t.Errorf("Malformed fields slice: missing value for key at index %d", i)
			continue
		}

		key, ok := fields[i].(string)
		if !ok {
			t.Errorf("Malformed fields slice: key at index %d is not a string, got %T", i, fields[i])
			continue
		}

		fieldsMap[key] = fields[i+1]
	}

	return fieldsMap
}

// LogEntry is one call recorded by CaptureLogger
type LogEntry struct {
	Level   string
	Message string
	Fields  []any
}

// CaptureLogger records log calls for assertions. It satisfies
// logging.Logger and is safe for concurrent use.
type CaptureLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewCaptureLogger returns an empty logger that records every call
func NewCaptureLogger() *CaptureLogger {
	return &CaptureLogger{}
}

func (c *CaptureLogger) record(level, msg string, fields []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, LogEntry{Level: level, Message: msg, Fields: fields})
}

func (c *CaptureLogger) Debug(msg string, fields ...any) { c.record("DEBUG", msg, fields) }
func (c *CaptureLogger) Info(msg string, fields ...any)  { c.record("INFO", msg, fields) }
func (c *CaptureLogger) Warn(msg string, fields ...any)  { c.record("WARN", msg, fields) }
func (c *CaptureLogger) Error(msg string, fields ...any) { c.record("ERROR", msg, fields) }

// Entries returns a copy of everything logged so far
func (c *CaptureLogger) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ByLevel returns the entries logged at level
func (c *CaptureLogger) ByLevel(level string) []LogEntry {
	var out []LogEntry
	for _, e := range c.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Contains reports whether any entry at level has a message containing substr
func (c *CaptureLogger) Contains(level, substr string) bool {
	for _, e := range c.ByLevel(level) {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// String renders the captured log for failure messages
func (c *CaptureLogger) String() string {
	var b strings.Builder
	for _, e := range c.Entries() {
		fmt.Fprintf(&b, "%s %s %v\n", e.Level, e.Message, e.Fields)
	}
	return b.String()
}
