package testutils

import (
	"fmt"
	"testing"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestFieldsToMap(t *testing.T) {
	rt := &recordingT{}

	got := FieldsToMap(rt, []any{"domain", "github.com", 7, "x", "dangling"})

	if got["domain"] != "github.com" {
		t.Errorf("domain = %v", got["domain"])
	}
	if len(got) != 1 {
		t.Errorf("got %d keys, want 1", len(got))
	}
	if len(rt.errors) != 2 {
		t.Errorf("got %d reported errors, want 2: %v", len(rt.errors), rt.errors)
	}
}

func TestCaptureLogger(t *testing.T) {
	logger := NewCaptureLogger()

	logger.Info("flushed session", "minutes", 2)
	logger.Warn("malformed url", "url", "::")

	if n := len(logger.Entries()); n != 2 {
		t.Fatalf("got %d entries, want 2", n)
	}
	if !logger.Contains("WARN", "malformed") {
		t.Errorf("expected warn entry, log:\n%s", logger)
	}
	if logger.Contains("ERROR", "malformed") {
		t.Error("unexpected error entry")
	}
}
