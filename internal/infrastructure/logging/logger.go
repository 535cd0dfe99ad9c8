package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the structured logger used across the tracker, the ledger
// repository and the hosts. Fields are alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Level is a minimum severity filter
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel accepts debug, info, warn and error (case-insensitive)
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// DefaultLogger writes one JSON object per line
type DefaultLogger struct {
	mu        sync.Mutex
	out       *log.Logger
	level     Level
	component string
}

// NewDefaultLogger logs at debug level to stderr
func NewDefaultLogger() Logger {
	return NewLogger(os.Stderr, LevelDebug, "")
}

// NewLogger creates a JSON line logger. The native messaging host must
// never log to stdout, which carries protocol frames.
func NewLogger(w io.Writer, level Level, component string) *DefaultLogger {
	if w == nil {
		w = os.Stderr
	}
	return &DefaultLogger{
		out:       log.New(w, "", 0),
		level:     level,
		component: component,
	}
}

type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// fieldsToMap converts key1, value1, key2, value2, ... into a map.
// Non-string keys and a dangling last value get positional names.
func fieldsToMap(fields []interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	result := make(map[string]interface{}, len(fields)/2+1)
	for i := 0; i < len(fields); i += 2 {
		if i+1 >= len(fields) {
			result[fmt.Sprintf("field_%d", i/2)] = fields[i]
			break
		}
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("field_%d", i/2)
		}
		value := fields[i+1]
		if err, isErr := value.(error); isErr && err != nil {
			value = err.Error()
		}
		result[key] = value
	}
	return result
}

func (l *DefaultLogger) logStructured(level Level, msg string, fields []interface{}) {
	if level < l.level {
		return
	}

	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Component: l.component,
		Message:   msg,
		Fields:    fieldsToMap(fields),
	}

	line, err := json.Marshal(entry)
	if err != nil {
		entry.Fields = map[string]interface{}{
			"original_fields": fmt.Sprintf("%v", fields),
			"marshal_error":   err.Error(),
		}
		if line, err = json.Marshal(entry); err != nil {
			l.mu.Lock()
			l.out.Printf("[%s] %s %v", level, msg, fields)
			l.mu.Unlock()
			return
		}
	}

	l.mu.Lock()
	l.out.Println(string(line))
	l.mu.Unlock()
}

func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.logStructured(LevelDebug, msg, fields)
}

func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.logStructured(LevelInfo, msg, fields)
}

func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.logStructured(LevelWarn, msg, fields)
}

func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.logStructured(LevelError, msg, fields)
}

// With returns a logger for a named component sharing the same output
func (l *DefaultLogger) With(component string) *DefaultLogger {
	return &DefaultLogger{out: l.out, level: l.level, component: component}
}

// RepositoryError mirrors errors.RepositoryError without importing it
type RepositoryError interface {
	Error() string
	GetCode() string
	IsRetryable() bool
	GetContext() map[string]string
	GetTimestamp() time.Time
}

// LogError logs err with the operation name and any classification
// carried by a repository error.
func LogError(logger Logger, err error, operation string, context map[string]interface{}) {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	if err == nil {
		return
	}

	fields := []interface{}{"operation", operation}
	if repoErr, ok := err.(RepositoryError); ok {
		fields = append(fields,
			"error_code", repoErr.GetCode(),
			"retryable", repoErr.IsRetryable(),
		)
		for k, v := range repoErr.GetContext() {
			fields = append(fields, k, v)
		}
	} else {
		fields = append(fields, "error_type", fmt.Sprintf("%T", err))
	}
	for k, v := range context {
		fields = append(fields, k, v)
	}

	logger.Error(err.Error(), fields...)
}

// LogOperation logs a completed operation and its duration at debug level
func LogOperation(logger Logger, operation string, duration time.Duration, context map[string]interface{}) {
	if logger == nil {
		logger = NewDefaultLogger()
	}

	fields := []interface{}{
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	}
	for k, v := range context {
		fields = append(fields, k, v)
	}

	logger.Debug("operation completed: "+operation, fields...)
}
