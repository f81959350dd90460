// Package eventlog is the append-only structured event sink for the
// pipeline. Every attempt of every external call writes one JSON record
// per line; the file is the machine-readable counterpart of the slog
// output and is what diagnostics tooling replays after a failed run.
package eventlog

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultRedactedFields are field names whose values are never written
// verbatim, regardless of configuration.
var DefaultRedactedFields = []string{"token", "password", "api_key", "secret", "authorization"}

const redactedValue = "[redacted]"

// Event is one log record. Fields carries flat string→scalar correlation
// context (run_id, command, fn, provider). Consumers must tolerate
// additional fields.
type Event struct {
	Name        string         `json:"event"`
	Timestamp   time.Time      `json:"ts"`
	ElapsedMS   int64          `json:"elapsed_ms,omitempty"`
	Attempt     int            `json:"attempt,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	Category    string         `json:"category,omitempty"`
	Hint        string         `json:"hint,omitempty"`
	NextDelayMS int64          `json:"next_delay_ms,omitempty"`
	Error       string         `json:"error,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// Logger appends events to a line-delimited JSON file. Appends are
// serialized so concurrent writers never interleave partial records.
// A Logger never returns write failures to the operation being logged.
type Logger struct {
	mu       sync.Mutex
	w        io.WriteCloser
	redacted map[string]struct{}
	now      func() time.Time
	warnOnce sync.Once
}

// Open creates the log file (and its directory) in append mode.
func Open(path string, redactFields []string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return NewLogger(f, redactFields), nil
}

// NewLogger wraps an arbitrary sink, mainly for tests.
func NewLogger(w io.WriteCloser, redactFields []string) *Logger {
	redacted := make(map[string]struct{})
	for _, f := range DefaultRedactedFields {
		redacted[f] = struct{}{}
	}
	for _, f := range redactFields {
		redacted[f] = struct{}{}
	}
	return &Logger{w: w, redacted: redacted, now: time.Now}
}

// Log appends one event. It never fails: serialization or write errors
// are reported once through slog and otherwise swallowed, so a broken
// log sink cannot abort the operation being logged.
func (l *Logger) Log(ev Event) {
	if l == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	ev.Fields = l.redact(ev.Fields)

	data, err := json.Marshal(ev)
	if err != nil {
		l.reportOnce("failed to marshal event", err)
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(data); err != nil {
		l.reportOnce("failed to append event", err)
	}
}

// Close closes the underlying sink.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

func (l *Logger) redact(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return fields
	}
	var out map[string]any
	for k := range fields {
		if _, ok := l.redacted[k]; ok {
			if out == nil {
				out = make(map[string]any, len(fields))
				for k2, v2 := range fields {
					out[k2] = v2
				}
			}
			out[k] = redactedValue
		}
	}
	if out == nil {
		return fields
	}
	return out
}

func (l *Logger) reportOnce(msg string, err error) {
	l.warnOnce.Do(func() {
		slog.Warn("event log degraded", "reason", msg, "error", err)
	})
}
