package audit

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger is the async-buffered structured audit log described in §4.9:
// every significant event carries a timestamp, session id, component,
// event kind, duration, outcome, and a PHI-sanitized detail payload.
// Writes never block the caller and never fail the request: a full
// buffer falls back to a direct (slower) write rather than dropping the
// event or returning an error.
type Logger struct {
	cfg     Config
	output  io.WriteCloser
	slogger *slog.Logger
	buffer  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewLogger constructs a Logger. If cfg.Enabled is false, Event is a no-op.
func NewLogger(cfg Config) (*Logger, error) {
	if !cfg.Enabled {
		return &Logger{cfg: cfg}, nil
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	var output io.WriteCloser
	switch {
	case cfg.Output == "" || cfg.Output == "stdout":
		output = os.Stdout
	case cfg.Output == "stderr":
		output = os.Stderr
	case strings.HasPrefix(cfg.Output, "file:"):
		path := strings.TrimPrefix(cfg.Output, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("audit: open output: %w", err)
		}
		output = f
	default:
		return nil, fmt.Errorf("audit: unsupported output %q", cfg.Output)
	}

	l := &Logger{
		cfg:     cfg,
		output:  output,
		slogger: slog.New(slog.NewJSONHandler(output, nil)).With("component", "audit"),
		buffer:  make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	l.wg.Add(1)
	go l.writeLoop()

	return l, nil
}

// Close flushes any buffered events and releases the output.
func (l *Logger) Close() error {
	if !l.cfg.Enabled {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	if l.output != os.Stdout && l.output != os.Stderr {
		return l.output.Close()
	}
	return nil
}

// Event records one structured audit event, non-blocking. Satisfies
// orchestrator.AuditSink: it builds an Event with Component
// "orchestrator" and passes it to Log.
func (l *Logger) Event(kind, sessionID, detail string, fields map[string]any) {
	l.Log(Event{
		Component: "orchestrator",
		Kind:      EventKind(kind),
		SessionID: sessionID,
		Detail:    detail,
		Fields:    fields,
	})
}

// Log writes a fully-formed Event, applying sampling and defaulting ID
// and Timestamp.
func (l *Logger) Log(event Event) {
	if !l.cfg.Enabled {
		return
	}
	if l.cfg.SampleRate < 1.0 && rand.Float64() > l.cfg.SampleRate {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case l.buffer <- event:
	default:
		l.writeEvent(event)
	}
}

func (l *Logger) writeLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		case <-ticker.C:
			l.flush()
		case <-l.done:
			l.flush()
			return
		}
	}
}

func (l *Logger) flush() {
	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		default:
			return
		}
	}
}

func (l *Logger) writeEvent(event Event) {
	attrs := []any{
		"audit_id", event.ID,
		"kind", event.Kind,
		"timestamp", event.Timestamp.Format(time.RFC3339Nano),
	}
	if event.SessionID != "" {
		attrs = append(attrs, "session_id", event.SessionID)
	}
	if event.Component != "" {
		attrs = append(attrs, "target_component", event.Component)
	}
	if event.Duration > 0 {
		attrs = append(attrs, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Outcome != "" {
		attrs = append(attrs, "outcome", event.Outcome)
	}
	if event.Detail != "" {
		attrs = append(attrs, "detail", event.Detail)
	}
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}
	l.slogger.Info("audit", attrs...)
}
