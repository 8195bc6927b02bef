// Package audit records a JSON-line trail of gaming detections, score
// calculations and alert lifecycle transitions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType groups audit entries by the subsystem that produced them.
type EventType string

const (
	EventScore  EventType = "SCORE"
	EventGaming EventType = "GAMING"
	EventAlert  EventType = "ALERT"
	EventConfig EventType = "CONFIG"
)

// Event is one line of the audit trail.
type Event struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger appends entries to the audit trail.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error
}

type actorKey struct{}

// WithActor attaches the acting user to ctx.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the acting user from ctx, or "system".
func ActorFrom(ctx context.Context) string {
	if id, ok := ctx.Value(actorKey{}).(string); ok && id != "" {
		return id
	}
	return "system"
}

// linePrefix marks audit lines in mixed output streams.
const linePrefix = "AUDIT: "

// JSONLogger writes one prefixed JSON object per entry.
type JSONLogger struct {
	mu    sync.Mutex
	out   io.Writer
	clock func() time.Time
	newID func() string
}

// NewLogger returns a JSONLogger on os.Stdout.
func NewLogger() *JSONLogger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter returns a JSONLogger on w, or os.Stdout when w is nil.
func NewLoggerWithWriter(w io.Writer) *JSONLogger {
	if w == nil {
		w = os.Stdout
	}
	return &JSONLogger{out: w, clock: time.Now, newID: uuid.NewString}
}

// Record writes the entry. Writes are serialized so lines never interleave.
func (l *JSONLogger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	line, err := json.Marshal(Event{
		ID:        l.newID(),
		ActorID:   ActorFrom(ctx),
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Timestamp: l.clock().UTC(),
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	buf := make([]byte, 0, len(linePrefix)+len(line)+1)
	buf = append(append(append(buf, linePrefix...), line...), '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.out.Write(buf)
	return err
}

type nopLogger struct{}

// Nop returns a Logger that discards every entry.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Record(context.Context, EventType, string, string, map[string]any) error { return nil }
