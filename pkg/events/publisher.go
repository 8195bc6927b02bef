// Package events provides EventPublisher adapters for the domain events the
// orchestration service emits.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// Event is one published domain event.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// MemoryPublisher records published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewMemoryPublisher creates an empty recorder.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// FailWith makes every later Publish return err.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *MemoryPublisher) Publish(_ context.Context, eventType string, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, Event{Type: eventType, Payload: contracts.CloneMap(payload), At: time.Now().UTC()})
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Count returns how many events of eventType were published.
func (p *MemoryPublisher) Count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// Reset drops recorded events.
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher logging through logger, or the default
// logger when nil.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default().With("component", "events")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	args := make([]any, 0, 2+2*len(payload))
	args = append(args, "event_type", eventType)
	for _, k := range sortedKeys(payload) {
		args = append(args, k, payload[k])
	}
	p.logger.InfoContext(ctx, "domain event", args...)
	return nil
}

// FanOut publishes to every publisher in order and joins their errors.
type FanOut []contracts.EventPublisher

func (f FanOut) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RateLimitedPublisher throttles a publisher with a token bucket. Publish
// blocks until a token is available or ctx is done.
type RateLimitedPublisher struct {
	next    contracts.EventPublisher
	limiter *rate.Limiter
}

// NewRateLimitedPublisher allows perSecond events per second with the given
// burst. A non-positive rate disables throttling.
func NewRateLimitedPublisher(next contracts.EventPublisher, perSecond float64, burst int) *RateLimitedPublisher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedPublisher{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (p *RateLimitedPublisher) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return p.next.Publish(ctx, eventType, payload)
}

type nopPublisher struct{}

// Nop returns a publisher that drops every event.
func Nop() contracts.EventPublisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, string, map[string]any) error { return nil }
