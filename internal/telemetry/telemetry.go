// Package telemetry carries usage signals emitted by the monitor to
// analytics sinks.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// EventRegisteredConnection is emitted after the bridge connection is
// registered with the host. Its "version" property holds the runtime version.
const EventRegisteredConnection = "registeredConnection"

// Event is a single usage signal.
type Event struct {
	Name       string            `json:"name"`
	OccurredAt time.Time         `json:"occurred_at"`
	Properties map[string]string `json:"properties,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(name string, props map[string]string) Event {
	return Event{Name: name, OccurredAt: time.Now().UTC(), Properties: props}
}

// PropertiesJSON encodes the properties as a JSON object ("{}" when empty).
func (e Event) PropertiesJSON() string {
	if len(e.Properties) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e.Properties)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Sink is a destination for usage events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// LogSink writes events to the default slog logger.
type LogSink struct{}

func (LogSink) Send(_ context.Context, e Event) error {
	args := []any{"event", e.Name}
	for k, v := range e.Properties {
		args = append(args, k, v)
	}
	slog.Info("usage event", args...)
	return nil
}

// Emit sends e to s and logs a failure instead of returning it.
func Emit(ctx context.Context, s Sink, e Event) {
	if s == nil {
		return
	}
	if err := s.Send(ctx, e); err != nil {
		slog.Warn("failed to send usage event", "event", e.Name, "error", err)
	}
}
