package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Kind classifies an event.
type Kind string

const (
	KindDiscoveryFailure         Kind = "DiscoveryFailure"
	KindDeviceUnreachable        Kind = "DeviceUnreachable"
	KindDeviceRejected           Kind = "DeviceRejected"
	KindCommandValidationFailure Kind = "CommandValidationFailure"
	KindDeviceLocked             Kind = "DeviceLocked"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	KindDiscoveryFailure,
	KindDeviceUnreachable,
	KindDeviceRejected,
	KindCommandValidationFailure,
	KindDeviceLocked,
}

// Event is a single reported failure.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Address   string    `json:"address,omitempty"`
	Command   string    `json:"command,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an event with a fresh id and the current time.
func New(kind Kind, address, command, reason string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Address:   address,
		Command:   command,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// FromDeviceError classifies a device proxy error.
func FromDeviceError(address, command string, err error) Event {
	return New(KindForError(err), address, command, err.Error())
}

// KindForError maps device proxy errors to event kinds. Anything not
// recognised is treated as unreachable.
func KindForError(err error) Kind {
	switch {
	case errors.Is(err, venstar.ErrDeviceLocked):
		return KindDeviceLocked
	case errors.Is(err, venstar.ErrDeviceRejected):
		return KindDeviceRejected
	default:
		return KindDeviceUnreachable
	}
}

// Reporter receives events. Implementations must not block for long and
// must be safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, e Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, e Event)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, e Event) {
	f(ctx, e)
}

// Multi delivers each event to every reporter in order.
type Multi []Reporter

// Report fans e out.
func (m Multi) Report(ctx context.Context, e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, e)
		}
	}
}

// Logger defines the logging interface used by LogReporter.
type Logger interface {
	Warn(msg string, args ...any)
}

// LogReporter writes events at warn level.
type LogReporter struct {
	Logger Logger
}

// Report logs e.
func (r LogReporter) Report(_ context.Context, e Event) {
	if r.Logger == nil {
		return
	}
	args := []any{"kind", string(e.Kind), "event_id", e.ID, "reason", e.Reason}
	if e.Address != "" {
		args = append(args, "address", e.Address)
	}
	if e.Command != "" {
		args = append(args, "command", e.Command)
	}
	r.Logger.Warn("bridge event", args...)
}

// Counter is the metrics hook fed by CountingReporter.
type Counter interface {
	Event(kind string)
}

// CountingReporter increments a counter per event kind.
type CountingReporter struct {
	Counter Counter
}

// Report counts e.
func (r CountingReporter) Report(_ context.Context, e Event) {
	if r.Counter != nil {
		r.Counter.Event(string(e.Kind))
	}
}
