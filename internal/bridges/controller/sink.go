package controller

import (
	"context"

	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/thermostat"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Short receives a short-poll result. It implements poller.Sink.
//
// A failure is reported once when it first occurs or changes kind; later
// identical failures are only logged.
func (b *Bridge) Short(ctx context.Context, address string, st venstar.State, err error) {
	if err != nil {
		b.registry.ObserveFailure(address, err)
		b.validator.ObserveError(address, err)
		b.reflector.ApplyFailure(ctx, address, err)
		b.noteFailure(ctx, address, err)
		return
	}
	b.clearFailure(address)

	if _, err := b.registry.ObserveState(ctx, address, st); err != nil {
		b.logError("failed to record thermostat state", err)
	}
	b.validator.Observe(address, st)
	b.reflector.ApplyState(ctx, address, st)

	if b.telemetry != nil {
		b.telemetry.Contact(address, st.Name, nowUTC())
		b.telemetry.Temperature(address, st.Name, st.SpaceTemp)
		b.telemetry.Setpoints(address, st.HeatTemp, st.CoolTemp)
	}
}

// Long receives a long-poll result. It implements poller.Sink.
func (b *Bridge) Long(ctx context.Context, address string, ext venstar.Extended, err error) {
	if err != nil {
		b.logDebug("long poll failed", "address", address, "error", err)
		b.validator.ObserveError(address, err)
		return
	}
	b.validator.ObserveSuccess(address)
	b.reflector.ApplyExtended(ctx, address, ext)

	for _, s := range ext.Sensors {
		if s.Name == thermostat.SpaceTempSensor {
			continue
		}
		b.registry.ObserveSensor(address, s.Name, s.Temp, s.Battery)
		if b.telemetry != nil {
			b.telemetry.Temperature(address, s.Name, s.Temp)
		}
	}

	if b.runtimes != nil {
		for _, r := range ext.Runtimes {
			b.runtimes.WriteRuntime(address, r.Day(), r.Minutes())
		}
	}
}

func (b *Bridge) noteFailure(ctx context.Context, address string, err error) {
	kind := events.KindForError(err)

	b.failMu.Lock()
	prev, seen := b.failKind[address]
	b.failKind[address] = kind
	b.failMu.Unlock()

	if seen && prev == kind {
		b.logDebug("thermostat still failing", "address", address, "kind", string(kind), "error", err)
		return
	}
	b.logWarn("thermostat poll failed", "address", address, "kind", string(kind), "error", err)
	b.report(ctx, events.FromDeviceError(address, "", err))
}

func (b *Bridge) clearFailure(address string) {
	b.failMu.Lock()
	_, was := b.failKind[address]
	delete(b.failKind, address)
	b.failMu.Unlock()

	if was {
		b.logInfo("thermostat reachable again", "address", address)
	}
}
