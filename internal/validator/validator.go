package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Device performs writes on one thermostat. *venstar.Client satisfies it.
type Device interface {
	SendCommand(ctx context.Context, w venstar.Write) error
}

// Poller schedules out-of-cycle polls.
type Poller interface {
	Trigger(address string, short, long bool)
}

// Recorder receives command outcomes for metrics.
type Recorder interface {
	Command(command, result string)
}

// Logger defines the logging interface used by the Validator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Command outcomes passed to the Recorder.
const (
	ResultSent     = "sent"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

type tracked struct {
	device   Device
	phase    Phase
	snapshot *venstar.State
}

// Validator holds the per-thermostat state machine.
//
// Thread Safety: All methods are safe for concurrent use. Device writes are
// made without the lock held.
type Validator struct {
	mu       sync.RWMutex
	devices  map[string]*tracked
	poller   Poller
	reporter events.Reporter
	recorder Recorder
	logger   Logger
}

// New creates a Validator. reporter receives rejections and device errors.
func New(reporter events.Reporter) *Validator {
	return &Validator{
		devices:  make(map[string]*tracked),
		reporter: reporter,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger.
func (v *Validator) SetLogger(l Logger) {
	if l != nil {
		v.logger = l
	}
}

// SetPoller sets where follow-up polls are requested.
func (v *Validator) SetPoller(p Poller) {
	v.poller = p
}

// SetRecorder sets the metrics hook.
func (v *Validator) SetRecorder(r Recorder) {
	v.recorder = r
}

// Add starts tracking a thermostat. Re-adding keeps the observed state and
// replaces the device.
func (v *Validator) Add(address string, d Device) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if t, ok := v.devices[address]; ok {
		t.device = d
		return
	}
	v.devices[address] = &tracked{device: d}
}

// Remove stops tracking a thermostat.
func (v *Validator) Remove(address string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.devices, address)
}

// Observe feeds a successful short poll. It clears Locked and follows the
// away flag.
func (v *Validator) Observe(address string, st venstar.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	t, ok := v.devices[address]
	if !ok {
		return
	}
	snapshot := st
	t.snapshot = &snapshot
	if st.IsAway() {
		t.phase = PhaseAway
	} else {
		t.phase = PhaseNormal
	}
}

// ObserveSuccess clears Locked after any successful read.
func (v *Validator) ObserveSuccess(address string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	t, ok := v.devices[address]
	if !ok || t.phase != PhaseLocked {
		return
	}
	t.phase = PhaseNormal
	if t.snapshot != nil && t.snapshot.IsAway() {
		t.phase = PhaseAway
	}
}

// ObserveError feeds a failed poll. Only a locked response changes phase.
func (v *Validator) ObserveError(address string, err error) {
	if !errors.Is(err, venstar.ErrDeviceLocked) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if t, ok := v.devices[address]; ok {
		t.phase = PhaseLocked
	}
}

// Phase returns the current phase of a thermostat.
func (v *Validator) Phase(address string) (Phase, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	t, ok := v.devices[address]
	if !ok {
		return PhaseNormal, false
	}
	return t.phase, true
}

// Execute validates cmd and performs its writes. Rejections and device
// errors are reported as events and also returned. QUERY only triggers a
// short and long poll.
func (v *Validator) Execute(ctx context.Context, address string, cmd Command) error {
	v.mu.RLock()
	t, ok := v.devices[address]
	var (
		phase    Phase
		snapshot *venstar.State
		device   Device
	)
	if ok {
		phase, device = t.phase, t.device
		if t.snapshot != nil {
			s := *t.snapshot
			snapshot = &s
		}
	}
	v.mu.RUnlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownThermostat, address)
		v.report(ctx, events.New(events.KindCommandValidationFailure, address, cmd.Name, err.Error()))
		return err
	}

	writes, err := Plan(phase, snapshot, cmd)
	if err != nil {
		v.logger.Warn("command rejected", "address", address, "command", cmd.Name, "phase", phase.String(), "error", err)
		v.record(cmd.Name, ResultRejected)
		v.report(ctx, events.New(events.KindCommandValidationFailure, address, cmd.Name, err.Error()))
		return err
	}

	if cmd.Name == CmdQuery {
		v.trigger(address, true, true)
		return nil
	}

	for _, w := range writes {
		if err := device.SendCommand(ctx, w); err != nil {
			v.logger.Warn("device write failed", "address", address, "command", cmd.Name, "write", w.String(), "error", err)
			v.record(cmd.Name, ResultFailed)
			v.report(ctx, events.FromDeviceError(address, cmd.Name, err))
			if errors.Is(err, venstar.ErrDeviceLocked) {
				v.ObserveError(address, err)
			}
			return err
		}
	}

	v.logger.Info("command sent", "address", address, "command", cmd.Name, "writes", len(writes))
	v.record(cmd.Name, ResultSent)
	v.trigger(address, true, false)
	return nil
}

func (v *Validator) trigger(address string, short, long bool) {
	if v.poller != nil {
		v.poller.Trigger(address, short, long)
	}
}

func (v *Validator) report(ctx context.Context, e events.Event) {
	if v.reporter != nil {
		v.reporter.Report(ctx, e)
	}
}

func (v *Validator) record(command, result string) {
	if v.recorder != nil {
		v.recorder.Command(command, result)
	}
}
