package thermostat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory set of thermostats backed by a Repository.
//
// Every read returns a deep copy; callers may modify what they get.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	mu     sync.RWMutex
	cache  map[string]*Thermostat
	logger Logger
	now    func() time.Time
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Thermostat),
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Load replaces the cache with the repository contents. Call once at startup.
func (r *Registry) Load(ctx context.Context) error {
	thermostats, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading thermostats: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*Thermostat, len(thermostats))
	for i := range thermostats {
		t := thermostats[i]
		r.cache[t.Address] = &t
	}
	r.logger.Info("thermostat registry loaded", "count", len(thermostats))
	return nil
}

// Upsert registers a discovered thermostat or refreshes its identity. It
// reports whether the thermostat is new. Sensors and runtime status of an
// existing entry are kept.
func (r *Registry) Upsert(ctx context.Context, t Thermostat) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.cache[t.Address]
	if ok {
		if existing.DeviceID == t.DeviceID && existing.Name == t.Name &&
			existing.Hostname == t.Hostname && existing.Type == t.Type &&
			existing.TempUnits == t.TempUnits {
			return false, nil
		}
		t.CreatedAt = existing.CreatedAt
	}

	persist := t
	persist.Sensors = nil
	if err := r.repo.Save(ctx, &persist); err != nil {
		return false, err
	}

	if ok {
		existing.DeviceID = t.DeviceID
		existing.Name = t.Name
		existing.Hostname = t.Hostname
		existing.Type = t.Type
		existing.TempUnits = t.TempUnits
		existing.UpdatedAt = persist.UpdatedAt
		r.logger.Info("thermostat updated", "address", t.Address, "hostname", t.Hostname)
		return false, nil
	}

	entry := persist
	r.cache[t.Address] = &entry
	r.logger.Info("thermostat registered", "address", t.Address, "name", t.Name, "hostname", t.Hostname)
	return true, nil
}

// Remove forgets a thermostat in memory and in the store.
func (r *Registry) Remove(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cache[address]; !ok {
		return ErrThermostatNotFound
	}
	if err := r.repo.Delete(ctx, address); err != nil && !errors.Is(err, ErrThermostatNotFound) {
		return err
	}
	delete(r.cache, address)
	return nil
}

// Get returns a copy of the thermostat at address.
func (r *Registry) Get(address string) (Thermostat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.cache[address]
	if !ok {
		return Thermostat{}, false
	}
	return deepCopy(t), true
}

// List returns copies of every thermostat ordered by address.
func (r *Registry) List() []Thermostat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Thermostat, 0, len(r.cache))
	for _, t := range r.cache {
		out = append(out, deepCopy(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Count returns the number of registered thermostats.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// ObserveState records a successful short poll. A change of temperature
// units is persisted. It reports whether the units changed.
func (r *Registry) ObserveState(ctx context.Context, address string, st venstar.State) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.cache[address]
	if !ok {
		return false, ErrThermostatNotFound
	}
	snapshot := st
	t.State = &snapshot
	t.LastContact = r.now()
	t.Reachable = true
	t.Locked = false
	t.LastError = ""

	if st.TempUnits == t.TempUnits {
		return false, nil
	}
	t.TempUnits = st.TempUnits
	persist := *t
	persist.Sensors = nil
	if err := r.repo.Save(ctx, &persist); err != nil {
		return true, fmt.Errorf("persisting units change: %w", err)
	}
	r.logger.Info("thermostat temperature units changed", "address", address, "units", st.TempUnits)
	return true, nil
}

// ObserveFailure records a failed poll.
func (r *Registry) ObserveFailure(address string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.cache[address]
	if !ok {
		return
	}
	t.Locked = errors.Is(err, venstar.ErrDeviceLocked)
	t.Reachable = t.Locked
	if err != nil {
		t.LastError = err.Error()
	}
}

// EnsureSensor returns the sensor node for label, creating and persisting
// it on first sight. New sensors are numbered in creation order.
func (r *Registry) EnsureSensor(ctx context.Context, thermostatAddress, label string) (Sensor, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.cache[thermostatAddress]
	if !ok {
		return Sensor{}, false, ErrThermostatNotFound
	}
	if s, ok := t.Sensor(label); ok {
		return s, false, nil
	}

	n := len(t.Sensors)
	s := Sensor{
		Address:           SensorAddress(thermostatAddress, n),
		ThermostatAddress: thermostatAddress,
		Label:             label,
		Position:          n,
		CreatedAt:         r.now().UTC(),
	}
	if err := r.repo.AddSensor(ctx, &s); err != nil {
		return Sensor{}, false, err
	}
	t.Sensors = append(t.Sensors, s)
	r.logger.Info("sensor added", "thermostat", thermostatAddress, "sensor", s.Address, "label", label)
	return s, true, nil
}

// ObserveSensor stores the latest reading of a known sensor.
func (r *Registry) ObserveSensor(thermostatAddress, label string, temp float64, battery int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.cache[thermostatAddress]
	if !ok {
		return
	}
	for i := range t.Sensors {
		if t.Sensors[i].Label == label {
			t.Sensors[i].Temp = &temp
			t.Sensors[i].Battery = &battery
			return
		}
	}
}

// Setting returns a persisted setting.
func (r *Registry) Setting(ctx context.Context, key string) (string, error) {
	return r.repo.GetSetting(ctx, key)
}

// SetSetting persists a setting.
func (r *Registry) SetSetting(ctx context.Context, key, value string) error {
	return r.repo.SetSetting(ctx, key, value)
}

func deepCopy(t *Thermostat) Thermostat {
	var out Thermostat
	if err := copier.CopyWithOption(&out, t, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched kinds, which cannot happen here.
		return *t
	}
	return out
}
