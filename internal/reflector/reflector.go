package reflector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/venstar-bridge/internal/discovery"
	"github.com/nerrad567/venstar-bridge/internal/thermostat"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Publisher receives attribute updates.
type Publisher interface {
	PublishUpdate(ctx context.Context, u Update)
}

// NodePublisher is implemented by publishers that also announce new nodes.
type NodePublisher interface {
	PublishNode(ctx context.Context, n Node)
}

// NodeRemover is implemented by publishers that retract removed nodes.
type NodeRemover interface {
	RemoveNode(ctx context.Context, address string)
}

// SensorResolver assigns node addresses to sensors, creating them on first
// sight. *thermostat.Registry satisfies it.
type SensorResolver interface {
	EnsureSensor(ctx context.Context, thermostatAddress, label string) (thermostat.Sensor, bool, error)
}

// Logger defines the logging interface used by the Reflector.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// node is the reflected state of one controller node.
type node struct {
	attrs map[string]Attribute
}

// Reflector owns the last-reflected cache.
//
// Thread Safety: All methods are safe for concurrent use. Publishers are
// called without the cache lock held.
type Reflector struct {
	mu         sync.Mutex
	nodes      map[string]*node
	units      map[string]int
	sensors    map[string]map[string]string // thermostat -> label -> sensor address
	failures   map[string]int
	offline    map[string]bool
	offlineAt  int
	resolver   SensorResolver
	publishers []Publisher
	logger     Logger
	now        func() time.Time
}

// Option configures a Reflector.
type Option func(*Reflector)

// WithPublishers adds publishers.
func WithPublishers(p ...Publisher) Option {
	return func(r *Reflector) { r.publishers = append(r.publishers, p...) }
}

// WithOfflineAfter emits GV0=0 after n consecutive poll failures. Zero
// disables it.
func WithOfflineAfter(n int) Option {
	return func(r *Reflector) { r.offlineAt = n }
}

// WithSensorResolver sets how sensor nodes are addressed.
func WithSensorResolver(s SensorResolver) Option {
	return func(r *Reflector) { r.resolver = s }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(r *Reflector) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for update timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reflector) { r.now = now }
}

// New creates a Reflector.
func New(opts ...Option) *Reflector {
	r := &Reflector{
		nodes:    make(map[string]*node),
		units:    make(map[string]int),
		sensors:  make(map[string]map[string]string),
		failures: make(map[string]int),
		offline:  make(map[string]bool),
		logger:   noopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddPublisher registers another publisher. Call before polling starts.
func (r *Reflector) AddPublisher(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers = append(r.publishers, p)
}

// ApplyState reflects a short-poll snapshot. A change of temperature units
// also re-emits every known sensor temperature with the new unit. It
// returns the updates that were published.
func (r *Reflector) ApplyState(ctx context.Context, address string, st venstar.State) []Update {
	at := r.now()

	r.mu.Lock()
	r.failures[address] = 0
	delete(r.offline, address)

	var updates []Update
	if u, ok := r.diffLocked(address, StateAttributes(st), at); ok {
		updates = append(updates, u)
	}

	prev, known := r.units[address]
	r.units[address] = st.TempUnits
	if known && prev != st.TempUnits {
		uom := TempUOM(st.TempUnits)
		for _, sensorAddr := range r.sensors[address] {
			n := r.nodes[sensorAddr]
			if n == nil {
				continue
			}
			if a, ok := n.attrs[DriverTemp]; ok {
				a.UOM = uom
				if u, ok := r.diffLocked(sensorAddr, []Attribute{a}, at); ok {
					updates = append(updates, u)
				}
			}
		}
	}
	pubs := r.publishers
	r.mu.Unlock()

	r.publish(ctx, pubs, updates)
	return updates
}

// ApplyExtended reflects a long-poll snapshot: alert drivers on the
// thermostat and one child node per remote sensor. Sections the device did
// not return are left as they are.
func (r *Reflector) ApplyExtended(ctx context.Context, address string, ext venstar.Extended) []Update {
	at := r.now()
	var updates []Update
	var added []Node

	if ext.HasSensors {
		for _, s := range ext.Sensors {
			if s.Name == thermostat.SpaceTempSensor {
				continue
			}
			sensorAddr, created, ok := r.sensorAddress(ctx, address, s.Name)
			if !ok {
				continue
			}
			if created {
				added = append(added, Node{
					Address: sensorAddr,
					Parent:  address,
					Name:    discovery.NodeName(s.Name),
					Kind:    NodeSensor,
				})
			}

			r.mu.Lock()
			if u, ok := r.diffLocked(sensorAddr, SensorAttributes(s, r.units[address]), at); ok {
				updates = append(updates, u)
			}
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	if ext.HasAlerts {
		if u, ok := r.diffLocked(address, AlertAttributes(ext.Alerts), at); ok {
			updates = append(updates, u)
		}
	}
	pubs := r.publishers
	r.mu.Unlock()

	for _, n := range added {
		r.PublishNode(ctx, n)
	}
	r.publish(ctx, pubs, updates)
	return updates
}

// ApplyFailure records a failed poll. Nothing is emitted unless offline
// reporting is enabled and the threshold was just reached.
func (r *Reflector) ApplyFailure(ctx context.Context, address string, err error) (Update, bool) {
	r.mu.Lock()
	r.failures[address]++
	count := r.failures[address]
	r.logger.Debug("poll failure", "address", address, "consecutive", count, "error", err)

	if r.offlineAt <= 0 || count < r.offlineAt || r.offline[address] {
		r.mu.Unlock()
		return Update{}, false
	}
	r.offline[address] = true
	u, ok := r.diffLocked(address, []Attribute{{DriverOnline, 0, UOMBool}}, r.now())
	pubs := r.publishers
	r.mu.Unlock()

	if !ok {
		return Update{}, false
	}
	r.logger.Warn("thermostat marked offline", "address", address, "failures", count)
	r.publish(ctx, pubs, []Update{u})
	return u, true
}

// PublishNode announces a node to every publisher that accepts nodes.
func (r *Reflector) PublishNode(ctx context.Context, n Node) {
	r.mu.Lock()
	pubs := r.publishers
	r.mu.Unlock()

	for _, p := range pubs {
		if np, ok := p.(NodePublisher); ok {
			np.PublishNode(ctx, n)
		}
	}
}

// Snapshot returns the last reflected attributes of a node.
func (r *Reflector) Snapshot(address string) []Attribute {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.nodes[address]
	if n == nil {
		return nil
	}
	out := make([]Attribute, 0, len(n.attrs))
	for _, a := range n.attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Driver < out[j].Driver })
	return out
}

// Forget drops all cached state for a thermostat and its sensors, then
// retracts each of those nodes from publishers that support it.
func (r *Reflector) Forget(ctx context.Context, address string) {
	r.mu.Lock()
	removed := make([]string, 0, len(r.sensors[address])+1)
	for _, s := range r.sensors[address] {
		delete(r.nodes, s)
		removed = append(removed, s)
	}
	sort.Strings(removed)
	removed = append(removed, address)
	delete(r.sensors, address)
	delete(r.nodes, address)
	delete(r.units, address)
	delete(r.failures, address)
	delete(r.offline, address)
	pubs := r.publishers
	r.mu.Unlock()

	for _, p := range pubs {
		nr, ok := p.(NodeRemover)
		if !ok {
			continue
		}
		for _, a := range removed {
			nr.RemoveNode(ctx, a)
		}
	}
}

// SetUnits seeds the known temperature units of a thermostat, so the
// first snapshot after a restart is compared against the stored value.
func (r *Reflector) SetUnits(address string, units int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[address] = units
}

// RegisterSensor records an existing sensor node so unit changes reach it.
func (r *Reflector) RegisterSensor(thermostatAddress, label, sensorAddress string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerSensorLocked(thermostatAddress, label, sensorAddress)
}

func (r *Reflector) registerSensorLocked(thermostatAddress, label, sensorAddress string) {
	m := r.sensors[thermostatAddress]
	if m == nil {
		m = make(map[string]string)
		r.sensors[thermostatAddress] = m
	}
	m[label] = sensorAddress
}

// sensorAddress resolves the node address of a sensor label.
func (r *Reflector) sensorAddress(ctx context.Context, thermostatAddress, label string) (string, bool, bool) {
	r.mu.Lock()
	if addr, ok := r.sensors[thermostatAddress][label]; ok {
		r.mu.Unlock()
		return addr, false, true
	}
	r.mu.Unlock()

	var addr string
	var created bool
	if r.resolver != nil {
		s, c, err := r.resolver.EnsureSensor(ctx, thermostatAddress, label)
		if err != nil {
			r.logger.Warn("cannot create sensor node", "thermostat", thermostatAddress, "label", label, "error", err)
			return "", false, false
		}
		addr, created = s.Address, c
	} else {
		r.mu.Lock()
		addr = thermostat.SensorAddress(thermostatAddress, len(r.sensors[thermostatAddress]))
		r.mu.Unlock()
		created = true
	}

	r.mu.Lock()
	r.registerSensorLocked(thermostatAddress, label, addr)
	r.mu.Unlock()
	return addr, created, true
}

// diffLocked stores attrs for address and returns those that changed.
func (r *Reflector) diffLocked(address string, attrs []Attribute, at time.Time) (Update, bool) {
	n := r.nodes[address]
	if n == nil {
		n = &node{attrs: make(map[string]Attribute)}
		r.nodes[address] = n
	}

	var changed []Attribute
	for _, a := range attrs {
		if prev, ok := n.attrs[a.Driver]; ok && prev == a {
			continue
		}
		n.attrs[a.Driver] = a
		changed = append(changed, a)
	}
	if len(changed) == 0 {
		return Update{}, false
	}
	return Update{Address: address, Attributes: changed, Timestamp: at}, true
}

func (r *Reflector) publish(ctx context.Context, pubs []Publisher, updates []Update) {
	for _, u := range updates {
		for _, p := range pubs {
			p.PublishUpdate(ctx, u)
		}
	}
}
