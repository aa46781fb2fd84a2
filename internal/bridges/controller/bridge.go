package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/venstar-bridge/internal/discovery"
	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/venstar-bridge/internal/poller"
	"github.com/nerrad567/venstar-bridge/internal/reflector"
	"github.com/nerrad567/venstar-bridge/internal/thermostat"
	"github.com/nerrad567/venstar-bridge/internal/validator"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Bridge operation constants.
const (
	// defaultCommandTimeout bounds one command end to end.
	defaultCommandTimeout = 10 * time.Second

	// settingLogLevel is the settings key holding the controller log level.
	settingLogLevel = "loggerlevel"
)

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Registry stores thermostats and settings. *thermostat.Registry satisfies it.
type Registry interface {
	Upsert(ctx context.Context, t thermostat.Thermostat) (bool, error)
	Get(address string) (thermostat.Thermostat, bool)
	Remove(ctx context.Context, address string) error
	List() []thermostat.Thermostat
	ObserveState(ctx context.Context, address string, st venstar.State) (bool, error)
	ObserveFailure(address string, err error)
	ObserveSensor(thermostatAddress, label string, temp float64, battery int)
	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Scheduler polls devices. *poller.Scheduler satisfies it.
type Scheduler interface {
	Add(address string, d poller.Device)
	Remove(address string)
	TriggerAll(short, long bool)
}

// Discoverer finds thermostat endpoints. *discovery.Discoverer satisfies it.
type Discoverer interface {
	Discover(ctx context.Context) ([]discovery.Endpoint, error)
}

// Device is one thermostat's local API. *venstar.Client satisfies it.
type Device interface {
	Probe(ctx context.Context) (venstar.Identity, error)
	poller.Device
	validator.Device
}

// DeviceFactory creates the Device for a host.
type DeviceFactory func(host string) Device

// Telemetry receives per-thermostat measurements. *metrics.Metrics
// satisfies it.
type Telemetry interface {
	Contact(address, name string, at time.Time)
	Temperature(address, name string, value float64)
	Setpoints(address string, heat, cool float64)
	SetThermostats(n int)
	Forget(address string)
}

// RuntimeWriter stores daily runtime records. *influxdb.Client satisfies it.
type RuntimeWriter interface {
	WriteRuntime(address string, day time.Time, minutes map[string]int)
}

// LevelSetter changes the process log level. *logging.Logger satisfies it.
type LevelSetter interface {
	SetLevel(level slog.Level)
	Level() slog.Level
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds the collaborators of a Bridge. MQTT, Registry, Reflector,
// Validator and Discoverer are required. The scheduler is set with
// SetScheduler because it takes the bridge as its sink.
type Options struct {
	MQTT       MQTTClient
	QoS        byte
	Registry   Registry
	Reflector  *reflector.Reflector
	Validator  *validator.Validator
	Discoverer Discoverer

	// Publisher receives the controller node's own attributes. Usually the
	// same *Publisher registered with the reflector.
	Publisher reflector.Publisher

	// NewDevice defaults to venstar.NewClient.
	NewDevice DeviceFactory

	// Reporter receives discovery and poll failure events.
	Reporter events.Reporter

	// Optional.
	Telemetry Telemetry
	Runtimes  RuntimeWriter
	Levels    LevelSetter
	Logger    Logger

	CommandTimeout time.Duration
	HealthInterval time.Duration
	ClientID       string
	Version        string
}

// Bridge routes controller commands and poll results.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt       MQTTClient
	registry   Registry
	reflector  *reflector.Reflector
	validator  *validator.Validator
	scheduler  Scheduler
	discoverer Discoverer
	publisher  reflector.Publisher
	newDevice  DeviceFactory
	reporter   events.Reporter
	telemetry  Telemetry
	runtimes   RuntimeWriter
	levels     LevelSetter
	health     *HealthReporter

	commandTimeout time.Duration
	qos            byte

	flight singleflight.Group

	// Last failure kind per address, so repeated poll failures report once.
	failMu   sync.Mutex
	failKind map[string]events.Kind

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once

	logger Logger
}

// NewBridge creates a bridge. Call Start to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	switch {
	case opts.MQTT == nil:
		return nil, errors.New("MQTT client is required")
	case opts.Registry == nil:
		return nil, errors.New("registry is required")
	case opts.Reflector == nil:
		return nil, errors.New("reflector is required")
	case opts.Validator == nil:
		return nil, errors.New("validator is required")
	case opts.Discoverer == nil:
		return nil, errors.New("discoverer is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		mqtt:           opts.MQTT,
		registry:       opts.Registry,
		reflector:      opts.Reflector,
		validator:      opts.Validator,
		discoverer:     opts.Discoverer,
		publisher:      opts.Publisher,
		newDevice:      opts.NewDevice,
		reporter:       opts.Reporter,
		telemetry:      opts.Telemetry,
		runtimes:       opts.Runtimes,
		levels:         opts.Levels,
		commandTimeout: opts.CommandTimeout,
		qos:            opts.QoS,
		failKind:       make(map[string]events.Kind),
		ctx:            ctx,
		ctxCancel:      ctxCancel,
		logger:         opts.Logger,
	}
	if b.newDevice == nil {
		b.newDevice = func(host string) Device { return venstar.NewClient(host) }
	}
	if b.commandTimeout <= 0 {
		b.commandTimeout = defaultCommandTimeout
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		ClientID:  opts.ClientID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Counter:   b.fleet,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// SetScheduler sets the poll scheduler. Call before Start.
func (b *Bridge) SetScheduler(s Scheduler) {
	b.scheduler = s
}

// Start restores known thermostats and the saved log level, then subscribes
// to commands and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if b.scheduler == nil {
		return errors.New("scheduler is required")
	}
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.restoreLogLevel(ctx)
	restored := b.restoreThermostats(ctx)
	b.publishController(ctx)

	topic := mqtt.Topics{}.AllCommands()
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", topic)

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started", "thermostats", restored)
	return nil
}

// Stop cancels in-flight commands and publishes a final health status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// restoreThermostats attaches every persisted thermostat without probing it.
func (b *Bridge) restoreThermostats(ctx context.Context) int {
	known := b.registry.List()
	for _, t := range known {
		for _, s := range t.Sensors {
			b.reflector.RegisterSensor(t.Address, s.Label, s.Address)
		}
		b.attach(t, b.newDevice(t.Hostname))
		b.reflector.PublishNode(ctx, thermostatNode(t))
		for _, s := range t.Sensors {
			b.reflector.PublishNode(ctx, sensorNode(t.Address, s))
		}
	}
	b.setThermostatCount(len(known))
	return len(known)
}

// attach hands a device to the scheduler and the validator.
func (b *Bridge) attach(t thermostat.Thermostat, d Device) {
	b.reflector.SetUnits(t.Address, t.TempUnits)
	b.scheduler.Add(t.Address, d)
	b.validator.Add(t.Address, d)
}

// Remove stops polling a thermostat and forgets it together with its
// sensors. Retained topics of the removed nodes are cleared. A later
// discovery adds it again as a new node.
func (b *Bridge) Remove(ctx context.Context, address string) error {
	if err := b.registry.Remove(ctx, address); err != nil {
		return err
	}
	b.scheduler.Remove(address)
	b.validator.Remove(address)
	b.reflector.Forget(ctx, address)

	b.failMu.Lock()
	delete(b.failKind, address)
	b.failMu.Unlock()

	if b.telemetry != nil {
		b.telemetry.Forget(address)
	}
	b.setThermostatCount(len(b.registry.List()))
	b.logInfo("thermostat removed", "address", address)
	return nil
}

func thermostatNode(t thermostat.Thermostat) reflector.Node {
	return reflector.Node{
		Address: t.Address,
		Name:    discovery.NodeName(t.Name),
		Kind:    reflector.NodeThermostat,
	}
}

func sensorNode(parent string, s thermostat.Sensor) reflector.Node {
	return reflector.Node{
		Address: s.Address,
		Parent:  parent,
		Name:    discovery.NodeName(s.Label),
		Kind:    reflector.NodeSensor,
	}
}

// fleet counts known and reachable thermostats for health reports.
func (b *Bridge) fleet() (int, int) {
	all := b.registry.List()
	reachable := 0
	for _, t := range all {
		if t.Reachable {
			reachable++
		}
	}
	return len(all), reachable
}

func (b *Bridge) setThermostatCount(n int) {
	if b.telemetry != nil {
		b.telemetry.SetThermostats(n)
	}
}

func (b *Bridge) report(ctx context.Context, e events.Event) {
	if b.reporter != nil {
		b.reporter.Report(ctx, e)
	}
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
