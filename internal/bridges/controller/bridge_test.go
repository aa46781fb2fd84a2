package controller

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/venstar-bridge/internal/discovery"
	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/database"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/venstar-bridge/internal/poller"
	"github.com/nerrad567/venstar-bridge/internal/reflector"
	"github.com/nerrad567/venstar-bridge/internal/thermostat"
	"github.com/nerrad567/venstar-bridge/internal/validator"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
	_ "github.com/nerrad567/venstar-bridge/migrations"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SimulateMessage delivers payload to the handler subscribed with filter.
func (m *MockMQTTClient) SimulateMessage(filter, topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[filter]
	m.mu.Unlock()
	if !ok {
		return errors.New("no subscription for " + filter)
	}
	return handler(topic, payload)
}

// Published returns messages sent to topic.
func (m *MockMQTTClient) Published(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeDevice struct {
	mu       sync.Mutex
	identity venstar.Identity
	probeErr error
	sendErr  error
	writes   []venstar.Write
}

func (d *fakeDevice) Probe(context.Context) (venstar.Identity, error) {
	return d.identity, d.probeErr
}

func (d *fakeDevice) FetchState(context.Context) (venstar.State, error) {
	return venstar.State{}, nil
}

func (d *fakeDevice) FetchSensorsAndAlerts(context.Context) (venstar.Extended, error) {
	return venstar.Extended{}, nil
}

func (d *fakeDevice) SendCommand(_ context.Context, w venstar.Write) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return d.sendErr
	}
	d.writes = append(d.writes, w)
	return nil
}

func (d *fakeDevice) Writes() []venstar.Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]venstar.Write(nil), d.writes...)
}

type fakeScheduler struct {
	mu       sync.Mutex
	added    map[string]poller.Device
	adds     int
	triggers int
}

func (s *fakeScheduler) Add(address string, d poller.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.added == nil {
		s.added = make(map[string]poller.Device)
	}
	s.added[address] = d
	s.adds++
}

func (s *fakeScheduler) Remove(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.added, address)
}

func (s *fakeScheduler) Trigger(string, bool, bool) {}

func (s *fakeScheduler) TriggerAll(short, long bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if short && long {
		s.triggers++
	}
}

func (s *fakeScheduler) has(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.added[address]
	return ok
}

type fakeDiscoverer struct {
	mu        sync.Mutex
	endpoints []discovery.Endpoint
	err       error
	calls     int
	release   chan struct{}
}

func (d *fakeDiscoverer) Discover(ctx context.Context) ([]discovery.Endpoint, error) {
	d.mu.Lock()
	d.calls++
	release := d.release
	d.mu.Unlock()
	if release != nil {
		<-release
	}
	return d.endpoints, d.err
}

type recordingReporter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingReporter) Report(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingReporter) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

type fakeLevels struct {
	mu    sync.Mutex
	level slog.Level
}

func (l *fakeLevels) SetLevel(level slog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *fakeLevels) Level() slog.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

type fakeRuntimes struct {
	mu   sync.Mutex
	days []time.Time
}

func (f *fakeRuntimes) WriteRuntime(_ string, day time.Time, _ map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days = append(f.days, day)
}

type harness struct {
	bridge     *Bridge
	mqtt       *MockMQTTClient
	db         *sql.DB
	registry   *thermostat.Registry
	scheduler  *fakeScheduler
	discoverer *fakeDiscoverer
	reporter   *recordingReporter
	levels     *fakeLevels
	runtimes   *fakeRuntimes

	devMu   sync.Mutex
	devices map[string]*fakeDevice
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), config.DatabaseConfig{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func newHarness(t *testing.T, db *sql.DB) *harness {
	t.Helper()
	if db == nil {
		db = setupTestDB(t)
	}

	h := &harness{
		mqtt:       NewMockMQTTClient(),
		db:         db,
		registry:   thermostat.NewRegistry(thermostat.NewSQLiteRepository(db)),
		scheduler:  &fakeScheduler{},
		discoverer: &fakeDiscoverer{},
		reporter:   &recordingReporter{},
		levels:     &fakeLevels{level: slog.LevelInfo},
		runtimes:   &fakeRuntimes{},
		devices:    make(map[string]*fakeDevice),
	}
	if err := h.registry.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	pub := NewPublisher(h.mqtt, 1)
	refl := reflector.New(reflector.WithPublishers(pub), reflector.WithSensorResolver(h.registry))
	val := validator.New(h.reporter)
	val.SetPoller(h.scheduler)

	b, err := NewBridge(Options{
		MQTT:       h.mqtt,
		QoS:        1,
		Registry:   h.registry,
		Reflector:  refl,
		Validator:  val,
		Discoverer: h.discoverer,
		Publisher:  pub,
		NewDevice:  h.device,
		Reporter:   h.reporter,
		Runtimes:   h.runtimes,
		Levels:     h.levels,
		ClientID:   "venstar-test",
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	b.SetScheduler(h.scheduler)
	t.Cleanup(b.Stop)
	h.bridge = b
	return h
}

// device returns the fake for host, creating a healthy residential one.
func (h *harness) device(host string) Device {
	h.devMu.Lock()
	defer h.devMu.Unlock()
	d, ok := h.devices[host]
	if !ok {
		d = &fakeDevice{identity: venstar.Identity{
			APIInfo: venstar.APIInfo{APIVersion: 4, Type: venstar.TypeResidential},
			Name:    "Hallway",
		}}
		h.devices[host] = d
	}
	return d
}

func staticEndpoint(host, id string) discovery.Endpoint {
	return discovery.Endpoint{ID: id, Host: host, Static: true}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"setpoint", `{"id":"c1","command":"SET_CLISPH","value":70,"timestamp":"2026-10-19T12:00:00Z"}`, false},
		{"no value", `{"id":"c2","command":"QUERY"}`, false},
		{"missing id", `{"command":"QUERY"}`, true},
		{"lowercase command", `{"id":"c3","command":"query"}`, true},
		{"string value", `{"id":"c4","command":"SET_CLIMD","value":"1"}`, true},
		{"bad timestamp", `{"id":"c5","command":"QUERY","timestamp":"yesterday"}`, true},
		{"not json", `{"id":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("error %v does not wrap ErrInvalidPayload", err)
			}
		})
	}
}

func TestParseCommandValue(t *testing.T) {
	msg, err := ParseCommand([]byte(`{"id":"c1","command":"SET_CLISPC","value":76.5}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Value == nil || *msg.Value != 76.5 {
		t.Fatalf("Value = %v, want 76.5", msg.Value)
	}
	cmd := msg.ValidatorCommand()
	if cmd.Name != validator.CmdSetCool || cmd.ID != "c1" {
		t.Errorf("ValidatorCommand() = %+v", cmd)
	}
}

func TestDiscoverSortsOutcomes(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.endpoints = []discovery.Endpoint{
		staticEndpoint("10.0.0.5", "0a000005"),
		staticEndpoint("10.0.0.6", "0a000006"),
		staticEndpoint("10.0.0.7", "0a000007"),
	}
	h.devices["10.0.0.6"] = &fakeDevice{
		identity: venstar.Identity{APIInfo: venstar.APIInfo{Type: venstar.TypeCommercial}},
		probeErr: venstar.ErrUnsupportedType,
	}
	h.devices["10.0.0.7"] = &fakeDevice{probeErr: venstar.ErrDeviceUnreachable}

	res, err := h.bridge.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if res.Found != 3 {
		t.Errorf("Found = %d, want 3", res.Found)
	}
	if len(res.Added) != 1 || res.Added[0] != "0a000005" {
		t.Errorf("Added = %v", res.Added)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "0a000006" {
		t.Errorf("Skipped = %v", res.Skipped)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "0a000007" {
		t.Errorf("Failed = %v", res.Failed)
	}

	if _, ok := h.registry.Get("0a000005"); !ok {
		t.Error("residential thermostat not registered")
	}
	if _, ok := h.registry.Get("0a000006"); ok {
		t.Error("commercial thermostat registered")
	}
	if !h.scheduler.has("0a000005") || h.scheduler.has("0a000006") {
		t.Errorf("scheduled devices = %v", h.scheduler.added)
	}
	if h.scheduler.triggers != 1 {
		t.Errorf("forced polls = %d, want 1", h.scheduler.triggers)
	}
	if got := h.mqtt.Published("venstar/node/0a000005"); len(got) != 1 || !got[0].Retained {
		t.Errorf("node announcements = %+v", got)
	}
	if kinds := h.reporter.kinds(); len(kinds) != 1 || kinds[0] != events.KindDiscoveryFailure {
		t.Errorf("events = %v, want one DiscoveryFailure", kinds)
	}
}

func TestDiscoverAgainUpdatesWithoutAnnouncing(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.5", "0a000005")}

	if _, err := h.bridge.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := h.bridge.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Added) != 0 || len(res.Updated) != 1 {
		t.Errorf("second run = %+v, want one update", res)
	}
	if got := len(h.mqtt.Published("venstar/node/0a000005")); got != 1 {
		t.Errorf("node announced %d times, want 1", got)
	}
	if h.scheduler.triggers != 2 {
		t.Errorf("forced polls = %d, want 2", h.scheduler.triggers)
	}
	if h.scheduler.adds != 1 {
		t.Errorf("scheduler adds = %d, want 1 (running worker kept)", h.scheduler.adds)
	}
}

func TestDiscoverNewHostReattaches(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.5", "0a000005")}
	if _, err := h.bridge.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.9", "0a000005")}
	res, err := h.bridge.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Updated) != 1 {
		t.Fatalf("second run = %+v, want one update", res)
	}
	if h.scheduler.adds != 2 {
		t.Errorf("scheduler adds = %d, want 2", h.scheduler.adds)
	}
	if got, _ := h.registry.Get("0a000005"); got.Hostname != "10.0.0.9" {
		t.Errorf("Hostname = %q, want 10.0.0.9", got.Hostname)
	}
	if h.scheduler.added["0a000005"] != h.devices["10.0.0.9"] {
		t.Error("scheduler still polls the old host")
	}
}

func TestDiscoverNothingFoundReported(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.bridge.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if res.Found != 0 || len(res.Added) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
	if kinds := h.reporter.kinds(); len(kinds) != 1 || kinds[0] != events.KindDiscoveryFailure {
		t.Errorf("events = %v, want one DiscoveryFailure", kinds)
	}
	if h.scheduler.triggers != 0 {
		t.Error("polls forced after empty discovery")
	}
}

func TestRemoveThermostat(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.5", "0a000005")}
	if _, err := h.bridge.Discover(ctx); err != nil {
		t.Fatal(err)
	}
	h.bridge.Short(ctx, "0a000005", venstar.State{Name: "Hallway", Mode: venstar.ModeHeat, HeatTemp: 68, CoolTemp: 75}, nil)

	if err := h.bridge.Remove(ctx, "0a000005"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := h.registry.Get("0a000005"); ok {
		t.Error("thermostat still registered")
	}
	if h.scheduler.has("0a000005") {
		t.Error("thermostat still scheduled")
	}
	if _, ok := h.bridge.validator.Phase("0a000005"); ok {
		t.Error("validator still tracks thermostat")
	}
	for _, topic := range []string{"venstar/state/0a000005", "venstar/node/0a000005"} {
		msgs := h.mqtt.Published(topic)
		if len(msgs) == 0 || len(msgs[len(msgs)-1].Payload) != 0 || !msgs[len(msgs)-1].Retained {
			t.Errorf("%s not cleared: %+v", topic, msgs)
		}
	}

	if err := h.bridge.Remove(ctx, "0a000005"); !errors.Is(err, thermostat.ErrThermostatNotFound) {
		t.Errorf("second Remove() error = %v, want ErrThermostatNotFound", err)
	}
}

func TestDiscoverFailureReported(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.err = errors.New("no multicast interface")

	_, err := h.bridge.Discover(context.Background())
	if !errors.Is(err, ErrDiscoveryFailed) {
		t.Fatalf("Discover() error = %v, want ErrDiscoveryFailed", err)
	}
	if kinds := h.reporter.kinds(); len(kinds) != 1 || kinds[0] != events.KindDiscoveryFailure {
		t.Errorf("events = %v", kinds)
	}
	if h.scheduler.triggers != 0 {
		t.Error("polls forced after failed discovery")
	}
}

func TestConcurrentDiscoverSharesOneRun(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.release = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.bridge.Discover(context.Background()) //nolint:errcheck
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(h.discoverer.release)
	wg.Wait()

	if h.discoverer.calls != 1 {
		t.Errorf("discoverer calls = %d, want 1", h.discoverer.calls)
	}
}

func TestDiscoverCommandOverMQTT(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.5", "0a000005")}
	if err := h.bridge.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := h.mqtt.SimulateMessage("venstar/command/+", "venstar/command/controller",
		[]byte(`{"id":"d1","command":"DISCOVER"}`))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if h.registry.Count() != 1 {
		t.Errorf("registry count = %d, want 1", h.registry.Count())
	}
}

func TestSetLogLevel(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.bridge.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := h.mqtt.SimulateMessage("venstar/command/+", "venstar/command/controller",
		[]byte(`{"id":"l1","command":"SET_LOGLEVEL","value":10}`))
	if err != nil {
		t.Fatal(err)
	}

	if h.levels.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", h.levels.Level())
	}
	saved, err := h.registry.Setting(context.Background(), "loggerlevel")
	if err != nil || saved != "10" {
		t.Errorf("saved level = %q, %v", saved, err)
	}

	msgs := h.mqtt.Published("venstar/state/controller")
	if len(msgs) == 0 {
		t.Fatal("controller state not published")
	}
	var state StateMessage
	if err := json.Unmarshal(msgs[len(msgs)-1].Payload, &state); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range state.Attributes {
		if a.Driver == DriverLogLevel {
			found = true
			if a.Value != 10 {
				t.Errorf("GV20 = %v, want 10", a.Value)
			}
		}
	}
	if !found {
		t.Errorf("controller attributes = %+v, want GV20", state.Attributes)
	}
}

func TestSetLogLevelRejectsBadValues(t *testing.T) {
	h := newHarness(t, nil)
	for _, v := range []int{0, 99} {
		if err := h.bridge.SetLogLevel(context.Background(), v); !errors.Is(err, ErrInvalidLogLevel) {
			t.Errorf("SetLogLevel(%d) error = %v", v, err)
		}
	}
	half := 10.5
	err := h.bridge.Command(context.Background(), mqtt.ControllerAddress,
		CommandMessage{ID: "x", Command: CmdSetLogLevel, Value: &half})
	if !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("fractional level error = %v", err)
	}
}

func TestUnknownControllerCommand(t *testing.T) {
	h := newHarness(t, nil)
	err := h.bridge.Command(context.Background(), mqtt.ControllerAddress, CommandMessage{ID: "x", Command: "UPDATE_PROFILE"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("error = %v, want ErrUnknownCommand", err)
	}
	if kinds := h.reporter.kinds(); len(kinds) != 1 || kinds[0] != events.KindCommandValidationFailure {
		t.Errorf("events = %v", kinds)
	}
}

func TestStartRestoresThermostatsAndLogLevel(t *testing.T) {
	db := setupTestDB(t)
	first := newHarness(t, db)
	first.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.5", "0a000005")}
	if _, err := first.bridge.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := first.registry.SetSetting(context.Background(), "loggerlevel", "30"); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, db)
	if err := h.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !h.scheduler.has("0a000005") {
		t.Error("persisted thermostat not scheduled")
	}
	if h.levels.Level() != slog.LevelWarn {
		t.Errorf("level = %v, want warn", h.levels.Level())
	}
	if got := h.mqtt.Published("venstar/node/0a000005"); len(got) != 1 {
		t.Errorf("node announcements = %d, want 1", len(got))
	}
	if got := h.mqtt.Published("venstar/health/bridge"); len(got) < 2 {
		t.Errorf("health messages = %d, want starting and healthy", len(got))
	}
}

func TestThermostatCommandReachesDevice(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.5", "0a000005")}
	if err := h.bridge.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.bridge.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.bridge.Short(context.Background(), "0a000005", venstar.State{
		Name: "Hallway", Mode: venstar.ModeHeat, HeatTemp: 68, CoolTemp: 75, SetpointDelta: 2,
	}, nil)

	err := h.mqtt.SimulateMessage("venstar/command/+", "venstar/command/0a000005",
		[]byte(`{"id":"c1","command":"SET_CLISPH","value":70}`))
	if err != nil {
		t.Fatal(err)
	}

	writes := h.devices["10.0.0.5"].Writes()
	if len(writes) != 1 {
		t.Fatalf("writes = %v, want 1", writes)
	}
	if got := writes[0].String(); got != "control(heattemp=70,cooltemp=75)" {
		t.Errorf("write = %s", got)
	}
}

func TestInvalidPayloadReturnsError(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.bridge.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := h.mqtt.SimulateMessage("venstar/command/+", "venstar/command/0a000005", []byte(`{"command":7}`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("error = %v, want ErrInvalidPayload", err)
	}
	if len(h.reporter.kinds()) != 0 {
		t.Error("invalid payload produced an event")
	}
}

func TestShortFailureReportedOnChange(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.5", "0a000005")}
	if _, err := h.bridge.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	addr := "0a000005"

	h.bridge.Short(ctx, addr, venstar.State{}, venstar.ErrDeviceUnreachable)
	h.bridge.Short(ctx, addr, venstar.State{}, venstar.ErrDeviceUnreachable)
	h.bridge.Short(ctx, addr, venstar.State{}, venstar.ErrDeviceLocked)
	h.bridge.Short(ctx, addr, venstar.State{Name: "Hallway"}, nil)
	h.bridge.Short(ctx, addr, venstar.State{}, venstar.ErrDeviceUnreachable)

	want := []events.Kind{events.KindDeviceUnreachable, events.KindDeviceLocked, events.KindDeviceUnreachable}
	got := h.reporter.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	if th, _ := h.registry.Get(addr); th.Reachable {
		t.Error("thermostat still reachable after failure")
	}
}

func TestShortReflectsState(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.5", "0a000005")}
	if _, err := h.bridge.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := venstar.State{Name: "Hallway", Mode: venstar.ModeCool, SpaceTemp: 72, HeatTemp: 68, CoolTemp: 75}
	h.bridge.Short(context.Background(), "0a000005", st, nil)
	h.bridge.Short(context.Background(), "0a000005", st, nil)

	msgs := h.mqtt.Published("venstar/state/0a000005")
	if len(msgs) != 1 {
		t.Fatalf("state messages = %d, want 1 (second poll unchanged)", len(msgs))
	}
	if th, _ := h.registry.Get("0a000005"); !th.Reachable || th.State == nil || th.State.SpaceTemp != 72 {
		t.Errorf("registry state = %+v", th)
	}
	if phase, _ := h.bridge.validator.Phase("0a000005"); phase != validator.PhaseNormal {
		t.Errorf("phase = %s", phase)
	}
}

func TestLongRecordsSensorsAndRuntimes(t *testing.T) {
	h := newHarness(t, nil)
	h.discoverer.endpoints = []discovery.Endpoint{staticEndpoint("10.0.0.5", "0a000005")}
	if _, err := h.bridge.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}

	ext := venstar.Extended{
		Sensors: []venstar.Sensor{
			{Name: "Thermostat", Temp: 71},
			{Name: "Space Temp", Temp: 71},
			{Name: "Bedroom", Temp: 69, Battery: 90},
		},
		HasSensors: true,
		Runtimes:   []venstar.Runtime{{Timestamp: 1760832000, Heat1: 30}},
	}
	h.bridge.Long(context.Background(), "0a000005", ext, nil)

	th, _ := h.registry.Get("0a000005")
	if len(th.Sensors) != 2 {
		t.Fatalf("sensors = %+v, want Thermostat and Bedroom", th.Sensors)
	}
	bedroom, ok := th.Sensor("Bedroom")
	if !ok || bedroom.Battery == nil || *bedroom.Battery != 90 {
		t.Errorf("Bedroom sensor = %+v", bedroom)
	}
	if got := h.mqtt.Published("venstar/node/" + bedroom.Address); len(got) != 1 {
		t.Errorf("sensor node announcements = %d, want 1", len(got))
	}
	if len(h.runtimes.days) != 1 {
		t.Errorf("runtimes written = %d, want 1", len(h.runtimes.days))
	}
}
