package reflector

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/venstar-bridge/internal/thermostat"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// recordingPublisher captures everything published.
type recordingPublisher struct {
	mu      sync.Mutex
	updates []Update
	nodes   []Node
	removed []string
}

func (p *recordingPublisher) PublishUpdate(_ context.Context, u Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func (p *recordingPublisher) PublishNode(_ context.Context, n Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes = append(p.nodes, n)
}

func (p *recordingPublisher) RemoveNode(_ context.Context, address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, address)
}

// updateOnly does not implement NodePublisher.
type updateOnly struct {
	count int
}

func (p *updateOnly) PublishUpdate(context.Context, Update) { p.count++ }

type fakeResolver struct {
	sensors map[string]thermostat.Sensor
	err     error
}

func (f *fakeResolver) EnsureSensor(_ context.Context, thermo, label string) (thermostat.Sensor, bool, error) {
	if f.err != nil {
		return thermostat.Sensor{}, false, f.err
	}
	if s, ok := f.sensors[label]; ok {
		return s, false, nil
	}
	s := thermostat.Sensor{Address: thermostat.SensorAddress(thermo, len(f.sensors)), Label: label}
	f.sensors[label] = s
	return s, true, nil
}

func sampleState() venstar.State {
	return venstar.State{
		Name:          "Hallway",
		Mode:          venstar.ModeAuto,
		HeatCoolState: 1,
		Fan:           venstar.FanAuto,
		FanState:      1,
		TempUnits:     venstar.UnitsFahrenheit,
		SchedulePart:  venstar.SchedulePartInactive,
		SpaceTemp:     71.5,
		HeatTemp:      68,
		CoolTemp:      75,
		Humidity:      40,
	}
}

func attr(u Update, driver string) (Attribute, bool) {
	for _, a := range u.Attributes {
		if a.Driver == driver {
			return a, true
		}
	}
	return Attribute{}, false
}

func TestStateAttributes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*venstar.State)
		driver string
		want   Attribute
	}{
		{"online", nil, DriverOnline, Attribute{DriverOnline, 1, UOMBool}},
		{"space temp F", nil, DriverTemp, Attribute{DriverTemp, 71.5, UOMFahrenheit}},
		{"space temp C", func(s *venstar.State) { s.TempUnits = venstar.UnitsCelsius; s.SpaceTemp = 21.5 }, DriverTemp, Attribute{DriverTemp, 21.5, UOMCelsius}},
		{"mode", nil, DriverMode, Attribute{DriverMode, 3, UOMMode}},
		{"away mode", func(s *venstar.State) { s.Away = 1 }, DriverMode, Attribute{DriverMode, ModeAway, UOMMode}},
		{"away flag", func(s *venstar.State) { s.Away = 1 }, DriverAway, Attribute{DriverAway, 1, UOMBool}},
		{"heat cool state low", nil, DriverHeatCoolState, Attribute{DriverHeatCoolState, 1, UOMHeatCool}},
		{"heat cool state lockout", func(s *venstar.State) { s.HeatCoolState = 3 }, DriverHeatCoolState, Attribute{DriverHeatCoolState, 13, UOMHeatCool}},
		{"heat cool state error", func(s *venstar.State) { s.HeatCoolState = 4 }, DriverHeatCoolState, Attribute{DriverHeatCoolState, 14, UOMHeatCool}},
		{"schedule part", nil, DriverScheduleMode, Attribute{DriverScheduleMode, 255, UOMIndex}},
		{"humidity", nil, DriverHumidity, Attribute{DriverHumidity, 40, UOMHumidity}},
		{"fan run", nil, DriverFanRunState, Attribute{DriverFanRunState, 1, UOMFanRunState}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := sampleState()
			if tt.mutate != nil {
				tt.mutate(&st)
			}
			got, ok := attr(Update{Attributes: StateAttributes(st)}, tt.driver)
			if !ok || got != tt.want {
				t.Errorf("%s = %+v, want %+v", tt.driver, got, tt.want)
			}
		})
	}
}

func TestApplyStateIdempotent(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(WithPublishers(pub))
	ctx := context.Background()

	first := r.ApplyState(ctx, "a73ab272", sampleState())
	if len(first) != 1 || len(first[0].Attributes) != 11 {
		t.Fatalf("first ApplyState() = %+v", first)
	}
	second := r.ApplyState(ctx, "a73ab272", sampleState())
	if len(second) != 0 {
		t.Errorf("second ApplyState() emitted %+v, want nothing", second)
	}
	if len(pub.updates) != 1 {
		t.Errorf("published %d updates, want 1", len(pub.updates))
	}

	st := sampleState()
	st.CoolTemp = 76
	changed := r.ApplyState(ctx, "a73ab272", st)
	if len(changed) != 1 || len(changed[0].Attributes) != 1 || changed[0].Attributes[0].Driver != DriverCoolSetpoint {
		t.Errorf("ApplyState() after change = %+v, want only CLISPC", changed)
	}
}

func TestApplyStateUnitsChangeSwapsSensors(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(WithPublishers(pub), WithSensorResolver(&fakeResolver{sensors: map[string]thermostat.Sensor{}}))
	ctx := context.Background()

	r.ApplyState(ctx, "a73ab272", sampleState())
	r.ApplyExtended(ctx, "a73ab272", venstar.Extended{
		HasSensors: true,
		Sensors:    []venstar.Sensor{{Name: "Outdoor", Temp: 50, Battery: 90}},
	})

	st := sampleState()
	st.TempUnits = venstar.UnitsCelsius
	updates := r.ApplyState(ctx, "a73ab272", st)
	if len(updates) != 2 {
		t.Fatalf("ApplyState() = %+v, want thermostat and sensor updates", updates)
	}
	for _, a := range updates[0].Attributes {
		if a.Driver != DriverTemp && a.Driver != DriverHeatSetpoint && a.Driver != DriverCoolSetpoint {
			t.Errorf("unexpected attribute on units change: %+v", a)
		}
		if a.UOM != UOMCelsius {
			t.Errorf("%s UOM = %d, want Celsius", a.Driver, a.UOM)
		}
	}
	sensorTemp, ok := attr(updates[1], DriverTemp)
	if updates[1].Address != "a73ab272_s0" || !ok || sensorTemp.UOM != UOMCelsius || sensorTemp.Value != 50 {
		t.Errorf("sensor update = %+v", updates[1])
	}
}

func TestApplyExtended(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(WithPublishers(pub), WithSensorResolver(&fakeResolver{sensors: map[string]thermostat.Sensor{}}))
	ctx := context.Background()

	ext := venstar.Extended{
		HasSensors: true,
		Sensors: []venstar.Sensor{
			{Name: "Thermostat", Temp: 71},
			{Name: "Space Temp", Temp: 71},
			{Name: "Outdoor", Temp: 50, Battery: 80},
		},
		HasAlerts: true,
		Alerts: []venstar.Alert{
			{Name: "Air Filter", Active: true},
			{Name: "Service", Active: false},
			{Name: "Humidifier Pad", Active: true},
		},
	}
	updates := r.ApplyExtended(ctx, "a73ab272", ext)
	if len(updates) != 3 {
		t.Fatalf("ApplyExtended() = %d updates, want 3: %+v", len(updates), updates)
	}
	if len(pub.nodes) != 2 {
		t.Fatalf("nodes announced = %+v, want 2 (no Space Temp)", pub.nodes)
	}
	if pub.nodes[1].Address != "a73ab272_s1" || pub.nodes[1].Parent != "a73ab272" || pub.nodes[1].Kind != NodeSensor {
		t.Errorf("node[1] = %+v", pub.nodes[1])
	}

	alerts := updates[2]
	if alerts.Address != "a73ab272" || len(alerts.Attributes) != 2 {
		t.Fatalf("alert update = %+v", alerts)
	}
	if a, _ := attr(alerts, DriverFilterAlert); a.Value != 1 {
		t.Errorf("GV11 = %+v", a)
	}
	if _, ok := attr(alerts, DriverUVLampAlert); ok {
		t.Error("GV12 emitted for an alert missing from the response")
	}

	if again := r.ApplyExtended(ctx, "a73ab272", ext); len(again) != 0 {
		t.Errorf("second ApplyExtended() = %+v, want nothing", again)
	}
	if len(pub.nodes) != 2 {
		t.Errorf("nodes re-announced: %+v", pub.nodes)
	}
}

func TestApplyExtendedPartial(t *testing.T) {
	r := New()
	ctx := context.Background()

	r.ApplyExtended(ctx, "a", venstar.Extended{HasAlerts: true, Alerts: []venstar.Alert{{Name: "UV Lamp", Active: true}}})
	updates := r.ApplyExtended(ctx, "a", venstar.Extended{HasAlerts: false})
	if len(updates) != 0 {
		t.Errorf("ApplyExtended() without alerts = %+v, want nothing", updates)
	}
	snap := r.Snapshot("a")
	if len(snap) != 1 || snap[0].Driver != DriverUVLampAlert || snap[0].Value != 1 {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestApplyExtendedResolverError(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(WithPublishers(pub), WithSensorResolver(&fakeResolver{err: errors.New("db closed")}))

	r.ApplyExtended(context.Background(), "a", venstar.Extended{HasSensors: true, Sensors: []venstar.Sensor{{Name: "Outdoor"}}})
	if len(pub.nodes) != 0 || len(pub.updates) != 0 {
		t.Errorf("published despite resolver error: %+v %+v", pub.nodes, pub.updates)
	}
}

func TestApplyFailureDefaultEmitsNothing(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(WithPublishers(pub))
	ctx := context.Background()
	r.ApplyState(ctx, "a", sampleState())

	for i := 0; i < 10; i++ {
		if _, ok := r.ApplyFailure(ctx, "a", venstar.ErrDeviceUnreachable); ok {
			t.Fatal("ApplyFailure() emitted with offline reporting disabled")
		}
	}
	if len(pub.updates) != 1 {
		t.Errorf("published %d updates, want only the initial state", len(pub.updates))
	}
	if a, _ := attr(Update{Attributes: r.Snapshot("a")}, DriverOnline); a.Value != 1 {
		t.Errorf("GV0 = %v, want last known state kept", a.Value)
	}
}

func TestApplyFailureOfflineThreshold(t *testing.T) {
	pub := &recordingPublisher{}
	r := New(WithPublishers(pub), WithOfflineAfter(3))
	ctx := context.Background()
	r.ApplyState(ctx, "a", sampleState())

	for i := 1; i <= 5; i++ {
		u, ok := r.ApplyFailure(ctx, "a", venstar.ErrDeviceUnreachable)
		if i == 3 {
			if !ok || len(u.Attributes) != 1 || u.Attributes[0] != (Attribute{DriverOnline, 0, UOMBool}) {
				t.Fatalf("failure %d = %+v, %v; want GV0=0", i, u, ok)
			}
			continue
		}
		if ok {
			t.Errorf("failure %d emitted %+v", i, u)
		}
	}

	updates := r.ApplyState(ctx, "a", sampleState())
	if len(updates) != 1 || len(updates[0].Attributes) != 1 || updates[0].Attributes[0].Value != 1 {
		t.Errorf("recovery = %+v, want GV0=1 only", updates)
	}

	// A successful long poll does not interrupt a run of short failures.
	r.ApplyFailure(ctx, "a", venstar.ErrDeviceUnreachable)
	r.ApplyExtended(ctx, "a", venstar.Extended{HasAlerts: true})
	if _, ok := r.ApplyFailure(ctx, "a", venstar.ErrDeviceUnreachable); ok {
		t.Fatal("second failure emitted")
	}
	if u, ok := r.ApplyFailure(ctx, "a", venstar.ErrDeviceUnreachable); !ok || u.Attributes[0].Value != 0 {
		t.Fatalf("third failure = %+v, %v; want GV0=0 despite the long poll", u, ok)
	}
	r.ApplyState(ctx, "a", sampleState())

	// The count restarts after a successful short poll.
	if _, ok := r.ApplyFailure(ctx, "a", venstar.ErrDeviceUnreachable); ok {
		t.Error("first failure after recovery emitted")
	}
}

func TestPublishNodeSkipsUpdateOnly(t *testing.T) {
	rec := &recordingPublisher{}
	only := &updateOnly{}
	r := New(WithPublishers(rec, only))

	r.PublishNode(context.Background(), Node{Address: "a", Kind: NodeThermostat})
	r.ApplyState(context.Background(), "a", sampleState())
	if len(rec.nodes) != 1 || only.count != 1 {
		t.Errorf("nodes = %d, update-only count = %d", len(rec.nodes), only.count)
	}
}

func TestForget(t *testing.T) {
	pub := &recordingPublisher{}
	only := &updateOnly{}
	r := New(WithPublishers(pub, only))
	ctx := context.Background()
	r.ApplyState(ctx, "a", sampleState())
	r.ApplyExtended(ctx, "a", venstar.Extended{HasSensors: true, Sensors: []venstar.Sensor{{Name: "Outdoor"}}})

	r.Forget(ctx, "a")
	if r.Snapshot("a") != nil || r.Snapshot("a_s0") != nil {
		t.Error("Forget() left cached state")
	}
	if want := []string{"a_s0", "a"}; !slices.Equal(pub.removed, want) {
		t.Errorf("removed nodes = %v, want %v", pub.removed, want)
	}
	if updates := r.ApplyState(ctx, "a", sampleState()); len(updates) != 1 {
		t.Errorf("ApplyState() after Forget = %+v, want full re-emit", updates)
	}
}

func TestUpdateTimestamp(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	r := New(WithClock(func() time.Time { return at }))

	updates := r.ApplyState(context.Background(), "a", sampleState())
	if len(updates) != 1 || !updates[0].Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", updates[0].Timestamp, at)
	}
}

func TestSetUnitsSeedsComparison(t *testing.T) {
	r := New()
	r.SetUnits("a", venstar.UnitsCelsius)
	r.RegisterSensor("a", "Outdoor", "a_s0")
	ctx := context.Background()

	r.ApplyExtended(ctx, "a", venstar.Extended{HasSensors: true, Sensors: []venstar.Sensor{{Name: "Outdoor", Temp: 10}}})
	if a, _ := attr(Update{Attributes: r.Snapshot("a_s0")}, DriverTemp); a.UOM != UOMCelsius {
		t.Errorf("sensor UOM = %d, want Celsius from seeded units", a.UOM)
	}
}
