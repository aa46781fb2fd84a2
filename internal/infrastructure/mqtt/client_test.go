package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/venstar-bridge/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "venstar-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		got, want string
	}{
		{topics.Command("0a0b0c0d"), "venstar/command/0a0b0c0d"},
		{topics.AllCommands(), "venstar/command/+"},
		{topics.State("0a0b0c0d_s1"), "venstar/state/0a0b0c0d_s1"},
		{topics.Node("0a0b0c0d"), "venstar/node/0a0b0c0d"},
		{topics.Event("device_unreachable"), "venstar/event/device_unreachable"},
		{topics.Health(), "venstar/health/bridge"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseCommandTopic(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"venstar/command/0a0b0c0d", "0a0b0c0d", true},
		{"venstar/command/controller", ControllerAddress, true},
		{"venstar/command/", "", false},
		{"venstar/state/0a0b0c0d", "", false},
		{"other/command/x", "", false},
		{"venstar/command/a/b", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCommandTopic(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseCommandTopic(%q) = %q,%v want %q,%v", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "venstar/state/a", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "venstar/state/a", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "venstar/state/a", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v", err)
	}
	if err := c.Subscribe("venstar/command/+", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v", err)
	}
	if err := c.Subscribe("venstar/command/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
	if err := c.Subscribe("venstar/command/+", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if err := c.Unsubscribe("venstar/command/+"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe(disconnected) error = %v", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestWrapHandler(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{}
	c.SetLogger(logger)

	var got string
	ok := c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})
	ok(nil, fakeMessage{topic: "venstar/command/a", payload: []byte("x")})
	if got != "venstar/command/a=x" {
		t.Errorf("handler saw %q", got)
	}

	failing := c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })
	failing(nil, fakeMessage{topic: "venstar/command/a"})

	panicking := c.wrapHandler(func(string, []byte) error { panic("boom") })
	panicking(nil, fakeMessage{topic: "venstar/command/a"})

	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error", logger.warns)
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want one recovered panic", logger.errors)
	}
}

func TestWrapHandlerDropsOversized(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{}
	c.SetLogger(logger)

	called := false
	h := c.wrapHandler(func(string, []byte) error {
		called = true
		return nil
	})
	h(nil, fakeMessage{topic: "venstar/command/a", payload: make([]byte, maxInboundPayload+1)})

	if called {
		t.Error("handler called for oversized payload")
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one dropped message", logger.warns)
	}

	// No logger set: must not panic.
	(&Client{}).wrapHandler(func(string, []byte) error { return errors.New("x") })(nil, fakeMessage{topic: "t"})
}

func TestCallbacks(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })
	c.handleDisconnect(errors.New("broker gone"))
	if lost == nil || lost.Error() != "broker gone" {
		t.Errorf("onDisconnect got %v", lost)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "venstar-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" {
		t.Errorf("Username = %q", opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set with TLS enabled")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "venstar-test")

	if !opts.WillEnabled || opts.WillTopic != "venstar/health/bridge" || !opts.WillRetained {
		t.Fatalf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var payload map[string]string
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload not JSON: %v", err)
	}
	if payload["status"] != "offline" || payload["reason"] != "unexpected_disconnect" {
		t.Errorf("will payload = %v", payload)
	}
	if !strings.HasSuffix(payload["timestamp"], "Z") {
		t.Errorf("timestamp = %q, want UTC RFC3339", payload["timestamp"])
	}
}
