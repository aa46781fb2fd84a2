package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/venstar-bridge/internal/infrastructure/config"
)

// Client is the bridge's connection to the controller broker.
//
// Command subscriptions are remembered and replayed on every reconnect, and
// the broker holds an offline health message as the Last Will.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	connected atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hooksMu      sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's delivery goroutines and should return quickly.
// A returned error is logged at warn level.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by cfg and waits for the first
// CONNACK. The Last Will is set on the bridge health topic.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	c.options = buildClientOptions(cfg)
	configureLWT(c.options, cfg.Broker.ClientID)
	c.options.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(c.options)
	if err := await(c.client.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// OnConnect fires asynchronously; don't make the first Publish race it.
	c.connected.Store(true)
	return c, nil
}

// await waits for a paho token and wraps a timeout or failure in sentinel.
func await(tok pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.resubscribe()

	c.hooksMu.RLock()
	cb := c.onConnect
	c.hooksMu.RUnlock()
	if cb != nil {
		cb()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.hooksMu.RLock()
	cb := c.onDisconnect
	c.hooksMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// resubscribe replays tracked subscriptions. The clean session drops them
// broker-side on every reconnect.
func (c *Client) resubscribe() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for topic, sub := range c.subscriptions {
		c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// Close publishes a graceful offline health message and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		//nolint:errcheck // best effort; the LWT covers a failed publish
		await(c.client.Publish(Topics{}.Health(), c.qos(), true,
			statusPayload("offline", c.cfg.Broker.ClientID, "graceful_shutdown")),
			defaultPublishTimeout, ErrPublishFailed)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback invoked on initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.hooksMu.Lock()
	c.onConnect = callback
	c.hooksMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hooksMu.Lock()
	c.onDisconnect = callback
	c.hooksMu.Unlock()
}

// SetLogger sets a logger for handler errors and recovered panics.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) log() Logger {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	if c.logger == nil {
		return nopLogger{}
	}
	return c.logger
}

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) //nolint:gosec // config validation bounds QoS to 0..2
}

// wrapHandler adapts a MessageHandler to paho. Oversized messages are
// dropped before the handler sees them, and panics are recovered.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}()

		payload := msg.Payload()
		if len(payload) > maxInboundPayload {
			c.log().Warn("MQTT message dropped", "topic", topic, "size", len(payload), "limit", maxInboundPayload)
			return
		}
		if err := handler(topic, payload); err != nil {
			c.log().Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
