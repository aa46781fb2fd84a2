package controller

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/venstar-bridge/internal/events"
	"github.com/nerrad567/venstar-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/venstar-bridge/internal/reflector"
)

// MessagePublisher sends MQTT messages. *mqtt.Client satisfies it.
type MessagePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publisher writes reflector output and events to the controller bus.
// It implements reflector.Publisher, reflector.NodePublisher,
// reflector.NodeRemover and events.Reporter.
//
// State topics are retained, so each message carries the node's full
// attribute set rather than only the changed drivers.
type Publisher struct {
	client MessagePublisher
	qos    byte
	topics mqtt.Topics

	mu    sync.Mutex
	state map[string]map[string]reflector.Attribute

	logger   Logger
	loggerMu sync.RWMutex
}

// NewPublisher creates a Publisher using qos for every message.
func NewPublisher(client MessagePublisher, qos byte) *Publisher {
	return &Publisher{
		client: client,
		qos:    qos,
		state:  make(map[string]map[string]reflector.Attribute),
	}
}

// SetLogger sets the logger for publish failures.
func (p *Publisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// PublishUpdate publishes a node's attributes after merging the update.
func (p *Publisher) PublishUpdate(_ context.Context, u reflector.Update) {
	p.mu.Lock()
	node, ok := p.state[u.Address]
	if !ok {
		node = make(map[string]reflector.Attribute)
		p.state[u.Address] = node
	}
	for _, a := range u.Attributes {
		node[a.Driver] = a
	}
	msg := newStateMessage(u, node)
	p.mu.Unlock()

	p.send(p.topics.State(u.Address), msg, true)
}

// PublishNode announces a node definition.
func (p *Publisher) PublishNode(_ context.Context, n reflector.Node) {
	p.send(p.topics.Node(n.Address), n, true)
}

// Report publishes an event on its kind's topic.
func (p *Publisher) Report(_ context.Context, e events.Event) {
	p.send(p.topics.Event(string(e.Kind)), e, false)
}

// RemoveNode drops the merged state of a node and clears its retained
// state and node messages with empty payloads.
func (p *Publisher) RemoveNode(_ context.Context, address string) {
	p.mu.Lock()
	delete(p.state, address)
	p.mu.Unlock()

	for _, topic := range []string{p.topics.State(address), p.topics.Node(address)} {
		if err := p.client.Publish(topic, nil, p.qos, true); err != nil {
			p.logError("failed to clear retained message", err, topic)
		}
	}
}

func (p *Publisher) send(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logError("failed to encode message", err, topic)
		return
	}
	if err := p.client.Publish(topic, payload, p.qos, retained); err != nil {
		p.logError("failed to publish message", err, topic)
	}
}

func (p *Publisher) logError(msg string, err error, topic string) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "topic", topic, "error", err)
	}
}
