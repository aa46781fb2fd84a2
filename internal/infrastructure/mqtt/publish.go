package mqtt

import (
	"fmt"
)

const (
	// maxPayloadSize caps an outbound message. A thermostat state snapshot
	// is a few hundred bytes.
	maxPayloadSize = 1 << 20

	// maxInboundPayload caps an inbound command message.
	maxInboundPayload = 64 << 10
)

// Publish sends payload to topic and waits for the broker to accept it.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// PublishRetained publishes with the configured QoS and the retain flag set,
// so a restarted controller sees current node state immediately.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, c.qos(), true)
}
