package mqtt

import "strings"

// TopicPrefix is the root of the bridge's topic tree.
const TopicPrefix = "venstar"

// ControllerAddress is the command address of the bridge itself. Commands
// sent there (DISCOVER, SET_LOGLEVEL) act on the bridge, not a thermostat.
const ControllerAddress = "controller"

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.State("0a0b0c0d") // "venstar/state/0a0b0c0d"
type Topics struct{}

// Command returns the topic on which the controller sends commands for a node.
func (Topics) Command(address string) string {
	return TopicPrefix + "/command/" + address
}

// AllCommands matches every command topic, including the controller's own.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// State returns the retained topic holding a node's reflected attributes.
func (Topics) State(address string) string {
	return TopicPrefix + "/state/" + address
}

// Node returns the retained topic announcing a node's definition.
func (Topics) Node(address string) string {
	return TopicPrefix + "/node/" + address
}

// Event returns the topic for events of one kind.
func (Topics) Event(kind string) string {
	return TopicPrefix + "/event/" + kind
}

// Health returns the retained bridge health topic. It is also the LWT topic.
func (Topics) Health() string {
	return TopicPrefix + "/health/bridge"
}

// ParseCommandTopic extracts the address from a command topic.
func ParseCommandTopic(topic string) (address string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[1] != "command" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
