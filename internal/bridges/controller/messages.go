package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nerrad567/venstar-bridge/internal/reflector"
	"github.com/nerrad567/venstar-bridge/internal/validator"
)

// Controller-level commands, sent to mqtt.ControllerAddress.
const (
	CmdDiscover    = "DISCOVER"
	CmdSetLogLevel = "SET_LOGLEVEL"
)

// Driver reporting the bridge's controller log level.
const DriverLogLevel = "GV20"

// commandSchemaDoc describes an inbound command.
// Topic: venstar/command/{address}
const commandSchemaDoc = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["id", "command"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"command": {"type": "string", "pattern": "^[A-Z_]+$"},
		"value": {"type": "number"},
		"timestamp": {"type": "string", "format": "date-time"}
	}
}`

var commandSchema = mustCompileSchema("command.json", commandSchemaDoc)

func mustCompileSchema(name, doc string) *jsonschema.Schema {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(doc)))
	if err != nil {
		panic(fmt.Sprintf("parsing %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(name, parsed); err != nil {
		panic(fmt.Sprintf("adding %s: %v", name, err))
	}
	return c.MustCompile(name)
}

// CommandMessage is sent by the controller to act on a node.
// Topic: venstar/command/{address}
type CommandMessage struct {
	// ID correlates the command with events it causes.
	ID string `json:"id"`

	// Command is the command name (e.g. "SET_CLISPH", "DISCOVER").
	Command string `json:"command"`

	// Value is the command argument, when the command takes one.
	Value *float64 `json:"value,omitempty"`

	// Timestamp is when the controller issued the command.
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// ParseCommand validates payload against the command schema and decodes it.
func ParseCommand(payload []byte) (CommandMessage, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := commandSchema.Validate(doc); err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return msg, nil
}

// ValidatorCommand converts the message for the command validator.
func (m CommandMessage) ValidatorCommand() validator.Command {
	return validator.Command{ID: m.ID, Name: m.Command, Value: m.Value}
}

// StateMessage carries every reflected attribute of a node.
// Topic: venstar/state/{address}
// QoS: configured, Retained: Yes
type StateMessage struct {
	Address    string                `json:"address"`
	Attributes []reflector.Attribute `json:"attributes"`

	// Changed lists the drivers that changed in this update.
	Changed   []string  `json:"changed"`
	Timestamp time.Time `json:"timestamp"`
}

func newStateMessage(u reflector.Update, all map[string]reflector.Attribute) StateMessage {
	attrs := make([]reflector.Attribute, 0, len(all))
	for _, a := range all {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Driver < attrs[j].Driver })

	changed := make([]string, len(u.Attributes))
	for i, a := range u.Attributes {
		changed[i] = a.Driver
	}
	return StateMessage{
		Address:    u.Address,
		Attributes: attrs,
		Changed:    changed,
		Timestamp:  u.Timestamp.UTC(),
	}
}

// HealthStatus is the bridge's self-reported state.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published periodically.
// Topic: venstar/health/bridge
// QoS: 1, Retained: Yes
//
// The LWT on the same topic carries {"status":"offline"}.
type HealthMessage struct {
	Status      HealthStatus `json:"status"`
	ClientID    string       `json:"client_id"`
	Version     string       `json:"version"`
	Reason      string       `json:"reason,omitempty"`
	Uptime      int64        `json:"uptime_seconds"`
	Thermostats int          `json:"thermostats"`
	Reachable   int          `json:"reachable"`
	Timestamp   time.Time    `json:"timestamp"`
}
