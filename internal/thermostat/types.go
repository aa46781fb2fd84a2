package thermostat

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/venstar-bridge/internal/discovery"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// SpaceTempSensor is the pseudo-sensor duplicating the thermostat's own
// space temperature. It never becomes a node.
const SpaceTempSensor = "Space Temp"

// Thermostat is a registered device.
type Thermostat struct {
	Address   string    `json:"address"`
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Hostname  string    `json:"hostname"`
	Type      string    `json:"type"`
	TempUnits int       `json:"temp_units"`
	Sensors   []Sensor  `json:"sensors"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Runtime status, not persisted.
	State       *venstar.State `json:"state,omitempty"`
	LastContact time.Time      `json:"last_contact,omitempty"`
	Reachable   bool           `json:"reachable"`
	Locked      bool           `json:"locked"`
	LastError   string         `json:"last_error,omitempty"`
}

// Sensor is a remote temperature sensor attached to a thermostat.
type Sensor struct {
	Address           string    `json:"address"`
	ThermostatAddress string    `json:"thermostat_address"`
	Label             string    `json:"label"`
	Position          int       `json:"position"`
	CreatedAt         time.Time `json:"created_at"`

	Temp    *float64 `json:"temp,omitempty"`
	Battery *int     `json:"battery,omitempty"`
}

// SensorAddress builds the node address of the n-th sensor of a thermostat.
func SensorAddress(thermostatAddress string, n int) string {
	return discovery.NodeAddress(fmt.Sprintf("%s_s%d", thermostatAddress, n))
}

// Sensor returns the sensor with the given label.
func (t *Thermostat) Sensor(label string) (Sensor, bool) {
	for _, s := range t.Sensors {
		if s.Label == label {
			return s, true
		}
	}
	return Sensor{}, false
}

// Validate checks the persisted identity fields.
func (t *Thermostat) Validate() error {
	var problems []string
	if t.Address == "" {
		problems = append(problems, "address is required")
	}
	if t.Hostname == "" {
		problems = append(problems, "hostname is required")
	}
	if t.TempUnits != venstar.UnitsFahrenheit && t.TempUnits != venstar.UnitsCelsius {
		problems = append(problems, fmt.Sprintf("temp_units %d is not 0 or 1", t.TempUnits))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidThermostat, strings.Join(problems, "; "))
	}
	return nil
}
