package reflector

import (
	"time"

	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Driver names understood by the controller.
const (
	DriverOnline        = "GV0"
	DriverAway          = "GV1"
	DriverTemp          = "ST"
	DriverHeatSetpoint  = "CLISPH"
	DriverCoolSetpoint  = "CLISPC"
	DriverHumidity      = "CLIHUM"
	DriverMode          = "CLIMD"
	DriverFanMode       = "CLIFS"
	DriverHeatCoolState = "CLIHCS"
	DriverFanRunState   = "CLIFRS"
	DriverScheduleMode  = "CLISMD"
	DriverFilterAlert   = "GV11"
	DriverUVLampAlert   = "GV12"
	DriverServiceAlert  = "GV13"
	DriverBattery       = "BATLVL"
)

// Units of measure.
const (
	UOMBool        = 2
	UOMCelsius     = 4
	UOMFahrenheit  = 17
	UOMHumidity    = 22
	UOMIndex       = 25
	UOMPercent     = 51
	UOMHeatCool    = 66
	UOMMode        = 67
	UOMFanMode     = 68
	UOMFanRunState = 80
)

// ModeAway is the controller's mode index for away.
const ModeAway = 13

// Heat/cool states above 2 are shifted into the controller's index.
const heatCoolOffset = 10

// alertDrivers maps the alert names reflected as drivers.
var alertDrivers = map[string]string{
	"Air Filter": DriverFilterAlert,
	"UV Lamp":    DriverUVLampAlert,
	"Service":    DriverServiceAlert,
}

// Attribute is one driver value.
type Attribute struct {
	Driver string  `json:"driver"`
	Value  float64 `json:"value"`
	UOM    int     `json:"uom"`
}

// Update is the set of changed attributes of one node.
type Update struct {
	Address    string      `json:"address"`
	Attributes []Attribute `json:"attributes"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NodeKind distinguishes thermostat and sensor nodes.
type NodeKind string

const (
	NodeThermostat NodeKind = "thermostat"
	NodeSensor     NodeKind = "sensor"
)

// Node describes a node to create on the controller.
type Node struct {
	Address string   `json:"address"`
	Parent  string   `json:"parent,omitempty"`
	Name    string   `json:"name"`
	Kind    NodeKind `json:"kind"`
}

// TempUOM returns the temperature unit for the device's tempunits value.
func TempUOM(units int) int {
	if units == venstar.UnitsCelsius {
		return UOMCelsius
	}
	return UOMFahrenheit
}

func isTempDriver(driver string) bool {
	return driver == DriverTemp || driver == DriverHeatSetpoint || driver == DriverCoolSetpoint
}

// StateAttributes maps a short-poll snapshot to thermostat attributes.
func StateAttributes(st venstar.State) []Attribute {
	temp := TempUOM(st.TempUnits)

	mode := float64(st.Mode)
	if st.IsAway() {
		mode = ModeAway
	}
	hcs := st.HeatCoolState
	if hcs > 2 {
		hcs += heatCoolOffset
	}

	return []Attribute{
		{DriverOnline, 1, UOMBool},
		{DriverTemp, st.SpaceTemp, temp},
		{DriverHeatSetpoint, st.HeatTemp, temp},
		{DriverCoolSetpoint, st.CoolTemp, temp},
		{DriverHumidity, st.Humidity, UOMHumidity},
		{DriverMode, mode, UOMMode},
		{DriverFanMode, float64(st.Fan), UOMFanMode},
		{DriverHeatCoolState, float64(hcs), UOMHeatCool},
		{DriverFanRunState, float64(st.FanState), UOMFanRunState},
		{DriverScheduleMode, float64(st.SchedulePart), UOMIndex},
		{DriverAway, float64(st.Away), UOMBool},
	}
}

// AlertAttributes maps the known alerts present in alerts. Alerts missing
// from the response produce no attribute.
func AlertAttributes(alerts []venstar.Alert) []Attribute {
	var out []Attribute
	for _, a := range alerts {
		driver, ok := alertDrivers[a.Name]
		if !ok {
			continue
		}
		v := 0.0
		if a.Active {
			v = 1
		}
		out = append(out, Attribute{driver, v, UOMIndex})
	}
	return out
}

// SensorAttributes maps one remote sensor reading.
func SensorAttributes(s venstar.Sensor, units int) []Attribute {
	return []Attribute{
		{DriverTemp, s.Temp, TempUOM(units)},
		{DriverBattery, float64(s.Battery), UOMPercent},
	}
}
