package venstar

import (
	"fmt"
	"strings"
	"time"
)

// Thermostat types reported by GET /.
const (
	TypeResidential = "residential"
	TypeCommercial  = "commercial"
)

// Mode is the thermostat operating mode as used by /control.
type Mode int

const (
	ModeOff  Mode = 0
	ModeHeat Mode = 1
	ModeCool Mode = 2
	ModeAuto Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeHeat:
		return "heat"
	case ModeCool:
		return "cool"
	case ModeAuto:
		return "auto"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether the device accepts m in /control.
func (m Mode) Valid() bool {
	return m >= ModeOff && m <= ModeAuto
}

// FanMode is the fan setting: auto or on.
type FanMode int

const (
	FanAuto FanMode = 0
	FanOn   FanMode = 1
)

// Temperature units as reported in tempunits.
const (
	UnitsFahrenheit = 0
	UnitsCelsius    = 1
)

// SchedulePartInactive is reported in schedulepart when no schedule runs.
const SchedulePartInactive = 255

// Setting names accepted by /settings.
type Setting string

const (
	SettingTempUnits  Setting = "tempunits"
	SettingAway       Setting = "away"
	SettingSchedule   Setting = "schedule"
	SettingHumidify   Setting = "hum_setpoint"
	SettingDehumidify Setting = "dehum_setpoint"
)

// Accepted ranges for the humidity setpoints, in percent.
const (
	HumidifyMin   = 0
	HumidifyMax   = 60
	DehumidifyMin = 25
	DehumidifyMax = 99
)

// APIInfo is the response of GET /.
type APIInfo struct {
	APIVersion int    `json:"api_ver"`
	Type       string `json:"type"`
	Model      string `json:"model"`
	Firmware   string `json:"firmware"`
}

// Identity is what discovery learns from a device before adding it.
type Identity struct {
	APIInfo
	Name      string
	TempUnits int
}

// State is the live snapshot from GET /query/info.
type State struct {
	Name          string  `json:"name"`
	Mode          Mode    `json:"mode"`
	HeatCoolState int     `json:"state"`
	Fan           FanMode `json:"fan"`
	FanState      int     `json:"fanstate"`
	TempUnits     int     `json:"tempunits"`
	Schedule      int     `json:"schedule"`
	SchedulePart  int     `json:"schedulepart"`
	Away          int     `json:"away"`
	SpaceTemp     float64 `json:"spacetemp"`
	HeatTemp      float64 `json:"heattemp"`
	CoolTemp      float64 `json:"cooltemp"`
	HeatTempMin   float64 `json:"heattempmin"`
	HeatTempMax   float64 `json:"heattempmax"`
	CoolTempMin   float64 `json:"cooltempmin"`
	CoolTempMax   float64 `json:"cooltempmax"`
	SetpointDelta float64 `json:"setpointdelta"`
	Humidity      float64 `json:"hum"`
	HumSetpoint   int     `json:"hum_setpoint"`
	DehumSetpoint int     `json:"dehum_setpoint"`
}

// IsAway reports whether the thermostat is in away mode.
func (s State) IsAway() bool {
	return s.Away == 1
}

// Sensor is one entry of GET /query/sensors.
type Sensor struct {
	Name    string  `json:"name"`
	Temp    float64 `json:"temp"`
	Battery int     `json:"battery"`
	Type    string  `json:"type"`
}

// Alert is one entry of GET /query/alerts.
type Alert struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Runtime is one day of equipment runtime in minutes from GET /query/runtimes.
type Runtime struct {
	Timestamp int64 `json:"ts"`
	Heat1     int   `json:"heat1"`
	Heat2     int   `json:"heat2"`
	Cool1     int   `json:"cool1"`
	Cool2     int   `json:"cool2"`
	Aux1      int   `json:"aux1"`
	Aux2      int   `json:"aux2"`
	FanCool   int   `json:"fc"`
}

// Day returns the day the record covers.
func (r Runtime) Day() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// Minutes returns the record keyed by stage name.
func (r Runtime) Minutes() map[string]int {
	return map[string]int{
		"heat1": r.Heat1,
		"heat2": r.Heat2,
		"cool1": r.Cool1,
		"cool2": r.Cool2,
		"aux1":  r.Aux1,
		"aux2":  r.Aux2,
		"fc":    r.FanCool,
	}
}

// Extended is the long-cycle snapshot. Sections whose request failed are
// left unset and flagged false so the caller can keep the previous values.
type Extended struct {
	Sensors    []Sensor
	HasSensors bool
	Alerts     []Alert
	HasAlerts  bool
	Runtimes   []Runtime
}

// Control is a /control request. Nil fields are not sent.
type Control struct {
	Mode     *Mode
	Fan      *FanMode
	HeatTemp *float64
	CoolTemp *float64
}

// Write is one device write: a control change or a single setting.
type Write struct {
	Control *Control
	Setting Setting
	Value   int
}

// ControlWrite wraps a Control as a Write.
func ControlWrite(c Control) Write {
	return Write{Control: &c}
}

// SettingWrite builds a /settings write.
func SettingWrite(s Setting, value int) Write {
	return Write{Setting: s, Value: value}
}

func (w Write) String() string {
	if w.Control == nil {
		return fmt.Sprintf("settings(%s=%d)", w.Setting, w.Value)
	}
	var parts []string
	if w.Control.Mode != nil {
		parts = append(parts, fmt.Sprintf("mode=%d", *w.Control.Mode))
	}
	if w.Control.Fan != nil {
		parts = append(parts, fmt.Sprintf("fan=%d", *w.Control.Fan))
	}
	if w.Control.HeatTemp != nil {
		parts = append(parts, fmt.Sprintf("heattemp=%g", *w.Control.HeatTemp))
	}
	if w.Control.CoolTemp != nil {
		parts = append(parts, fmt.Sprintf("cooltemp=%g", *w.Control.CoolTemp))
	}
	return "control(" + strings.Join(parts, ",") + ")"
}
