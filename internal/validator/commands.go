package validator

import (
	"math"

	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// Thermostat node commands.
const (
	CmdBrighten      = "BRT"
	CmdDim           = "DIM"
	CmdSetHeat       = "SET_CLISPH"
	CmdSetCool       = "SET_CLISPC"
	CmdSetMode       = "SET_CLIMD"
	CmdSetFan        = "SET_CLIFS"
	CmdScheduleOn    = "SCHED_ON"
	CmdScheduleOff   = "SCHED_OFF"
	CmdSetHumidify   = "SET_HUMSP"
	CmdSetDehumidify = "SET_DEHUMSP"
	CmdQuery         = "QUERY"
)

// awayMode is the SET_CLIMD value that turns away mode on.
const awayMode = 13

// Commands lists every thermostat command.
var Commands = []string{
	CmdBrighten, CmdDim, CmdSetHeat, CmdSetCool, CmdSetMode, CmdSetFan,
	CmdScheduleOn, CmdScheduleOff, CmdSetHumidify, CmdSetDehumidify, CmdQuery,
}

// Command is one controller request for a thermostat.
type Command struct {
	ID    string   `json:"id,omitempty"`
	Name  string   `json:"command"`
	Value *float64 `json:"value,omitempty"`
}

// Phase is the validator's view of a thermostat.
type Phase int

const (
	PhaseNormal Phase = iota
	PhaseAway
	PhaseLocked
)

func (p Phase) String() string {
	switch p {
	case PhaseNormal:
		return "normal"
	case PhaseAway:
		return "away"
	case PhaseLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Plan checks cmd against the phase and last snapshot and returns the
// writes that carry it out, in order. QUERY plans no writes.
func Plan(phase Phase, st *venstar.State, cmd Command) ([]venstar.Write, error) {
	if !isKnown(cmd.Name) {
		return nil, ErrUnknownCommand
	}
	if cmd.Name == CmdQuery {
		return nil, nil
	}
	if phase == PhaseLocked {
		return nil, reject(cmd.Name, "thermostat is locked")
	}
	if st == nil {
		return nil, reject(cmd.Name, "thermostat state not yet known")
	}
	away := phase == PhaseAway || st.IsAway()

	switch cmd.Name {
	case CmdBrighten, CmdDim:
		return planNudge(cmd.Name, st, away)
	case CmdSetHeat, CmdSetCool:
		return planSetpoint(cmd, st, away)
	case CmdSetMode:
		return planMode(cmd, st, away)
	case CmdSetFan:
		return planFan(cmd, away)
	case CmdScheduleOn, CmdScheduleOff:
		if away {
			return nil, reject(cmd.Name, "schedule cannot change while away")
		}
		v := 0
		if cmd.Name == CmdScheduleOn {
			v = 1
		}
		return []venstar.Write{venstar.SettingWrite(venstar.SettingSchedule, v)}, nil
	case CmdSetHumidify:
		return planHumidity(cmd, away, venstar.SettingHumidify, venstar.HumidifyMin, venstar.HumidifyMax)
	case CmdSetDehumidify:
		return planHumidity(cmd, away, venstar.SettingDehumidify, venstar.DehumidifyMin, venstar.DehumidifyMax)
	}
	return nil, ErrUnknownCommand
}

func planNudge(name string, st *venstar.State, away bool) ([]venstar.Write, error) {
	if away {
		return nil, reject(name, "setpoints cannot change while away")
	}
	if st.Mode == venstar.ModeOff {
		return nil, reject(name, "setpoints cannot change while off")
	}
	step := 1.0
	if name == CmdDim {
		step = -1
	}
	heat, cool := st.HeatTemp, st.CoolTemp
	if st.Mode == venstar.ModeHeat || st.Mode == venstar.ModeAuto {
		heat += step
	}
	if st.Mode == venstar.ModeCool || st.Mode == venstar.ModeAuto {
		cool += step
	}
	return []venstar.Write{venstar.ControlWrite(venstar.Control{HeatTemp: &heat, CoolTemp: &cool})}, nil
}

func planSetpoint(cmd Command, st *venstar.State, away bool) ([]venstar.Write, error) {
	if away {
		return nil, reject(cmd.Name, "setpoints cannot change while away")
	}
	if cmd.Value == nil {
		return nil, reject(cmd.Name, "value is required")
	}
	heat, cool := st.HeatTemp, st.CoolTemp
	if cmd.Name == CmdSetHeat {
		heat = *cmd.Value
	} else {
		cool = *cmd.Value
	}
	if st.Mode == venstar.ModeAuto && cool-heat < st.SetpointDelta {
		return nil, reject(cmd.Name, "cool setpoint %g must be at least %g above heat setpoint %g in auto mode",
			cool, st.SetpointDelta, heat)
	}
	return []venstar.Write{venstar.ControlWrite(venstar.Control{HeatTemp: &heat, CoolTemp: &cool})}, nil
}

func planMode(cmd Command, st *venstar.State, away bool) ([]venstar.Write, error) {
	n, ok := intValue(cmd.Value)
	if !ok {
		return nil, reject(cmd.Name, "integer value is required")
	}
	if n == awayMode {
		return []venstar.Write{venstar.SettingWrite(venstar.SettingAway, 1)}, nil
	}
	mode := venstar.Mode(n)
	if !mode.Valid() {
		return nil, reject(cmd.Name, "mode %d is not supported", n)
	}

	var writes []venstar.Write
	if away {
		writes = append(writes, venstar.SettingWrite(venstar.SettingAway, 0))
	}
	heat, cool := st.HeatTemp, st.CoolTemp
	writes = append(writes, venstar.ControlWrite(venstar.Control{Mode: &mode, HeatTemp: &heat, CoolTemp: &cool}))
	return writes, nil
}

func planFan(cmd Command, away bool) ([]venstar.Write, error) {
	if away {
		return nil, reject(cmd.Name, "fan cannot change while away")
	}
	n, ok := intValue(cmd.Value)
	if !ok || (n != int(venstar.FanAuto) && n != int(venstar.FanOn)) {
		return nil, reject(cmd.Name, "fan mode must be 0 or 1")
	}
	fan := venstar.FanMode(n)
	return []venstar.Write{venstar.ControlWrite(venstar.Control{Fan: &fan})}, nil
}

func planHumidity(cmd Command, away bool, setting venstar.Setting, lo, hi int) ([]venstar.Write, error) {
	if away {
		return nil, reject(cmd.Name, "humidity cannot change while away")
	}
	n, ok := intValue(cmd.Value)
	if !ok {
		return nil, reject(cmd.Name, "integer value is required")
	}
	if n < lo || n > hi {
		return nil, reject(cmd.Name, "value %d outside %d..%d", n, lo, hi)
	}
	return []venstar.Write{venstar.SettingWrite(setting, n)}, nil
}

func intValue(v *float64) (int, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v != math.Trunc(*v) {
		return 0, false
	}
	return int(*v), true
}

func isKnown(name string) bool {
	for _, c := range Commands {
		if c == name {
			return true
		}
	}
	return false
}
