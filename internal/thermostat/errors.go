package thermostat

import "errors"

var (
	ErrThermostatNotFound = errors.New("thermostat: not found")
	ErrSettingNotFound    = errors.New("thermostat: setting not found")
	ErrInvalidThermostat  = errors.New("thermostat: invalid thermostat")
	ErrHostnameExists     = errors.New("thermostat: hostname already registered")
)
