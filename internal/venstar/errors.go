package venstar

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceUnreachable = errors.New("venstar: device unreachable")
	ErrDeviceRejected    = errors.New("venstar: device rejected request")
	ErrDeviceLocked      = errors.New("venstar: device locked")
	ErrUnsupportedType   = errors.New("venstar: unsupported thermostat type")
	ErrEmptyWrite        = errors.New("venstar: write has no control or setting")
)

// RejectedError carries the reason a thermostat gave for refusing a write.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDeviceRejected, e.Reason)
}

// Unwrap allows errors.Is(err, ErrDeviceRejected).
func (e *RejectedError) Unwrap() error {
	return ErrDeviceRejected
}
