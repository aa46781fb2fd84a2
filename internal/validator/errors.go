package validator

import (
	"errors"
	"fmt"
)

var (
	ErrCommandRejected   = errors.New("validator: command rejected")
	ErrUnknownCommand    = errors.New("validator: unknown command")
	ErrUnknownThermostat = errors.New("validator: unknown thermostat")
)

// RejectionError explains why a command was not forwarded.
type RejectionError struct {
	Command string
	Reason  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCommandRejected, e.Command, e.Reason)
}

// Unwrap allows errors.Is(err, ErrCommandRejected).
func (e *RejectionError) Unwrap() error {
	return ErrCommandRejected
}

func reject(command, format string, args ...any) error {
	return &RejectionError{Command: command, Reason: fmt.Sprintf(format, args...)}
}
