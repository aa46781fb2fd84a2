package controller

import "errors"

// Domain errors for the controller bridge.
var (
	// ErrInvalidPayload is returned when a command payload is not valid JSON
	// or does not match the command schema.
	ErrInvalidPayload = errors.New("controller: invalid command payload")

	// ErrInvalidTopic is returned for messages on a topic the bridge does
	// not route.
	ErrInvalidTopic = errors.New("controller: invalid topic")

	// ErrUnknownCommand is returned for controller commands other than
	// DISCOVER and SET_LOGLEVEL.
	ErrUnknownCommand = errors.New("controller: unknown controller command")

	// ErrInvalidLogLevel is returned when SET_LOGLEVEL carries no usable
	// level.
	ErrInvalidLogLevel = errors.New("controller: invalid log level")

	// ErrDiscoveryFailed is returned when discovery itself fails.
	ErrDiscoveryFailed = errors.New("controller: discovery failed")
)
