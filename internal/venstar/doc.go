// Package venstar is a client for the Venstar ColorTouch local API (v4+).
//
// One Client is bound to one thermostat host. Reads go to /query/*,
// writes to /control and /settings. Every call is a single attempt
// bounded by a timeout; the caller decides when to try again.
//
// Failures are classified with three sentinels:
//
//	ErrDeviceUnreachable  timeout, transport error or unexpected HTTP status
//	ErrDeviceLocked       HTTP 401, the thermostat is PIN protected
//	ErrDeviceRejected     the device answered with {"error":true,"reason":...}
package venstar
