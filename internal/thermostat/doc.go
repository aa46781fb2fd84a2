// Package thermostat keeps the set of thermostats and sensors the bridge
// manages.
//
// A Registry holds every known thermostat in memory together with its last
// observed snapshot and reachability. Identity (address, device id, host,
// name, units) and the lazily created sensor nodes are persisted through a
// Repository so the node tree survives restarts. Persisted controller
// settings such as the log level live in the same store.
//
// Thermostats are never removed automatically. A device that stops
// answering stays registered and keeps being polled.
package thermostat
