// Package events is the one-way failure channel of the bridge.
//
// The controller protocol has no way to acknowledge a command or surface
// a device error, so every failure the bridge cannot hand back becomes an
// Event. Events fan out to any number of Reporters: the log, the SQLite
// event table, the MQTT event topic and connected websocket clients.
package events
