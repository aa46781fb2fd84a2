// Package mqtt provides the controller bus client for the Venstar bridge.
//
// The controller sees thermostats as nodes on a topic tree:
//
//	venstar/command/<address>   controller -> bridge
//	venstar/state/<address>     bridge -> controller, retained
//	venstar/node/<address>      bridge -> controller, retained
//	venstar/event/<kind>        bridge -> controller
//	venstar/health/bridge       bridge -> controller, retained, LWT
//
// The client wraps paho.mqtt.golang with auto-reconnect, subscription
// restoration, input validation and panic recovery in handlers.
package mqtt
