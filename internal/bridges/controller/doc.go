// Package controller connects the thermostat pipeline to the home-automation
// controller over MQTT.
//
// The bridge sits between the controller bus and the per-thermostat
// components:
//
//	┌──────────────┐   MQTT   ┌──────────────┐  poll/write  ┌─────────────┐
//	│  Controller  │◄────────►│    Bridge    │◄────────────►│ Thermostats │
//	└──────────────┘          └──────────────┘              └─────────────┘
//
// # Responsibilities
//
//   - Validate command payloads and dispatch them to the command validator
//   - Handle controller-level commands (DISCOVER, SET_LOGLEVEL)
//   - Receive poll results and fan them out to the registry, the reflector,
//     metrics and telemetry
//   - Publish node updates, node definitions, events and bridge health
//
// # Topics
//
// See mqtt.Topics for the topic tree. Commands carry no acknowledgement;
// failures surface as events.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package controller
