// Package api provides the status HTTP API and WebSocket stream of the
// Venstar bridge.
//
// Reads (thermostats, events, health, Prometheus metrics) are open. Writes
// (commands, discovery) require an operator bearer token when a JWT secret is
// configured. The WebSocket hub receives the same node updates and events the
// controller bus does.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
