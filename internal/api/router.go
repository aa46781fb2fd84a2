package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/venstar-bridge/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/thermostats", s.handleListThermostats)
		r.Get("/thermostats/{address}", s.handleGetThermostat)
		r.Get("/events", s.handleListEvents)

		// Token in the query string, since browsers cannot set headers on
		// WebSocket upgrades.
		r.With(s.requireRole(auth.RoleViewer, tokenFromQuery)).Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleOperator, tokenFromHeader))
			r.Post("/thermostats/{address}/commands", s.handleCommand)
			r.Delete("/thermostats/{address}", s.handleRemoveThermostat)
			r.Post("/discover", s.handleDiscover)
		})
	})

	return r
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	MQTTConnected bool   `json:"mqtt_connected"`
	Thermostats   int    `json:"thermostats"`
	Reachable     int    `json:"reachable"`
	WSClients     int    `json:"websocket_clients"`
}

// handleHealth returns the bridge health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		MQTTConnected: s.mqtt != nil && s.mqtt.IsConnected(),
		WSClients:     s.hub.ClientCount(),
	}
	for _, t := range s.thermostats.List() {
		resp.Thermostats++
		if t.Reachable {
			resp.Reachable++
		}
	}
	if !resp.MQTTConnected || resp.Reachable < resp.Thermostats {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}
