package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/venstar-bridge/internal/bridges/controller"
	"github.com/nerrad567/venstar-bridge/internal/reflector"
	"github.com/nerrad567/venstar-bridge/internal/thermostat"
	"github.com/nerrad567/venstar-bridge/internal/validator"
	"github.com/nerrad567/venstar-bridge/internal/venstar"
)

// thermostatView is a registered thermostat with its reflected attributes.
type thermostatView struct {
	thermostat.Thermostat
	Phase      string                `json:"phase,omitempty"`
	Attributes []reflector.Attribute `json:"attributes"`
}

// commandRequest is the body of POST /thermostats/{address}/commands.
type commandRequest struct {
	Command string   `json:"command"`
	Value   *float64 `json:"value,omitempty"`
}

// commandResponse acknowledges an accepted command.
type commandResponse struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Command string `json:"command"`
	Status  string `json:"status"`
}

func (s *Server) handleListThermostats(w http.ResponseWriter, _ *http.Request) {
	list := s.thermostats.List()
	views := make([]thermostatView, 0, len(list))
	for _, t := range list {
		views = append(views, s.view(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thermostats": views,
		"count":       len(views),
	})
}

func (s *Server) handleGetThermostat(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	t, ok := s.thermostats.Get(address)
	if !ok {
		writeNotFound(w, "thermostat not found")
		return
	}
	writeJSON(w, http.StatusOK, s.view(t))
}

func (s *Server) view(t thermostat.Thermostat) thermostatView {
	v := thermostatView{Thermostat: t, Attributes: []reflector.Attribute{}}
	if s.attributes != nil {
		if attrs := s.attributes.Snapshot(t.Address); attrs != nil {
			v.Attributes = attrs
		}
	}
	if s.phases != nil {
		if p, ok := s.phases.Phase(t.Address); ok {
			v.Phase = p.String()
		}
	}
	return v
}

// handleCommand runs a command synchronously and answers 202 once the
// device has accepted it. Device confirmation arrives through the
// triggered polls.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	msg := controller.CommandMessage{
		ID:        uuid.NewString(),
		Command:   req.Command,
		Value:     req.Value,
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.commandTimeout)
	defer cancel()

	if err := s.commander.Command(ctx, address, msg); err != nil {
		s.logger.Debug("api command failed", "address", address, "command", req.Command, "error", err)
		writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, commandResponse{
		ID:      msg.ID,
		Address: address,
		Command: msg.Command,
		Status:  "accepted",
	})
}

// handleRemoveThermostat stops polling a thermostat and forgets it.
func (s *Server) handleRemoveThermostat(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := s.commander.Remove(r.Context(), address); err != nil {
		writeCommandError(w, err)
		return
	}
	s.logger.Info("thermostat removed via api", "address", address)
	w.WriteHeader(http.StatusNoContent)
}

// writeCommandError maps command failures to HTTP statuses. Device errors
// wrap the context error, so a deadline is checked before reachability.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validator.ErrUnknownThermostat),
		errors.Is(err, thermostat.ErrThermostatNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, controller.ErrInvalidLogLevel),
		errors.Is(err, controller.ErrUnknownCommand),
		errors.Is(err, controller.ErrInvalidPayload):
		writeBadRequest(w, err.Error())
	case errors.Is(err, validator.ErrCommandRejected),
		errors.Is(err, validator.ErrUnknownCommand):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, venstar.ErrDeviceLocked):
		writeError(w, http.StatusLocked, ErrCodeLocked, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not answer in time")
	case errors.Is(err, venstar.ErrDeviceUnreachable),
		errors.Is(err, venstar.ErrDeviceRejected),
		errors.Is(err, controller.ErrDiscoveryFailed):
		writeError(w, http.StatusBadGateway, ErrCodeDevice, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
