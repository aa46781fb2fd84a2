package api

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/nerrad567/venstar-bridge/internal/events"
)

// handleListEvents pages through stored failure events, newest first.
// Query: kind, address, limit, offset.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event store not configured")
		return
	}

	q := r.URL.Query()
	filter := events.Filter{
		Kind:    events.Kind(q.Get("kind")),
		Address: q.Get("address"),
	}
	if filter.Kind != "" && !slices.Contains(events.Kinds, filter.Kind) {
		writeBadRequest(w, "unknown event kind: "+string(filter.Kind))
		return
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	res, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing events", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
