package api

import (
	"net/http"
)

// handleDiscover runs a discovery pass and returns its outcome. Concurrent
// callers share the same pass.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	res, err := s.commander.Discover(r.Context())
	if err != nil {
		s.logger.Warn("api discovery failed", "error", err)
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
