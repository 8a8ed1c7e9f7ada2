package api

import "net/http"

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_depth": s.orchestrator.QueueDepth(),
		"maps":        s.orchestrator.Maps().Len(),
		"phases":      s.orchestrator.Stats().Snapshot(),
	})
}
