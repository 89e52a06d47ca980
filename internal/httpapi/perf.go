package httpapi

import "net/http"

func (s *Server) handleReplyStages(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.ReplyStages())
}

func (s *Server) handleResetReplyStages(w http.ResponseWriter, _ *http.Request) {
	if s.metrics != nil {
		s.metrics.ResetReplyStages()
	}
	w.WriteHeader(http.StatusNoContent)
}
