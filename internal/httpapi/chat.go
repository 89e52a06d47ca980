package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/amical/internal/chat"
	"github.com/ent0n29/amical/internal/inference"
	"github.com/ent0n29/amical/internal/store"
	"github.com/ent0n29/amical/internal/views"
)

type chatRequest struct {
	PersonaID string `json:"personaId"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Message string `json:"message"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// handleChat is the inference endpoint: it answers a message that the caller
// has already stored as a user turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "personaId and message are required")
		return
	}
	req.PersonaID = strings.TrimSpace(req.PersonaID)
	if req.PersonaID == "" || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "personaId and message are required")
		return
	}

	reply, err := s.chat.Reply(r.Context(), req.PersonaID, req.Message)
	if err != nil {
		status, code, msg := chatFailure(err)
		respondError(w, status, code, msg)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Message: reply})
}

// handleSendMessage runs the whole send flow for clients without a websocket.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	personaID := strings.TrimSpace(chi.URLParam(r, "id"))
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	result, err := s.chat.Send(r.Context(), personaID, req.Message)
	if err != nil {
		status, code, _ := chatFailure(err)
		respondError(w, status, code, views.SendNotice(err))
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// chatFailure maps a reply error to a status, code and generic message.
// Upstream detail is logged by the chat service, never returned.
func chatFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "invalid_request", "message is required"
	case errors.Is(err, store.ErrInvalidTurn):
		return http.StatusBadRequest, "invalid_request", "message is invalid"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "persona_not_found", "Persona not found"
	case errors.Is(err, inference.ErrMissingCredential):
		return http.StatusInternalServerError, "inference_unconfigured", "Inference is not configured"
	case errors.Is(err, inference.ErrUpstream):
		return http.StatusBadGateway, "upstream_error", "AI gateway error"
	case errors.Is(err, inference.ErrMalformedReply):
		return http.StatusBadGateway, "malformed_reply", "AI gateway returned no reply"
	default:
		log.Printf("chat request failed: %v", err)
		return http.StatusInternalServerError, "internal_error", "Internal error"
	}
}
