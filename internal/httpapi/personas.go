package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/amical/internal/prompt"
	"github.com/ent0n29/amical/internal/store"
	"github.com/ent0n29/amical/internal/views"
)

type appendTurnRequest struct {
	Role    store.Role `json:"role"`
	Content string     `json:"content"`
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := views.NewListing(s.store).Load(r.Context())
	if err != nil {
		log.Printf("list personas failed: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "could not load personas")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"personas": personas})
}

func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	var form views.CreateForm
	if err := decodeJSON(r, &form); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	np, err := form.Validate()
	if err != nil {
		var verr *views.ValidationError
		if errors.As(err, &verr) {
			respondJSON(w, http.StatusBadRequest, errorResponse{
				Error:  views.NoticeCreateFailed,
				Code:   "invalid_persona",
				Fields: verr.Fields,
			})
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_persona", views.NoticeCreateFailed)
		return
	}

	persona, err := s.store.CreatePersona(r.Context(), np)
	if err != nil {
		log.Printf("create persona failed: %v", err)
		respondError(w, http.StatusInternalServerError, "create_failed", views.NoticeCreateFailed)
		return
	}
	respondJSON(w, http.StatusCreated, persona)
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	persona, ok := s.loadPersona(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, persona)
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	persona, ok := s.loadPersona(w, r)
	if !ok {
		return
	}
	turns, err := s.store.ListTurns(r.Context(), persona.ID)
	if err != nil {
		log.Printf("list turns failed persona=%s: %v", persona.ID, err)
		respondError(w, http.StatusInternalServerError, "internal_error", views.NoticeLoadFailed)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleAppendTurn(w http.ResponseWriter, r *http.Request) {
	personaID := strings.TrimSpace(chi.URLParam(r, "id"))
	var req appendTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	turn, err := s.store.AppendTurn(r.Context(), store.Turn{
		PersonaID: personaID,
		Role:      req.Role,
		Content:   req.Content,
	})
	switch {
	case err == nil:
		respondJSON(w, http.StatusCreated, turn)
	case errors.Is(err, store.ErrInvalidTurn):
		respondError(w, http.StatusBadRequest, "invalid_turn", err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "persona_not_found", "persona not found")
	default:
		log.Printf("append turn failed persona=%s: %v", personaID, err)
		respondError(w, http.StatusInternalServerError, "internal_error", views.NoticeSendFailed)
	}
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	limit := prompt.MaxMemories
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer in [1, 100]")
			return
		}
		limit = n
	}
	ranking := s.cfg.MemoryRanking
	if raw := strings.TrimSpace(r.URL.Query().Get("ranking")); raw != "" {
		parsed, err := store.ParseRanking(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_ranking", err.Error())
			return
		}
		ranking = parsed
	}
	if ranking == "" {
		ranking = store.DefaultRanking
	}

	persona, ok := s.loadPersona(w, r)
	if !ok {
		return
	}
	memories, err := s.store.TopMemories(r.Context(), persona.ID, limit, ranking)
	if err != nil {
		log.Printf("list memories failed persona=%s: %v", persona.ID, err)
		respondError(w, http.StatusInternalServerError, "internal_error", views.NoticeLoadFailed)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"memories": memories,
		"ranking":  ranking,
	})
}

// loadPersona resolves {id} and writes the error response when it fails.
func (s *Server) loadPersona(w http.ResponseWriter, r *http.Request) (store.Persona, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_persona_id", "missing persona id")
		return store.Persona{}, false
	}
	persona, err := s.store.GetPersona(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "persona_not_found", views.NoticeLoadFailed)
			return store.Persona{}, false
		}
		log.Printf("get persona failed id=%s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "internal_error", views.NoticeLoadFailed)
		return store.Persona{}, false
	}
	return persona, true
}
