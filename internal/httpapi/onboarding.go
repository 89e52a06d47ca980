package httpapi

import (
	"fmt"
	"net/http"
	"strings"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	StoreMode         string            `json:"store_mode"`
	InferenceProvider string            `json:"inference_provider"`
	MemoryRanking     string            `json:"memory_ranking"`
	Checks            []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	storeMode := s.store.Mode()
	provider := s.chat.Provider()

	checks := make([]onboardingCheck, 0, 4)
	checks = append(checks, s.storeCheck(storeMode), s.inferenceCheck(provider))
	if storeMode == "postgres" {
		checks = append(checks, onboardingCheck{
			ID:     "realtime",
			Status: "ok",
			Label:  "Realtime updates",
			Detail: "postgres LISTEN/NOTIFY",
		})
	} else {
		checks = append(checks, onboardingCheck{
			ID:     "realtime",
			Status: "ok",
			Label:  "Realtime updates",
			Detail: "in-process hub",
		})
	}
	if s.cfg.AllowAnyOrigin {
		checks = append(checks, onboardingCheck{
			ID:     "cors",
			Status: "warn",
			Label:  "Cross-origin access",
			Detail: "any origin may call the API",
			Fix:    "Set APP_ALLOW_ANY_ORIGIN=false when the UI is served from this process only.",
		})
	}

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		StoreMode:         storeMode,
		InferenceProvider: provider,
		MemoryRanking:     string(s.cfg.MemoryRanking),
		Checks:            checks,
	})
}

func (s *Server) storeCheck(mode string) onboardingCheck {
	switch mode {
	case "postgres", "sqlite":
		return onboardingCheck{
			ID:     "store",
			Status: "ok",
			Label:  "Persistence",
			Detail: mode,
		}
	default:
		return onboardingCheck{
			ID:     "store",
			Status: "warn",
			Label:  "Persistence",
			Detail: "in-memory only",
			Fix:    "Set DATABASE_URL to a postgres:// URL or a .db file to keep friends across restarts.",
		}
	}
}

func (s *Server) inferenceCheck(provider string) onboardingCheck {
	hasKey := strings.TrimSpace(s.cfg.InferenceAPIKey) != ""
	switch {
	case provider == "mock":
		return onboardingCheck{
			ID:     "inference",
			Status: "warn",
			Label:  "Language model",
			Detail: "mock replies",
			Fix:    "Set INFERENCE_API_KEY (or LOVABLE_API_KEY) to talk to a real model.",
		}
	case !hasKey:
		return onboardingCheck{
			ID:     "inference",
			Status: "error",
			Label:  "Language model",
			Detail: fmt.Sprintf("%s without credential", provider),
			Fix:    "Set INFERENCE_API_KEY; chat requests fail until it is configured.",
		}
	default:
		return onboardingCheck{
			ID:     "inference",
			Status: "ok",
			Label:  "Language model",
			Detail: provider,
		}
	}
}
