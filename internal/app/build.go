package app

import (
	"context"
	"fmt"
	"log"

	"github.com/ent0n29/amical/internal/chat"
	"github.com/ent0n29/amical/internal/config"
	"github.com/ent0n29/amical/internal/httpapi"
	"github.com/ent0n29/amical/internal/inference"
	"github.com/ent0n29/amical/internal/observability"
	"github.com/ent0n29/amical/internal/realtime"
	"github.com/ent0n29/amical/internal/session"
	"github.com/ent0n29/amical/internal/store"
)

type BuildResult struct {
	Config   config.Config
	Store    store.Store
	Hub      *realtime.Hub
	Chat     *chat.Service
	API      *httpapi.Server
	Sessions *session.Manager
	Metrics  *observability.Metrics

	// Listener is set for the postgres backend; Run it to relay committed turns.
	Listener *realtime.PGListener

	// Cleanup should be called on shutdown to release external resources (DB pools, etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	hub := realtime.NewHub(realtime.DefaultBuffer)
	hub.SetPublishHook(func(store.Turn) { metrics.TurnsPublished.Inc() })
	hub.SetDropHook(func(personaID string) {
		metrics.RealtimeDrops.Inc()
		log.Printf("realtime subscriber dropped persona=%s", personaID)
	})

	st, err := store.NewStore(ctx, cfg.DatabaseURL, hub)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	log.Printf("store backend: %s", st.Mode())

	var listener *realtime.PGListener
	if loader, ok := st.(realtime.TurnLoader); ok && st.Mode() == "postgres" {
		listener = realtime.NewPGListener(cfg.DatabaseURL, loader, hub)
	}

	llm, err := inference.NewClient(inference.Config{
		Provider: cfg.InferenceProvider,
		BaseURL:  cfg.InferenceBaseURL,
		APIKey:   cfg.InferenceAPIKey,
		Model:    cfg.InferenceModel,
		Timeout:  cfg.InferenceTimeout,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("inference client init failed: %w", err)
	}
	log.Printf("inference provider: %s", llm.Name())

	chatService := chat.NewService(st, llm, metrics, chat.Options{
		HistoryWindow: cfg.HistoryWindow,
		MemoryLimit:   cfg.MemoryLimit,
		Ranking:       cfg.MemoryRanking,
		Temperature:   float32(cfg.InferenceTemperature),
		MaxTokens:     cfg.InferenceMaxTokens,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		log.Printf("chat session expired session_id=%s persona=%s", s.ID, s.PersonaID)
		metrics.ActiveSubscriptions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, st, hub, chatService, sessions, metrics)

	return &BuildResult{
		Config:   cfg,
		Store:    st,
		Hub:      hub,
		Chat:     chatService,
		API:      api,
		Sessions: sessions,
		Metrics:  metrics,
		Listener: listener,
		Cleanup:  st.Close,
	}, nil
}
