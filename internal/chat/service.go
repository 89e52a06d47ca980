// Package chat runs one companion exchange: context assembly, inference and
// memory extraction.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/amical/internal/inference"
	"github.com/ent0n29/amical/internal/memory"
	"github.com/ent0n29/amical/internal/observability"
	"github.com/ent0n29/amical/internal/policy"
	"github.com/ent0n29/amical/internal/prompt"
	"github.com/ent0n29/amical/internal/reliability"
	"github.com/ent0n29/amical/internal/store"
)

var ErrEmptyMessage = errors.New("message is empty")

// Options tunes context assembly and sampling. Zero values take the defaults.
type Options struct {
	HistoryWindow int
	MemoryLimit   int
	Ranking       store.Ranking
	Temperature   float32
	MaxTokens     int
}

func (o Options) withDefaults() Options {
	if o.HistoryWindow <= 0 || o.HistoryWindow > prompt.HistoryWindow {
		o.HistoryWindow = prompt.HistoryWindow
	}
	if o.MemoryLimit <= 0 || o.MemoryLimit > prompt.MaxMemories {
		o.MemoryLimit = prompt.MaxMemories
	}
	if o.Ranking == "" {
		o.Ranking = store.DefaultRanking
	}
	if o.Temperature <= 0 {
		o.Temperature = inference.DefaultTemperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = inference.DefaultMaxTokens
	}
	return o
}

type Service struct {
	store   store.Store
	llm     inference.Client
	metrics *observability.Metrics
	opts    Options
}

func NewService(st store.Store, llm inference.Client, metrics *observability.Metrics, opts Options) *Service {
	return &Service{
		store:   st,
		llm:     llm,
		metrics: metrics,
		opts:    opts.withDefaults(),
	}
}

// Provider names the inference backend in use.
func (s *Service) Provider() string { return s.llm.Name() }

// SendResult holds the turns written by one Send.
type SendResult struct {
	UserTurn      store.Turn  `json:"user_turn"`
	AssistantTurn *store.Turn `json:"assistant_turn,omitempty"`
}

// Reply produces the companion's answer to message. The caller has normally
// already stored message as a user turn, so it appears both in the history
// window and as the final prompt message.
func (s *Service) Reply(ctx context.Context, personaID, message string) (string, error) {
	start := time.Now()
	reply, err := s.reply(ctx, personaID, message)
	s.recordOutcome(err)
	if err == nil {
		s.metrics.ObserveReplyLatency(time.Since(start))
	}
	return reply, err
}

func (s *Service) reply(ctx context.Context, personaID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}

	loadStart := time.Now()
	persona, err := s.store.GetPersona(ctx, personaID)
	if err != nil {
		return "", fmt.Errorf("load persona: %w", err)
	}
	recent, err := s.store.RecentTurns(ctx, personaID, s.opts.HistoryWindow)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	memories, err := s.store.TopMemories(ctx, personaID, s.opts.MemoryLimit, s.opts.Ranking)
	if err != nil {
		return "", fmt.Errorf("load memories: %w", err)
	}
	s.metrics.ObserveStage(observability.StageLoadContext, time.Since(loadStart))

	composed := prompt.Compose(persona, prompt.Window(recent), memories, message)
	req := inference.NewRequest(composed)
	req.Temperature = s.opts.Temperature
	req.MaxTokens = s.opts.MaxTokens

	inferStart := time.Now()
	reply, err := s.llm.Complete(ctx, req)
	if err != nil {
		s.logUpstream(personaID, err)
		return "", err
	}
	s.metrics.ObserveStage(observability.StageInference, time.Since(inferStart))

	s.remember(ctx, personaID, message)
	return reply, nil
}

// remember stores the message as a memory when the extractor selects it.
// Failures are logged only; the reply has already been produced.
func (s *Service) remember(ctx context.Context, personaID, message string) {
	candidate, ok := memory.Extract(message)
	if !ok {
		return
	}
	start := time.Now()
	_, err := s.store.AddMemory(ctx, store.Memory{
		PersonaID:  personaID,
		Fact:       candidate.Fact,
		Importance: candidate.Importance,
	})
	if err != nil {
		log.Printf("memory insert failed persona=%s: %v", personaID, err)
		s.metrics.ObserveIndicator("memory_insert_failed")
		return
	}
	s.metrics.ObserveStage(observability.StageMemoryWrite, time.Since(start))
	s.metrics.ObserveIndicator("memory_written")
	if s.metrics != nil {
		s.metrics.MemoriesWritten.WithLabelValues(string(candidate.Importance)).Inc()
	}
}

// Send runs the chat-view flow: store the user turn, ask for a reply, store
// the reply. On inference failure the user turn stays and the error is returned.
func (s *Service) Send(ctx context.Context, personaID, message string) (SendResult, error) {
	content := strings.TrimSpace(message)
	if content == "" {
		return SendResult{}, ErrEmptyMessage
	}

	userTurn, err := s.store.AppendTurn(ctx, store.Turn{
		PersonaID: personaID,
		Role:      store.RoleUser,
		Content:   content,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("append user turn: %w", err)
	}
	result := SendResult{UserTurn: userTurn}

	reply, err := s.Reply(ctx, personaID, content)
	if err != nil {
		log.Printf("send unanswered persona=%s outcome=%s message=%q", personaID, Outcome(err), policy.LogSafe(content))
		return result, err
	}

	assistantTurn, err := s.store.AppendTurn(ctx, store.Turn{
		PersonaID: personaID,
		Role:      store.RoleAssistant,
		Content:   reply,
	})
	if err != nil {
		return result, fmt.Errorf("append assistant turn: %w", err)
	}
	result.AssistantTurn = &assistantTurn
	return result, nil
}

// Outcome names the result of a reply for metrics and API status mapping.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyMessage):
		return "invalid"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, inference.ErrMissingCredential):
		return "unconfigured"
	case errors.Is(err, inference.ErrUpstream):
		return "upstream"
	case errors.Is(err, inference.ErrMalformedReply):
		return "malformed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (s *Service) recordOutcome(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ChatReplies.WithLabelValues(Outcome(err)).Inc()
}

func (s *Service) logUpstream(personaID string, err error) {
	var upstream *inference.UpstreamError
	if errors.As(err, &upstream) {
		code := reliability.StatusLabel(upstream.StatusCode)
		log.Printf("inference failed persona=%s provider=%s code=%s retryable=%t: %s",
			personaID, upstream.Provider, code,
			reliability.IsRetryableHTTPStatus(upstream.StatusCode), policy.RedactSecrets(upstream.Err.Error()))
		if s.metrics != nil {
			s.metrics.UpstreamErrors.WithLabelValues(upstream.Provider, code).Inc()
		}
		s.metrics.ObserveIndicator("upstream_error")
		return
	}
	log.Printf("inference failed persona=%s provider=%s: %v", personaID, s.llm.Name(), err)
}
