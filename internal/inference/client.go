package inference

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/amical/internal/prompt"
)

const (
	DefaultTemperature = 0.8
	DefaultMaxTokens   = 500
	DefaultTimeout     = 60 * time.Second

	DefaultGatewayURL   = "https://ai.gateway.lovable.dev/v1"
	DefaultGatewayModel = "google/gemini-2.5-flash"
	DefaultClaudeModel  = "claude-sonnet-4-5"
)

var (
	ErrUpstream          = errors.New("upstream inference error")
	ErrMalformedReply    = errors.New("malformed inference reply")
	ErrMissingCredential = errors.New("inference credential not configured")
)

// UpstreamError carries the gateway status for logs and metrics.
// It matches ErrUpstream under errors.Is.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s status %d: %v", ErrUpstream, e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrUpstream, e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Request is one chat-completion call.
type Request struct {
	System      string
	Messages    []prompt.Message
	Temperature float32
	MaxTokens   int
}

// NewRequest applies the fixed sampling settings to a composed prompt.
func NewRequest(p prompt.Prompt) Request {
	return Request{
		System:      p.System,
		Messages:    p.Messages,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Client sends a composed prompt to a language model and returns the reply text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Config controls client construction.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

func NewClient(cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hasKey := strings.TrimSpace(cfg.APIKey) != ""

	switch provider {
	case "auto":
		// Opt-in only: local development without a gateway key.
		if hasKey {
			return NewOpenAIClient(cfg), nil
		}
		log.Printf("inference provider: mock (auto without INFERENCE_API_KEY)")
		return NewMockClient(), nil
	case "openai":
		if !hasKey {
			log.Printf("inference provider openai has no credential; chat requests will fail")
			return unconfigured{provider: provider}, nil
		}
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		if !hasKey {
			log.Printf("inference provider anthropic has no credential; chat requests will fail")
			return unconfigured{provider: provider}, nil
		}
		return NewAnthropicClient(cfg), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported inference provider %q", cfg.Provider)
	}
}

// unconfigured fails every request, mirroring a function deployed without its secret.
type unconfigured struct {
	provider string
}

func (u unconfigured) Complete(context.Context, Request) (string, error) {
	return "", fmt.Errorf("%s: %w", u.provider, ErrMissingCredential)
}

func (u unconfigured) Name() string { return u.provider }
