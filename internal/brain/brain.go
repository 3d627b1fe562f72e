// Package brain produces the assistant's spoken replies from caller text.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/phoneline/internal/observability"
)

// ApologyText is returned whenever no reply could be produced.
const ApologyText = "I apologize, but I'm having trouble processing your request right now. Please try again."

var ErrEmptyReply = errors.New("empty reply")

// Role of a conversation turn.
const (
	RoleCaller    = "caller"
	RoleAssistant = "assistant"
)

// Turn is one prior utterance in the call.
type Turn struct {
	Role string
	Text string
}

// Request is one caller utterance plus the call's recent history, oldest first.
type Request struct {
	CallSID string
	Text    string
	History []Turn
}

// Client performs a single completion against a language model.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Responder is the terminal reply boundary: it always returns speakable text.
type Responder interface {
	Respond(ctx context.Context, req Request) string
}

// Config controls responder construction.
type Config struct {
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	CacheSize    int
	HistoryTurns int
}

// New builds the responder for cfg and reports which provider was selected.
func New(cfg Config, metrics *observability.Metrics, logger *zap.Logger) (*Service, string, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	var client Client
	switch provider {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			client, provider = NewXAIClient(cfg), "xai"
		} else {
			client, provider = NewMockClient(), "mock"
		}
	case "xai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, "", errors.New("XAI_API_KEY is required for the xai brain provider")
		}
		client = NewXAIClient(cfg)
	case "mock":
		client = NewMockClient()
	default:
		return nil, "", fmt.Errorf("unsupported brain provider %q", cfg.Provider)
	}
	return NewService(client, cfg, metrics, logger), provider, nil
}

// Service wraps a Client with the small-talk reply cache, a per-call timeout,
// history trimming and the terminal apology.
type Service struct {
	client       Client
	cache        *ReplyCache
	timeout      time.Duration
	historyTurns int
	metrics      *observability.Metrics
	logger       *zap.Logger
}

func NewService(client Client, cfg Config, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Service{
		client:       client,
		cache:        NewReplyCache(cfg.CacheSize),
		timeout:      timeout,
		historyTurns: cfg.HistoryTurns,
		metrics:      metrics,
		logger:       logger,
	}
}

func (s *Service) Respond(ctx context.Context, req Request) string {
	start := time.Now()
	req.Text = strings.TrimSpace(req.Text)
	if s.historyTurns >= 0 && len(req.History) > s.historyTurns {
		req.History = req.History[len(req.History)-s.historyTurns:]
	}

	// Small talk mid-conversation depends on context, so only cold turns are cached.
	category := ""
	if len(req.History) == 0 {
		category = Classify(req.Text)
	}
	if category != "" {
		if reply, ok := s.cache.Get(category); ok {
			s.metrics.ObserveBrain("cached", time.Since(start))
			return reply
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.client.Complete(ctx, req)
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		s.metrics.ObserveBrain("error", time.Since(start))
		s.logger.Warn("brain request failed",
			zap.Error(err),
			zap.String("call_sid", req.CallSID),
			zap.Duration("elapsed", time.Since(start)))
		return ApologyText
	}

	if category != "" {
		s.cache.Put(category, reply)
	}
	s.metrics.ObserveBrain("ok", time.Since(start))
	return reply
}
