// Package speech wraps the remote text-to-speech service: text and a voice id
// in, encoded audio bytes out.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrEmptyAudio   = errors.New("synthesis returned no audio")
	ErrMissingVoice = errors.New("voice_id is required")
)

// Synthesizer converts text into encoded audio. Implementations make a single
// upstream request per call unless configured with their own retry budget.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	Code      int
	Body      string
	Retryable bool
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elevenlabs status %d: %s", e.Code, e.Body)
}

// Config controls synthesizer construction.
type Config struct {
	Provider     string
	Transport    string
	APIKey       string
	BaseURL      string
	WSBaseURL    string
	ModelID      string
	OutputFormat string
	RateLimit    float64
	Burst        int
	Retries      int
}

// New resolves the configured provider. "auto" uses ElevenLabs when an API key
// is present and the mock otherwise. The resolved provider name is returned
// alongside the synthesizer.
func New(cfg Config, logger *zap.Logger) (Synthesizer, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}
	hasKey := strings.TrimSpace(cfg.APIKey) != ""

	switch mode {
	case "elevenlabs":
		if !hasKey {
			return nil, "", errors.New("SYNTHESIS_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
		return newElevenLabs(cfg, logger), "elevenlabs", nil
	case "mock":
		return NewMockSynthesizer(), "mock", nil
	case "auto":
		if hasKey {
			return newElevenLabs(cfg, logger), "elevenlabs", nil
		}
		logger.Warn("no ElevenLabs key configured, using mock synthesizer")
		return NewMockSynthesizer(), "mock", nil
	default:
		return nil, "", fmt.Errorf("invalid SYNTHESIS_PROVIDER: %q (expected auto|elevenlabs|mock)", cfg.Provider)
	}
}

func newElevenLabs(cfg Config, logger *zap.Logger) Synthesizer {
	if strings.EqualFold(strings.TrimSpace(cfg.Transport), "ws") {
		return NewElevenLabsStreamClient(ElevenLabsStreamConfig{
			APIKey:       cfg.APIKey,
			WSBaseURL:    cfg.WSBaseURL,
			ModelID:      cfg.ModelID,
			OutputFormat: cfg.OutputFormat,
		}, logger)
	}
	return NewElevenLabsClient(ElevenLabsConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		ModelID:      cfg.ModelID,
		OutputFormat: cfg.OutputFormat,
		RateLimit:    cfg.RateLimit,
		Burst:        cfg.Burst,
		Retries:      cfg.Retries,
	}, logger)
}

// ContentType maps an ElevenLabs output format to the MIME type used when
// serving the clip.
func ContentType(outputFormat string) string {
	f := strings.ToLower(strings.TrimSpace(outputFormat))
	switch {
	case f == "", strings.HasPrefix(f, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(f, "ulaw"):
		return "audio/basic"
	case strings.Contains(f, "wav"):
		return "audio/wav"
	case strings.Contains(f, "ogg"), strings.Contains(f, "opus"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
