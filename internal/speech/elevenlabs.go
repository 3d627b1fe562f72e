package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ent0n29/phoneline/internal/reliability"
)

const maxAudioBytes = 16 << 20

type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	ModelID      string
	OutputFormat string
	// RateLimit is requests per second; zero disables pacing.
	RateLimit float64
	Burst     int
	Retries   int
	// HTTPClient is optional; the caller's context bounds each request.
	HTTPClient *http.Client
}

// ElevenLabsClient calls the REST text-to-speech endpoint and buffers the full
// clip in memory.
type ElevenLabsClient struct {
	cfg     ElevenLabsConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewElevenLabsClient(cfg ElevenLabsConfig, logger *zap.Logger) *ElevenLabsClient {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_monolingual_v1"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_22050_32"
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &ElevenLabsClient{cfg: cfg, client: client, limiter: limiter, logger: logger}
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return nil, ErrMissingVoice
	}
	payload, err := json.Marshal(ttsRequest{Text: text, ModelID: c.cfg.ModelID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, 200*time.Millisecond, 2*time.Second)
			if err := reliability.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		audio, err := c.synthesizeOnce(ctx, voiceID, payload)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !statusErr.Retryable {
			return nil, err
		}
		c.logger.Warn("elevenlabs retryable failure",
			zap.Int("attempt", attempt+1),
			zap.Int("status", statusErr.Code))
	}
	return nil, lastErr
}

func (c *ElevenLabsClient) synthesizeOnce(ctx context.Context, voiceID string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("output_format", c.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", ContentType(c.cfg.OutputFormat))

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &StatusError{
			Code:      res.StatusCode,
			Body:      strings.TrimSpace(string(body)),
			Retryable: reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}

	audio, err := io.ReadAll(io.LimitReader(res.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}
