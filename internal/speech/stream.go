package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/phoneline/internal/reliability"
)

type ElevenLabsStreamConfig struct {
	APIKey       string
	WSBaseURL    string
	ModelID      string
	OutputFormat string
	Dialer       *websocket.Dialer
}

// ElevenLabsStreamClient synthesizes over the stream-input websocket and
// assembles the streamed chunks into one clip. First bytes arrive sooner than
// over REST for long replies.
type ElevenLabsStreamClient struct {
	cfg    ElevenLabsStreamConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewElevenLabsStreamClient(cfg ElevenLabsStreamConfig, logger *zap.Logger) *ElevenLabsStreamClient {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_monolingual_v1"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_22050_32"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &ElevenLabsStreamClient{cfg: cfg, dialer: dialer, logger: logger}
}

// RealtimeError is an error message received over the synthesis websocket.
type RealtimeError struct {
	Code      string
	Detail    string
	Retryable bool
}

func (e *RealtimeError) Error() string {
	if e.Code == "" {
		return "elevenlabs stream error: " + e.Detail
	}
	return fmt.Sprintf("elevenlabs stream error (%s): %s", e.Code, e.Detail)
}

func (c *ElevenLabsStreamClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return nil, ErrMissingVoice
	}

	u, err := url.Parse(strings.TrimRight(c.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model_id", c.cfg.ModelID)
	q.Set("output_format", c.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", c.cfg.APIKey)

	conn, _, err := c.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	// Prime the stream, send the whole reply, then close input to flush.
	messages := []map[string]any{
		{"text": " ", "voice_settings": map[string]any{"stability": 0.5, "similarity_boost": 0.8}},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return nil, fmt.Errorf("write tts websocket: %w", err)
		}
	}

	var out bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && out.Len() > 0 {
				return out.Bytes(), nil
			}
			return nil, fmt.Errorf("read tts websocket: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if errMsg := asString(raw["error"]); errMsg != "" {
			code := asString(raw["message_type"])
			return nil, &RealtimeError{Code: code, Detail: errMsg, Retryable: reliability.IsRetryableRealtimeMessageType(code)}
		}
		if audio := asString(raw["audio"]); audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(audio)
			if err != nil {
				c.logger.Debug("dropping undecodable audio chunk", zap.Error(err))
			} else {
				out.Write(chunk)
			}
			if out.Len() > maxAudioBytes {
				return nil, fmt.Errorf("tts stream exceeded %d bytes", maxAudioBytes)
			}
		}
		if asBool(raw["isFinal"]) || asBool(raw["is_final"]) {
			break
		}
	}
	if out.Len() == 0 {
		return nil, ErrEmptyAudio
	}
	return out.Bytes(), nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
