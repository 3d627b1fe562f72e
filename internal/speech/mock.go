package speech

import (
	"context"
	"strings"
	"sync/atomic"
)

// MockSynthesizer is a local fallback used when ElevenLabs is not configured.
// It returns the text itself prefixed with a marker so tests can recognise it.
type MockSynthesizer struct {
	calls atomic.Int64
}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyAudio
	}
	return []byte("mock-audio:" + voiceID + ":" + text), nil
}

// Calls reports how many synthesis requests were made.
func (m *MockSynthesizer) Calls() int64 { return m.calls.Load() }
