package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestElevenLabsClientSynthesize(t *testing.T) {
	var gotPath, gotKey, gotFormat string
	var gotBody ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k1", BaseURL: srv.URL}, nil)
	audio, err := c.Synthesize(context.Background(), "Hey there!", "voice-1")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Fatalf("audio = %q, want %q", audio, "mp3-bytes")
	}
	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "k1" {
		t.Fatalf("xi-api-key = %q, want %q", gotKey, "k1")
	}
	if gotFormat != "mp3_22050_32" {
		t.Fatalf("output_format = %q, want default", gotFormat)
	}
	if gotBody.Text != "Hey there!" || gotBody.ModelID != "eleven_monolingual_v1" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestElevenLabsClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL, Retries: 3}, nil)
	_, err := c.Synthesize(context.Background(), "hi", "v")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusUnauthorized || statusErr.Retryable {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}

func TestElevenLabsClientRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL, Retries: 1}, nil)
	audio, err := c.Synthesize(context.Background(), "hi", "v")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "ok" {
		t.Fatalf("audio = %q", audio)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestElevenLabsClientNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	if _, err := c.Synthesize(context.Background(), "hi", "v"); err == nil {
		t.Fatalf("Synthesize() expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestElevenLabsClientEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	if _, err := c.Synthesize(context.Background(), "hi", "v"); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("error = %v, want ErrEmptyAudio", err)
	}
}

func TestElevenLabsClientHonorsContextTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.Synthesize(ctx, "hi", "v"); err == nil {
		t.Fatalf("Synthesize() expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Synthesize() took %v, want bounded by context", elapsed)
	}
}

func TestElevenLabsClientRequiresVoice(t *testing.T) {
	c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k"}, nil)
	if _, err := c.Synthesize(context.Background(), "hi", "  "); !errors.Is(err, ErrMissingVoice) {
		t.Fatalf("error = %v, want ErrMissingVoice", err)
	}
}
