package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":3000" {
		t.Fatalf("BindAddr = %q, want :3000", cfg.BindAddr)
	}
	if cfg.AudioTTL != 5*time.Minute {
		t.Fatalf("AudioTTL = %v, want 5m", cfg.AudioTTL)
	}
	if cfg.AudioCannedTTL != 24*time.Hour {
		t.Fatalf("AudioCannedTTL = %v, want 24h", cfg.AudioCannedTTL)
	}
	if cfg.ElevenLabsVoiceID != "21m00Tcm4TlvDq8ikWAM" {
		t.Fatalf("ElevenLabsVoiceID = %q", cfg.ElevenLabsVoiceID)
	}
	if cfg.XAIModel != "grok-3" || cfg.BrainMaxTokens != 150 || cfg.BrainTemperature != 0.7 {
		t.Fatalf("brain defaults = %q/%d/%v", cfg.XAIModel, cfg.BrainMaxTokens, cfg.BrainTemperature)
	}
	if cfg.SynthesisRetries != 0 {
		t.Fatalf("SynthesisRetries = %d, want 0", cfg.SynthesisRetries)
	}
	if !cfg.TrustForwardedProto {
		t.Fatalf("TrustForwardedProto = false, want true")
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_PUBLIC_BASE_URL", "https://calls.example.com/")
	t.Setenv("SYNTHESIS_TIMEOUT", "2500ms")
	t.Setenv("SYNTHESIS_RATE_LIMIT", "1.5")
	t.Setenv("BRAIN_PROVIDER", "MOCK")
	t.Setenv("APP_TRUST_FORWARDED_PROTO", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PublicBaseURL != "https://calls.example.com" {
		t.Fatalf("PublicBaseURL = %q, want trailing slash trimmed", cfg.PublicBaseURL)
	}
	if cfg.SynthesisTimeout != 2500*time.Millisecond {
		t.Fatalf("SynthesisTimeout = %v", cfg.SynthesisTimeout)
	}
	if cfg.SynthesisRateLimit != 1.5 {
		t.Fatalf("SynthesisRateLimit = %v", cfg.SynthesisRateLimit)
	}
	if cfg.BrainProvider != "mock" {
		t.Fatalf("BrainProvider = %q, want mock", cfg.BrainProvider)
	}
	if cfg.TrustForwardedProto {
		t.Fatalf("TrustForwardedProto = true, want false")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"SYNTHESIS_TIMEOUT", "soon", "SYNTHESIS_TIMEOUT parse error"},
		{"SYNTHESIS_TIMEOUT", "0s", "SYNTHESIS_TIMEOUT must be positive"},
		{"AUDIO_CANNED_TTL", "1m", "AUDIO_CANNED_TTL must be at least AUDIO_TTL"},
		{"BRAIN_MAX_TOKENS", "abc", "BRAIN_MAX_TOKENS parse error"},
		{"BRAIN_TEMPERATURE", "3", "BRAIN_TEMPERATURE must be within"},
		{"SYNTHESIS_PROVIDER", "polly", "SYNTHESIS_PROVIDER must be one of"},
		{"SYNTHESIS_TRANSPORT", "grpc", "SYNTHESIS_TRANSPORT must be http or ws"},
		{"CALL_INACTIVITY_TIMEOUT", "1s", "CALL_INACTIVITY_TIMEOUT must be at least 5s"},
		{"APP_TRUST_FORWARDED_PROTO", "maybe", "APP_TRUST_FORWARDED_PROTO parse error"},
		{"LOG_FORMAT", "xml", "LOG_FORMAT must be json or console"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestLoadPhrasesDefaults(t *testing.T) {
	p, err := LoadPhrases("")
	if err != nil {
		t.Fatalf("LoadPhrases() error = %v", err)
	}
	if p.Greeting != DefaultGreeting {
		t.Fatalf("Greeting = %q", p.Greeting)
	}
	if len(p.Fallbacks) != 4 {
		t.Fatalf("len(Fallbacks) = %d, want 4", len(p.Fallbacks))
	}
}

func TestLoadPhrasesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.yaml")
	body := `greeting: "Hi, you reached the front desk."
fallbacks:
  - "Could you repeat that?"
  - "  "
extra:
  farewell: "Goodbye, take care!"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	p, err := LoadPhrases(path)
	if err != nil {
		t.Fatalf("LoadPhrases() error = %v", err)
	}
	if p.Greeting != "Hi, you reached the front desk." {
		t.Fatalf("Greeting = %q", p.Greeting)
	}
	if len(p.Fallbacks) != 1 || p.Fallbacks[0] != "Could you repeat that?" {
		t.Fatalf("Fallbacks = %v", p.Fallbacks)
	}
	if p.Extra["farewell"] != "Goodbye, take care!" {
		t.Fatalf("Extra = %v", p.Extra)
	}
}

func TestLoadPhrasesKeepsDefaultFallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.json")
	if err := os.WriteFile(path, []byte(`{"greeting": "Hey there."}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	p, err := LoadPhrases(path)
	if err != nil {
		t.Fatalf("LoadPhrases() error = %v", err)
	}
	if len(p.Fallbacks) != len(DefaultPhrases().Fallbacks) {
		t.Fatalf("Fallbacks = %v, want defaults", p.Fallbacks)
	}
}

func TestLoadPhrasesMissingFile(t *testing.T) {
	if _, err := LoadPhrases(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("LoadPhrases() error = nil, want read error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_PUBLIC_BASE_URL",
		"APP_TRUST_FORWARDED_PROTO",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"SYNTHESIS_PROVIDER",
		"SYNTHESIS_TRANSPORT",
		"SYNTHESIS_TIMEOUT",
		"SYNTHESIS_RATE_LIMIT",
		"SYNTHESIS_RETRIES",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_BASE_URL",
		"ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_VOICE_ID",
		"ELEVENLABS_MODEL_ID",
		"ELEVENLABS_OUTPUT_FORMAT",
		"AUDIO_TTL",
		"AUDIO_CANNED_TTL",
		"AUDIO_SWEEP_INTERVAL",
		"PHRASES_FILE",
		"BRAIN_PROVIDER",
		"XAI_API_KEY",
		"XAI_BASE_URL",
		"XAI_MODEL",
		"BRAIN_MAX_TOKENS",
		"BRAIN_TEMPERATURE",
		"BRAIN_TIMEOUT",
		"BRAIN_CACHE_SIZE",
		"BRAIN_HISTORY_TURNS",
		"DATABASE_URL",
		"CALL_INACTIVITY_TIMEOUT",
		"GATHER_TIMEOUT_SECONDS",
		"GATHER_SPEECH_MODEL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
