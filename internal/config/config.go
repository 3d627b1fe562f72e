package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the phone assistant service.
type Config struct {
	BindAddr      string
	PublicBaseURL string
	// TrustForwardedProto honours X-Forwarded-Proto when building audio URLs.
	TrustForwardedProto bool
	ShutdownTimeout     time.Duration
	MetricsNamespace    string

	LogLevel  string
	LogFormat string

	SynthesisProvider  string
	SynthesisTransport string
	SynthesisTimeout   time.Duration
	SynthesisRateLimit float64
	SynthesisRetries   int

	ElevenLabsAPIKey       string
	ElevenLabsBaseURL      string
	ElevenLabsWSBaseURL    string
	ElevenLabsVoiceID      string
	ElevenLabsModelID      string
	ElevenLabsOutputFormat string

	AudioTTL           time.Duration
	AudioCannedTTL     time.Duration
	AudioSweepInterval time.Duration
	PhrasesFile        string

	BrainProvider     string
	XAIAPIKey         string
	XAIBaseURL        string
	XAIModel          string
	BrainMaxTokens    int
	BrainTemperature  float64
	BrainTimeout      time.Duration
	BrainCacheSize    int
	BrainHistoryTurns int

	DatabaseURL           string
	CallInactivityTimeout time.Duration
	GatherTimeoutSeconds  int
	GatherSpeechModel     string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":3000"),
		PublicBaseURL:    strings.TrimRight(envTrimmed("APP_PUBLIC_BASE_URL"), "/"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "phoneline"),
		LogLevel:         strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("LOG_FORMAT", "json")),

		SynthesisProvider:  strings.ToLower(envOrDefault("SYNTHESIS_PROVIDER", "auto")),
		SynthesisTransport: strings.ToLower(envOrDefault("SYNTHESIS_TRANSPORT", "http")),
		SynthesisTimeout:   4 * time.Second,
		SynthesisRateLimit: 3,

		ElevenLabsAPIKey:    envTrimmed("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL:   envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		// "Rachel" premade voice.
		ElevenLabsVoiceID:      envOrDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModelID:      envOrDefault("ELEVENLABS_MODEL_ID", "eleven_monolingual_v1"),
		ElevenLabsOutputFormat: envOrDefault("ELEVENLABS_OUTPUT_FORMAT", "mp3_22050_32"),

		AudioTTL:           5 * time.Minute,
		AudioCannedTTL:     24 * time.Hour,
		AudioSweepInterval: 30 * time.Second,
		PhrasesFile:        envTrimmed("PHRASES_FILE"),

		BrainProvider:     strings.ToLower(envOrDefault("BRAIN_PROVIDER", "auto")),
		XAIAPIKey:         envTrimmed("XAI_API_KEY"),
		XAIBaseURL:        envOrDefault("XAI_BASE_URL", "https://api.x.ai/v1"),
		XAIModel:          envOrDefault("XAI_MODEL", "grok-3"),
		BrainMaxTokens:    150,
		BrainTemperature:  0.7,
		BrainTimeout:      8 * time.Second,
		BrainCacheSize:    50,
		BrainHistoryTurns: 6,

		DatabaseURL:           envTrimmed("DATABASE_URL"),
		CallInactivityTimeout: 2 * time.Minute,
		GatherTimeoutSeconds:  5,
		GatherSpeechModel:     envOrDefault("GATHER_SPEECH_MODEL", "default"),
		ShutdownTimeout:       15 * time.Second,
		TrustForwardedProto:   true,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"SYNTHESIS_TIMEOUT", &cfg.SynthesisTimeout},
		{"AUDIO_TTL", &cfg.AudioTTL},
		{"AUDIO_CANNED_TTL", &cfg.AudioCannedTTL},
		{"AUDIO_SWEEP_INTERVAL", &cfg.AudioSweepInterval},
		{"BRAIN_TIMEOUT", &cfg.BrainTimeout},
		{"CALL_INACTIVITY_TIMEOUT", &cfg.CallInactivityTimeout},
	}
	for _, d := range durations {
		*d.dst, err = durationFromEnv(d.key, *d.dst)
		if err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SYNTHESIS_RETRIES", &cfg.SynthesisRetries},
		{"BRAIN_MAX_TOKENS", &cfg.BrainMaxTokens},
		{"BRAIN_CACHE_SIZE", &cfg.BrainCacheSize},
		{"BRAIN_HISTORY_TURNS", &cfg.BrainHistoryTurns},
		{"GATHER_TIMEOUT_SECONDS", &cfg.GatherTimeoutSeconds},
	}
	for _, n := range ints {
		*n.dst, err = intFromEnv(n.key, *n.dst)
		if err != nil {
			return Config{}, err
		}
	}

	cfg.TrustForwardedProto, err = boolFromEnv("APP_TRUST_FORWARDED_PROTO", cfg.TrustForwardedProto)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesisRateLimit, err = floatFromEnv("SYNTHESIS_RATE_LIMIT", cfg.SynthesisRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTemperature, err = floatFromEnv("BRAIN_TEMPERATURE", cfg.BrainTemperature)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.SynthesisProvider {
	case "auto", "elevenlabs", "mock":
	default:
		return fmt.Errorf("SYNTHESIS_PROVIDER must be one of auto, elevenlabs, mock")
	}
	switch c.SynthesisTransport {
	case "http", "ws":
	default:
		return fmt.Errorf("SYNTHESIS_TRANSPORT must be http or ws")
	}
	switch c.BrainProvider {
	case "auto", "xai", "mock":
	default:
		return fmt.Errorf("BRAIN_PROVIDER must be one of auto, xai, mock")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	if c.SynthesisTimeout <= 0 {
		return fmt.Errorf("SYNTHESIS_TIMEOUT must be positive")
	}
	if c.SynthesisRateLimit < 0 {
		return fmt.Errorf("SYNTHESIS_RATE_LIMIT must be >= 0")
	}
	if c.SynthesisRetries < 0 {
		return fmt.Errorf("SYNTHESIS_RETRIES must be >= 0")
	}
	if c.AudioTTL <= 0 {
		return fmt.Errorf("AUDIO_TTL must be positive")
	}
	if c.AudioCannedTTL < c.AudioTTL {
		return fmt.Errorf("AUDIO_CANNED_TTL must be at least AUDIO_TTL")
	}
	if c.AudioSweepInterval <= 0 {
		return fmt.Errorf("AUDIO_SWEEP_INTERVAL must be positive")
	}
	if c.BrainMaxTokens <= 0 {
		return fmt.Errorf("BRAIN_MAX_TOKENS must be positive")
	}
	if c.BrainTemperature < 0 || c.BrainTemperature > 2 {
		return fmt.Errorf("BRAIN_TEMPERATURE must be within [0, 2]")
	}
	if c.BrainTimeout <= 0 {
		return fmt.Errorf("BRAIN_TIMEOUT must be positive")
	}
	if c.BrainCacheSize < 0 || c.BrainHistoryTurns < 0 {
		return fmt.Errorf("BRAIN_CACHE_SIZE and BRAIN_HISTORY_TURNS must be >= 0")
	}
	if c.CallInactivityTimeout < 5*time.Second {
		return fmt.Errorf("CALL_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.GatherTimeoutSeconds <= 0 {
		return fmt.Errorf("GATHER_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := envTrimmed(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
