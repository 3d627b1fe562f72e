package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/phoneline/internal/audiostore"
	"github.com/ent0n29/phoneline/internal/brain"
	"github.com/ent0n29/phoneline/internal/calls"
	"github.com/ent0n29/phoneline/internal/config"
	"github.com/ent0n29/phoneline/internal/httpapi"
	"github.com/ent0n29/phoneline/internal/observability"
	"github.com/ent0n29/phoneline/internal/pipeline"
	"github.com/ent0n29/phoneline/internal/speech"
	"github.com/ent0n29/phoneline/internal/transcript"
)

// Providers records which backend was selected for each pluggable concern.
type Providers struct {
	Synthesis  string
	Brain      string
	Transcript string
}

type BuildResult struct {
	Config    config.Config
	Phrases   config.Phrases
	API       *httpapi.Server
	Speech    *pipeline.Service
	Store     *audiostore.Store
	Calls     *calls.Registry
	Metrics   *observability.Metrics
	Providers Providers

	logger      *zap.Logger
	transcripts transcript.Store
	startOnce   sync.Once

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, phrases config.Phrases, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	synth, synthProvider, err := speech.New(speech.Config{
		Provider:     cfg.SynthesisProvider,
		Transport:    cfg.SynthesisTransport,
		APIKey:       cfg.ElevenLabsAPIKey,
		BaseURL:      cfg.ElevenLabsBaseURL,
		WSBaseURL:    cfg.ElevenLabsWSBaseURL,
		ModelID:      cfg.ElevenLabsModelID,
		OutputFormat: cfg.ElevenLabsOutputFormat,
		RateLimit:    cfg.SynthesisRateLimit,
		Retries:      cfg.SynthesisRetries,
	}, logger.Named("speech"))
	if err != nil {
		return nil, fmt.Errorf("synthesizer init failed: %w", err)
	}

	responder, brainProvider, err := brain.New(brain.Config{
		Provider:     cfg.BrainProvider,
		APIKey:       cfg.XAIAPIKey,
		BaseURL:      cfg.XAIBaseURL,
		Model:        cfg.XAIModel,
		MaxTokens:    cfg.BrainMaxTokens,
		Temperature:  cfg.BrainTemperature,
		Timeout:      cfg.BrainTimeout,
		CacheSize:    cfg.BrainCacheSize,
		HistoryTurns: cfg.BrainHistoryTurns,
	}, metrics, logger.Named("brain"))
	if err != nil {
		return nil, fmt.Errorf("brain init failed: %w", err)
	}

	transcripts, transcriptProvider, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}

	store := audiostore.New(audiostore.WithDefaultTTL(cfg.AudioTTL))
	store.SetEvictHook(func(reason string, n int) {
		metrics.ObserveEvictions(reason, n)
		metrics.SetAudioEntries(store.Len())
	})

	cache := pipeline.NewResponseCache(CannedPhrases(phrases))
	pipe := pipeline.New(pipeline.Config{
		DefaultVoiceID: cfg.ElevenLabsVoiceID,
		TTL:            cfg.AudioTTL,
		Timeout:        cfg.SynthesisTimeout,
	}, synth, store, cache, metrics, logger.Named("pipeline"))
	warmer := pipeline.NewWarmer(pipe, store, cfg.AudioCannedTTL, logger.Named("warmup"))
	svc := pipeline.NewService(pipe, warmer)

	registry := calls.NewRegistry(cfg.CallInactivityTimeout)
	registry.SetEndHook(func(c calls.Call) {
		metrics.ObserveCallEvent(c.EndReason)
		metrics.SetActiveCalls(registry.ActiveCount())
		if f, ok := transcripts.(interface{ Forget(string) }); ok {
			f.Forget(c.SID)
		}
		logger.Info("call ended",
			zap.String("call_sid", c.SID),
			zap.String("reason", c.EndReason),
			zap.Int("turns", c.Turns),
			zap.Duration("duration", c.EndedAt.Sub(c.StartedAt)))
	})

	api := httpapi.New(cfg, phrases, httpapi.Deps{
		Speech:      svc,
		Brain:       responder,
		Calls:       registry,
		Transcripts: transcripts,
		Metrics:     metrics,
		Logger:      logger.Named("http"),
	})

	cleanup := func() error {
		var errs []string
		if err := transcripts.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:  cfg,
		Phrases: phrases,
		API:     api,
		Speech:  svc,
		Store:   store,
		Calls:   registry,
		Metrics: metrics,
		Providers: Providers{
			Synthesis:  synthProvider,
			Brain:      brainProvider,
			Transcript: transcriptProvider,
		},
		logger:      logger,
		transcripts: transcripts,
		Cleanup:     cleanup,
	}, nil
}

// Start launches the janitors and runs warm-up in the background. Traffic may
// be served before warm-up finishes; canned phrases then fall through to live
// synthesis.
func (b *BuildResult) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.Store.StartJanitor(ctx, b.Config.AudioSweepInterval)
		b.Calls.StartJanitor(ctx, 5*time.Second)

		var rest []string
		for _, p := range CannedPhrases(b.Phrases) {
			if p.Key != greetingKey {
				rest = append(rest, p.Text)
			}
		}
		go func() {
			report := b.Speech.Run(ctx, b.Phrases.Greeting, rest)
			b.Metrics.SetAudioEntries(b.Store.Len())
			if len(report.Failed) > 0 {
				b.logger.Warn("warm-up left phrases uncached", zap.Strings("phrases", report.Failed))
			}
		}()
	})
}

const greetingKey = "greeting"

// CannedPhrases lists the response-cache registry in match order: greeting,
// fallbacks, then extra phrases sorted by key.
func CannedPhrases(p config.Phrases) []pipeline.Phrase {
	out := make([]pipeline.Phrase, 0, 1+len(p.Fallbacks)+len(p.Extra))
	if strings.TrimSpace(p.Greeting) != "" {
		out = append(out, pipeline.Phrase{Key: greetingKey, Text: p.Greeting})
	}
	for i, f := range p.Fallbacks {
		out = append(out, pipeline.Phrase{Key: fmt.Sprintf("fallback_%d", i+1), Text: f})
	}
	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, pipeline.Phrase{Key: k, Text: p.Extra[k]})
	}
	return out
}
