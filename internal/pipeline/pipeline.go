// Package pipeline turns reply text into a playable audio id: canned phrases
// are served from the response cache, everything else is synthesized once and
// parked in the audio store for the telephony provider to fetch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ent0n29/phoneline/internal/observability"
	"github.com/ent0n29/phoneline/internal/speech"
)

var (
	// ErrSynthesisUnavailable wraps any synthesis failure; callers fall back to
	// the provider's own speech engine.
	ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")
	ErrEmptyText            = errors.New("nothing to synthesize")
)

// AudioStore is the subset of the audio store the pipeline needs.
type AudioStore interface {
	Put(blob []byte, ttl time.Duration) string
	Get(id string) ([]byte, bool)
	Len() int
}

type Config struct {
	DefaultVoiceID string
	// TTL applies to every freshly synthesized clip.
	TTL time.Duration
	// Timeout bounds each upstream synthesis call.
	Timeout time.Duration
}

type Pipeline struct {
	cfg     Config
	synth   speech.Synthesizer
	store   AudioStore
	cache   *ResponseCache
	metrics *observability.Metrics
	logger  *zap.Logger
	flights singleflight.Group
}

func New(cfg Config, synth speech.Synthesizer, store AudioStore, cache *ResponseCache, metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 4 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		synth:   synth,
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// Synthesize returns the id of a stored clip speaking text. An empty voiceID
// selects the default voice. Failures are returned wrapped in
// ErrSynthesisUnavailable and never retried here.
func (p *Pipeline) Synthesize(ctx context.Context, text, voiceID string) (string, error) {
	if Normalize(text) == "" {
		p.metrics.ObserveSynthesis(observability.SynthesisEmpty)
		return "", ErrEmptyText
	}
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		voiceID = p.cfg.DefaultVoiceID
	}

	// Canned audio is recorded in the default voice only.
	if voiceID != p.cfg.DefaultVoiceID {
		return p.synthesizeFresh(ctx, text, voiceID, false)
	}

	if id, ok := p.cachedID(text); ok {
		p.metrics.ObserveSynthesis(observability.SynthesisHit)
		return id, nil
	}

	phrase, canned := p.cache.Match(text)
	if !canned {
		return p.synthesizeFresh(ctx, text, voiceID, false)
	}

	// Concurrent callers for the same canned phrase share one upstream call.
	// The flight is detached from any single caller so a caller giving up does
	// not fail the others.
	ch := p.flights.DoChan(phrase.Key, func() (any, error) {
		if id, ok := p.cachedID(text); ok {
			return id, nil
		}
		return p.synthesizeFresh(context.WithoutCancel(ctx), text, voiceID, true)
	})
	select {
	case <-ctx.Done():
		p.metrics.ObserveSynthesis(observability.SynthesisFailure)
		return "", fmt.Errorf("%w: %v", ErrSynthesisUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// cachedID resolves text through the response cache and confirms the clip is
// still in the store. A dangling reference counts as a miss.
func (p *Pipeline) cachedID(text string) (string, bool) {
	id, ok := p.cache.Lookup(text)
	if !ok {
		return "", false
	}
	if _, ok := p.store.Get(id); !ok {
		p.metrics.ObserveSynthesis(observability.SynthesisDangling)
		p.logger.Info("canned audio evicted, resynthesizing", zap.String("audio_id", id))
		return "", false
	}
	return id, true
}

func (p *Pipeline) synthesizeFresh(ctx context.Context, text, voiceID string, canned bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	audio, err := p.synth.Synthesize(ctx, text, voiceID)
	elapsed := time.Since(start)
	p.metrics.ObserveSynthesisLatency(elapsed)
	if err == nil && len(audio) == 0 {
		err = speech.ErrEmptyAudio
	}
	if err != nil {
		p.metrics.ObserveSynthesis(observability.SynthesisFailure)
		p.logger.Warn("speech synthesis failed",
			zap.Error(err),
			zap.String("voice_id", voiceID),
			zap.Int("text_len", len(text)),
			zap.Duration("elapsed", elapsed))
		return "", fmt.Errorf("%w: %v", ErrSynthesisUnavailable, err)
	}

	id := p.store.Put(audio, p.cfg.TTL)
	p.metrics.SetAudioEntries(p.store.Len())
	p.metrics.ObserveSynthesis(observability.SynthesisMiss)
	if canned {
		p.cache.Record(text, id)
	}
	p.logger.Debug("speech synthesized",
		zap.String("audio_id", id),
		zap.Bool("canned", canned),
		zap.Int("bytes", len(audio)),
		zap.Duration("elapsed", elapsed))
	return id, nil
}

// Audio returns the clip stored under id. Unknown and expired ids are reported
// as absent.
func (p *Pipeline) Audio(id string) ([]byte, bool) {
	if strings.TrimSpace(id) == "" {
		return nil, false
	}
	return p.store.Get(id)
}
