package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CannedTTL is the expiry given to warm-up audio once initialization ends.
const CannedTTL = 24 * time.Hour

// Extender re-stamps every live store entry with a new expiry.
type Extender interface {
	ExtendAll(ttl time.Duration) int
}

// WarmupReport summarizes one warm-up run.
type WarmupReport struct {
	Synthesized int
	Failed      []string
	Extended    int
	GreetingID  string
	Duration    time.Duration
}

// Warmer pre-synthesizes the greeting and fallback phrases so the first calls
// after start do not wait on upstream synthesis.
type Warmer struct {
	pipeline *Pipeline
	store    Extender
	ttl      time.Duration
	logger   *zap.Logger

	once   sync.Once
	done   chan struct{}
	mu     sync.RWMutex
	greet  string
	report WarmupReport
}

func NewWarmer(p *Pipeline, store Extender, cannedTTL time.Duration, logger *zap.Logger) *Warmer {
	if cannedTTL <= 0 {
		cannedTTL = CannedTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{
		pipeline: p,
		store:    store,
		ttl:      cannedTTL,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run synthesizes greeting then each fallback, one at a time, and extends every
// live store entry to the canned TTL. Individual failures are logged and
// skipped. Only the first call does any work; later calls return its report.
func (w *Warmer) Run(ctx context.Context, greeting string, fallbacks []string) WarmupReport {
	w.once.Do(func() {
		report := w.run(ctx, greeting, fallbacks)
		w.mu.Lock()
		w.greet = report.GreetingID
		w.report = report
		w.mu.Unlock()
		close(w.done)
	})
	return w.Report()
}

func (w *Warmer) run(ctx context.Context, greeting string, fallbacks []string) WarmupReport {
	start := time.Now()
	var report WarmupReport

	phrases := make([]string, 0, 1+len(fallbacks))
	phrases = append(phrases, greeting)
	phrases = append(phrases, fallbacks...)

	for i, text := range phrases {
		if ctx.Err() != nil {
			report.Failed = append(report.Failed, phrases[i:]...)
			w.logger.Warn("warm-up interrupted", zap.Error(ctx.Err()), zap.Int("remaining", len(phrases)-i))
			break
		}
		id, err := w.pipeline.Synthesize(ctx, text, "")
		if err != nil {
			report.Failed = append(report.Failed, text)
			w.logger.Warn("warm-up phrase failed", zap.Error(err), zap.String("phrase", text))
			continue
		}
		report.Synthesized++
		if i == 0 {
			report.GreetingID = id
		}
	}

	report.Extended = w.store.ExtendAll(w.ttl)
	report.Duration = time.Since(start)
	w.logger.Info("warm-up complete",
		zap.Int("synthesized", report.Synthesized),
		zap.Int("failed", len(report.Failed)),
		zap.Int("extended", report.Extended),
		zap.Duration("elapsed", report.Duration))
	return report
}

// GreetingID returns the greeting clip id once warm-up has finished and the
// clip is still held by the store.
func (w *Warmer) GreetingID() (string, bool) {
	if !w.Ready() {
		return "", false
	}
	w.mu.RLock()
	id := w.greet
	w.mu.RUnlock()
	if id == "" {
		return "", false
	}
	if _, ok := w.pipeline.Audio(id); !ok {
		return "", false
	}
	return id, true
}

// Ready reports whether Run has completed.
func (w *Warmer) Ready() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Done is closed when Run completes.
func (w *Warmer) Done() <-chan struct{} {
	return w.done
}

func (w *Warmer) Report() WarmupReport {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r := w.report
	r.Failed = append([]string(nil), w.report.Failed...)
	return r
}

// Service is the boundary the call-control layer uses: synthesis, clip
// retrieval and the warm-up greeting.
type Service struct {
	*Pipeline
	*Warmer
}

func NewService(p *Pipeline, w *Warmer) *Service {
	return &Service{Pipeline: p, Warmer: w}
}
