package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Call-turn stages tracked in the rolling window.
const (
	StageBrain     = "brain"
	StageSynthesis = "synthesis"
	StageTurnTotal = "turn_total"
)

// stageBudgets is the p95 budget per stage. The telephony provider keeps the
// caller waiting on the webhook for the whole turn.
var stageBudgets = map[string]time.Duration{
	StageBrain:     2500 * time.Millisecond,
	StageSynthesis: 1500 * time.Millisecond,
	StageTurnTotal: 4 * time.Second,
}

type StageLatency struct {
	Stage      string  `json:"stage"`
	Samples    int     `json:"samples"`
	LastMS     float64 `json:"last_ms"`
	MeanMS     float64 `json:"mean_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	P99MS      float64 `json:"p99_ms"`
	BudgetMS   float64 `json:"budget_ms,omitempty"`
	OverBudget int     `json:"over_budget,omitempty"`
}

// LatencySnapshot is served at /v1/perf/latency.
type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Capacity    int            `json:"capacity"`
	Stages      []StageLatency `json:"stages"`
	Synthesis   map[string]int `json:"synthesis_outcomes,omitempty"`
}

// latencyWindow keeps the most recent samples per stage plus running counts
// of synthesis outcomes since start.
type latencyWindow struct {
	mu       sync.Mutex
	capacity int
	samples  map[string][]time.Duration
	outcomes map[string]int
	now      func() time.Time
}

func newLatencyWindow(capacity int) *latencyWindow {
	if capacity <= 0 {
		capacity = 512
	}
	return &latencyWindow{
		capacity: capacity,
		samples:  make(map[string][]time.Duration),
		outcomes: make(map[string]int),
		now:      time.Now,
	}
}

func (w *latencyWindow) observe(stage string, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := append(w.samples[stage], d)
	if len(s) > w.capacity {
		// Drop the oldest.
		s = s[len(s)-w.capacity:]
	}
	w.samples[stage] = s
}

func (w *latencyWindow) countOutcome(outcome string) {
	if outcome == "" {
		return
	}
	w.mu.Lock()
	w.outcomes[outcome]++
	w.mu.Unlock()
}

func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: w.now().UTC(),
		Capacity:    w.capacity,
		Stages:      make([]StageLatency, 0, len(w.samples)),
	}
	for stage, recent := range w.samples {
		if len(recent) == 0 {
			continue
		}
		snap.Stages = append(snap.Stages, summarize(stage, recent))
	}
	sort.Slice(snap.Stages, func(i, j int) bool { return snap.Stages[i].Stage < snap.Stages[j].Stage })

	if len(w.outcomes) > 0 {
		snap.Synthesis = make(map[string]int, len(w.outcomes))
		for k, v := range w.outcomes {
			snap.Synthesis[k] = v
		}
	}
	return snap
}

func summarize(stage string, recent []time.Duration) StageLatency {
	sorted := append([]time.Duration(nil), recent...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	out := StageLatency{
		Stage:   stage,
		Samples: len(sorted),
		LastMS:  millis(recent[len(recent)-1]),
		MeanMS:  millis(total / time.Duration(len(sorted))),
		P50MS:   millis(nearestRank(sorted, 0.50)),
		P95MS:   millis(nearestRank(sorted, 0.95)),
		P99MS:   millis(nearestRank(sorted, 0.99)),
	}
	if budget, ok := stageBudgets[stage]; ok {
		out.BudgetMS = millis(budget)
		for _, d := range sorted {
			if d > budget {
				out.OverBudget++
			}
		}
	}
	return out
}

func nearestRank(sorted []time.Duration, q float64) time.Duration {
	rank := int(math.Ceil(q * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func millis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
