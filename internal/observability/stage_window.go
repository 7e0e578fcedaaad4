package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// StageLatencyStats summarizes recent wall-clock latencies for one pipeline
// stage over the rolling window.
type StageLatencyStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

// FallbackIndicator counts how often a named degradation has fired since the
// window was last reset.
type FallbackIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageLatencySnapshot struct {
	GeneratedAt time.Time           `json:"generated_at"`
	WindowSize  int                 `json:"window_size"`
	Stages      []StageLatencyStats `json:"stages"`
	Fallbacks   []FallbackIndicator `json:"fallbacks,omitempty"`
}

// stageWindow keeps a fixed-size ring of latency samples per stage plus
// fallback counters. It backs the stats endpoint; the Prometheus instruments
// stay the canonical long-term signal.
type stageWindow struct {
	mu         sync.RWMutex
	maxSamples int
	stages     map[string]*stageRing
	fallbacks  map[string]int
}

type stageRing struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func newStageWindow(maxSamples int) *stageWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &stageWindow{
		maxSamples: maxSamples,
		stages:     make(map[string]*stageRing),
		fallbacks:  make(map[string]int),
	}
}

func (w *stageWindow) Observe(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	ring, ok := w.stages[stage]
	if !ok {
		ring = &stageRing{
			values: make([]float64, w.maxSamples),
		}
		w.stages[stage] = ring
	}
	ring.values[ring.next] = ms
	ring.last = ms
	ring.next++
	if ring.next >= len(ring.values) {
		ring.next = 0
		ring.filled = true
	}
}

func (w *stageWindow) ObserveFallback(name string) {
	if w == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fallbacks[name]++
}

func (w *stageWindow) Snapshot() StageLatencySnapshot {
	if w == nil {
		return StageLatencySnapshot{GeneratedAt: time.Now().UTC()}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	stages := make([]StageLatencyStats, 0, len(w.stages))
	keys := make([]string, 0, len(w.stages))
	for stage := range w.stages {
		keys = append(keys, stage)
	}
	sort.Strings(keys)

	for _, stage := range keys {
		ring := w.stages[stage]
		if ring == nil {
			continue
		}
		n := ring.next
		if ring.filled {
			n = len(ring.values)
		}
		if n <= 0 {
			continue
		}
		samples := make([]float64, n)
		copy(samples, ring.values[:n])
		sort.Float64s(samples)

		sum := 0.0
		for _, v := range samples {
			sum += v
		}

		stages = append(stages, StageLatencyStats{
			Stage:       stage,
			Samples:     n,
			LastMS:      round2(ring.last),
			AvgMS:       round2(sum / float64(n)),
			P50MS:       round2(quantile(samples, 0.50)),
			P95MS:       round2(quantile(samples, 0.95)),
			P99MS:       round2(quantile(samples, 0.99)),
			TargetP95MS: stageTargetP95MS(stage),
		})
	}

	fallbacks := make([]FallbackIndicator, 0, len(w.fallbacks))
	names := make([]string, 0, len(w.fallbacks))
	for name := range w.fallbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		count := w.fallbacks[name]
		if count <= 0 {
			continue
		}
		fallbacks = append(fallbacks, FallbackIndicator{
			Name:  name,
			Count: count,
		})
	}

	return StageLatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Stages:      stages,
		Fallbacks:   fallbacks,
	}
}

func (w *stageWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stages = make(map[string]*stageRing)
	w.fallbacks = make(map[string]int)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// stageTargetP95MS holds the latency targets the stats endpoint reports next
// to the measured percentiles. Zero means no target is set for the stage.
func stageTargetP95MS(stage string) float64 {
	switch stage {
	case StagePlan:
		return 20000
	case StageSynthesize:
		return 45000
	case StageAssemble:
		return 2000
	case StageUpload:
		return 8000
	case StagePersist:
		return 500
	case StageTotal:
		return 90000
	default:
		return 0
	}
}
