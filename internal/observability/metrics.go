package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stage names shared by the Prometheus labels and the rolling
// latency window.
const (
	StagePlan       = "plan"
	StageSynthesize = "synthesize"
	StageAssemble   = "assemble"
	StageTranscode  = "transcode"
	StageUpload     = "upload"
	StagePersist    = "persist"
	StageTotal      = "total"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Generations        *prometheus.CounterVec
	StageFallbacks     *prometheus.CounterVec
	SynthesisFailures  prometheus.Counter
	GenerationDuration prometheus.Histogram
	PendingJobs        prometheus.Gauge
	JobTransitions     *prometheus.CounterVec
	RateLimitRejects   prometheus.Counter
	ArtifactPurges     prometheus.Counter

	window *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Generations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Meditation generations by mode (sync|job) and outcome.",
		}, []string{"mode", "outcome"}),
		StageFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_fallbacks_total",
			Help:      "Pipeline stage failures downgraded to their fallback, by stage.",
		}, []string{"stage"}),
		SynthesisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_failures_total",
			Help:      "Per-segment speech synthesis failures replaced with silence.",
		}),
		GenerationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock duration of the full generation pipeline.",
			Buckets:   []float64{5, 10, 20, 40, 60, 90, 150, 300, 600},
		}),
		PendingJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_jobs",
			Help:      "Generation jobs currently waiting for a worker.",
		}),
		JobTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Generation job state transitions by target status.",
		}, []string{"to"}),
		RateLimitRejects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejects_total",
			Help:      "Job creations rejected by the per-user rate limiter.",
		}),
		ArtifactPurges: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_purges_total",
			Help:      "Expired meditation audio artifacts purged from storage.",
		}),
		window: newStageWindow(128),
	}
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationDuration.Observe(d.Seconds())
	m.window.Observe(StageTotal, float64(d.Milliseconds()))
}

// ObserveStage records one stage duration in the rolling latency window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.window.Observe(stage, float64(d.Milliseconds()))
}

// StageFallback counts a stage degradation in both the Prometheus counter
// and the rolling window.
func (m *Metrics) StageFallback(stage string) {
	if m == nil {
		return
	}
	m.StageFallbacks.WithLabelValues(stage).Inc()
	m.window.ObserveFallback(stage)
}

// StageLatency reports the rolling latency snapshot served by the stats
// endpoint.
func (m *Metrics) StageLatency() StageLatencySnapshot {
	if m == nil {
		return StageLatencySnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.window.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
