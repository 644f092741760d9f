package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors for the analysis pipeline.
type Metrics struct {
	AnalysesTotal        *prometheus.CounterVec
	ReasonerCallsTotal   *prometheus.CounterVec
	ContentFailuresTotal *prometheus.CounterVec
	SafetyDowngrades     prometheus.Counter
	EscalationsTotal     *prometheus.CounterVec
	AnalysisDuration     prometheus.Histogram
}

// NewMetrics returns the process-wide pipeline metrics, registering them on
// first use.
//
// Metrics:
//   - incident_pipeline_analyses_total{outcome} - final, need_more_info or error
//   - incident_pipeline_reasoner_calls_total{role} - planner or critic
//   - incident_pipeline_content_failures_total{role,kind} - unparseable or invalid reasoner output
//   - incident_pipeline_safety_downgrades_total - plans downgraded by the safety gate
//   - incident_pipeline_escalations_total{result} - resolved, unresolved, invalid or no_evidence
//   - incident_pipeline_analysis_duration_seconds - wall time of successful analyses
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		opts := func(name, help string) prometheus.CounterOpts {
			return prometheus.CounterOpts{Namespace: "incident", Subsystem: "pipeline", Name: name, Help: help}
		}
		globalMetrics = &Metrics{
			AnalysesTotal: promauto.NewCounterVec(
				opts("analyses_total", "Total number of analyses by outcome"),
				[]string{"outcome"},
			),
			ReasonerCallsTotal: promauto.NewCounterVec(
				opts("reasoner_calls_total", "Total number of reasoner calls by role"),
				[]string{"role"},
			),
			ContentFailuresTotal: promauto.NewCounterVec(
				opts("content_failures_total", "Reasoner outputs that failed parsing or validation"),
				[]string{"role", "kind"},
			),
			SafetyDowngrades: promauto.NewCounter(
				opts("safety_downgrades_total", "Plans downgraded by the safety gate"),
			),
			EscalationsTotal: promauto.NewCounterVec(
				opts("escalations_total", "Escalation rounds by result"),
				[]string{"result"},
			),
			AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "incident",
				Subsystem: "pipeline",
				Name:      "analysis_duration_seconds",
				Help:      "Duration of successful analyses in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			}),
		}
	})
	return globalMetrics
}
