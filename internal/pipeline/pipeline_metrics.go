package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/skywatch/internal/verify"
)

// Metrics holds Prometheus metrics for the ingestion pipeline. A nil *Metrics
// is valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	RejectsTotal     *prometheus.CounterVec
	IncidentsCreated prometheus.Counter
	IncidentsMerged  prometheus.Counter
	EvidenceScores   *prometheus.CounterVec
	BatchSize        prometheus.Histogram
	BatchDuration    prometheus.Histogram
	VerifyCalls      *prometheus.CounterVec
	VerifyDuration   prometheus.Histogram
	VerifyCacheHits  prometheus.Counter
	VerifyFallbacks  *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_rejects_total",
			Help: "Candidates rejected, by pipeline stage.",
		}, []string{"stage"}),
		IncidentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_incidents_created_total",
			Help: "New consolidated incidents created.",
		}),
		IncidentsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_incidents_merged_total",
			Help: "Candidates merged into existing incidents.",
		}),
		EvidenceScores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_evidence_scores_total",
			Help: "Evidence score written after each consolidation, by tier.",
		}, []string{"score"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skywatch_batch_size",
			Help:    "Candidates per ingestion batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skywatch_batch_duration_seconds",
			Help:    "Duration of ingestion batches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
		VerifyCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_verify_calls_total",
			Help: "AI verifier provider calls by outcome.",
		}, []string{"outcome"}),
		VerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skywatch_verify_call_duration_seconds",
			Help:    "Duration of individual AI verifier calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}),
		VerifyCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_verify_cache_hits_total",
			Help: "AI verifier results served from the TTL cache.",
		}),
		VerifyFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_verify_fallbacks_total",
			Help: "AI verifier degradations to rule-based verdicts, by cause.",
		}, []string{"cause"}),
	}

	reg.MustRegister(
		m.RejectsTotal,
		m.IncidentsCreated,
		m.IncidentsMerged,
		m.EvidenceScores,
		m.BatchSize,
		m.BatchDuration,
		m.VerifyCalls,
		m.VerifyDuration,
		m.VerifyCacheHits,
		m.VerifyFallbacks,
	)

	return m
}

// VerifyHooks returns verify.Hooks that increment the corresponding metrics.
func (m *Metrics) VerifyHooks() verify.Hooks {
	if m == nil {
		return verify.Hooks{}
	}
	return verify.Hooks{
		OnCall: func(duration float64, outcome string) {
			m.VerifyCalls.WithLabelValues(outcome).Inc()
			m.VerifyDuration.Observe(duration)
		},
		OnCacheHit: func() {
			m.VerifyCacheHits.Inc()
		},
		OnFallback: func(cause string) {
			m.VerifyFallbacks.WithLabelValues(cause).Inc()
		},
	}
}

func (m *Metrics) observeReject(stage string) {
	if m == nil {
		return
	}
	m.RejectsTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) observeConsolidation(merged bool, score int) {
	if m == nil {
		return
	}
	if merged {
		m.IncidentsMerged.Inc()
	} else {
		m.IncidentsCreated.Inc()
	}
	m.EvidenceScores.WithLabelValues(scoreLabel(score)).Inc()
}

func (m *Metrics) observeBatch(size int, seconds float64) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(seconds)
}

func scoreLabel(score int) string {
	switch score {
	case 1:
		return "unconfirmed"
	case 2:
		return "reported"
	case 3:
		return "verified"
	case 4:
		return "official"
	}
	return "unknown"
}
