package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// HeartbeatMetrics bundles the cycle-level Prometheus instruments: funnel
// counts, stage latency, decision tiers, and exit urgency. Mirrors the
// lazily-initialised singleton pattern of the teacher's PotsoMetrics.
type HeartbeatMetrics struct {
	cyclesTotal       *prometheus.CounterVec
	stageLatency      *prometheus.HistogramVec
	candidatesScored  *prometheus.CounterVec
	decisionsTotal    *prometheus.CounterVec
	exitsTotal        *prometheus.CounterVec
	sourceUnhealthy   *prometheus.CounterVec
	beadsWritten      *prometheus.CounterVec
	merkleBatches     prometheus.Counter
	guardHalts        *prometheus.CounterVec
	balanceSOL        prometheus.Gauge
	openPositions     prometheus.Gauge
	observeOnlyCycles prometheus.Counter
}

var (
	heartbeatOnce sync.Once
	heartbeat     *HeartbeatMetrics
)

// Heartbeat returns the process-wide heartbeat metrics registry, registering
// it with the default Prometheus registerer on first use.
func Heartbeat() *HeartbeatMetrics {
	heartbeatOnce.Do(func() {
		heartbeat = &HeartbeatMetrics{
			cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "heartbeat_cycles_total",
				Help: "Count of completed heartbeat cycles by outcome.",
			}, []string{"outcome"}),
			stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "heartbeat_stage_latency_seconds",
				Help:    "Stage execution latency within a cycle.",
				Buckets: prometheus.DefBuckets,
			}, []string{"stage"}),
			candidatesScored: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "heartbeat_candidates_scored_total",
				Help: "Count of candidates scored by play type.",
			}, []string{"play_type"}),
			decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "heartbeat_decisions_total",
				Help: "Count of scorer recommendations by tier.",
			}, []string{"recommendation"}),
			exitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "heartbeat_exits_total",
				Help: "Count of position exits by tier and urgency.",
			}, []string{"tier", "urgency"}),
			sourceUnhealthy: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "heartbeat_source_unhealthy_total",
				Help: "Count of data-source adapter failures by provider.",
			}, []string{"provider"}),
			beadsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "heartbeat_beads_written_total",
				Help: "Count of beads appended to the chain by bead type.",
			}, []string{"bead_type"}),
			merkleBatches: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "heartbeat_merkle_batches_total",
				Help: "Count of Merkle batches sealed.",
			}),
			guardHalts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "heartbeat_guard_halts_total",
				Help: "Count of cycles halted by a guard, by guard name.",
			}, []string{"guard"}),
			balanceSOL: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "heartbeat_balance_sol",
				Help: "Current SOL balance as of the last cycle.",
			}),
			openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "heartbeat_open_positions",
				Help: "Number of open positions as of the last cycle.",
			}),
			observeOnlyCycles: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "heartbeat_observe_only_cycles_total",
				Help: "Count of cycles that degraded to observe-only mode.",
			}),
		}
		prometheus.MustRegister(
			heartbeat.cyclesTotal,
			heartbeat.stageLatency,
			heartbeat.candidatesScored,
			heartbeat.decisionsTotal,
			heartbeat.exitsTotal,
			heartbeat.sourceUnhealthy,
			heartbeat.beadsWritten,
			heartbeat.merkleBatches,
			heartbeat.guardHalts,
			heartbeat.balanceSOL,
			heartbeat.openPositions,
			heartbeat.observeOnlyCycles,
		)
	})
	return heartbeat
}

func (m *HeartbeatMetrics) CycleCompleted(outcome string) {
	m.cyclesTotal.WithLabelValues(outcome).Inc()
}

func (m *HeartbeatMetrics) ObserveStageLatency(stage string, seconds float64) {
	m.stageLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *HeartbeatMetrics) CandidateScored(playType string) {
	m.candidatesScored.WithLabelValues(playType).Inc()
}

func (m *HeartbeatMetrics) Decision(recommendation string) {
	m.decisionsTotal.WithLabelValues(recommendation).Inc()
}

func (m *HeartbeatMetrics) Exit(tier, urgency string) {
	m.exitsTotal.WithLabelValues(tier, urgency).Inc()
}

func (m *HeartbeatMetrics) SourceUnhealthy(provider string) {
	m.sourceUnhealthy.WithLabelValues(provider).Inc()
}

func (m *HeartbeatMetrics) BeadWritten(beadType string) {
	m.beadsWritten.WithLabelValues(beadType).Inc()
}

func (m *HeartbeatMetrics) MerkleBatchSealed() {
	m.merkleBatches.Inc()
}

func (m *HeartbeatMetrics) GuardHalt(guard string) {
	m.guardHalts.WithLabelValues(guard).Inc()
}

func (m *HeartbeatMetrics) SetBalance(sol float64) {
	m.balanceSOL.Set(sol)
}

func (m *HeartbeatMetrics) SetOpenPositions(n int) {
	m.openPositions.Set(float64(n))
}

func (m *HeartbeatMetrics) ObserveOnlyCycle() {
	m.observeOnlyCycles.Inc()
}
