package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	poolSize              *prometheus.GaugeVec
	timers                *prometheus.GaugeVec
	matchTransitions      *prometheus.CounterVec
	tournamentTransitions *prometheus.CounterVec
	advisoryFailures      *prometheus.CounterVec
	poolEvictions         *prometheus.CounterVec
	pairingDuration       prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		poolSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "game_match_pool_size",
			Help: "Players currently waiting in each pool",
		}, []string{"mode"}),
		timers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "game_match_timers",
			Help: "Live deadline timers by entity kind",
		}, []string{"kind"}),
		matchTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "game_match_transitions_total",
			Help: "Match status transitions by target status",
		}, []string{"status"}),
		tournamentTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "game_match_tournament_transitions_total",
			Help: "Tournament status transitions by target status",
		}, []string{"status"}),
		advisoryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "game_match_advisory_failures_total",
			Help: "Best-effort collaborator calls that failed",
		}, []string{"target"}),
		poolEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "game_match_pool_evictions_total",
			Help: "Players evicted from a pool for waiting too long",
		}, []string{"mode"}),
		pairingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "game_match_pairing_duration_seconds",
			Help:    "Time spent creating a match from two pool entries",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) SetPoolSize(mode string, size int) {
	if m == nil {
		return
	}
	m.poolSize.WithLabelValues(mode).Set(float64(size))
}

func (m *Metrics) SetTimers(kind string, n int) {
	if m == nil {
		return
	}
	m.timers.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) MatchTransition(status string) {
	if m == nil {
		return
	}
	m.matchTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) TournamentTransition(status string) {
	if m == nil {
		return
	}
	m.tournamentTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) AdvisoryFailure(target string) {
	if m == nil {
		return
	}
	m.advisoryFailures.WithLabelValues(target).Inc()
}

func (m *Metrics) PoolEvictions(mode string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.poolEvictions.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) ObservePairing(seconds float64) {
	if m == nil {
		return
	}
	m.pairingDuration.Observe(seconds)
}
