package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randalmurphal/claude-relay/relay"
	"github.com/randalmurphal/claude-relay/session"
)

const namespace = "claude_relay"

// Metrics records relay activity in Prometheus collectors. It implements
// relay.Observer.
type Metrics struct {
	runsStarted prometheus.Counter
	runs        *prometheus.CounterVec
	events      *prometheus.CounterVec
	aborts      *prometheus.CounterVec
}

var _ relay.Observer = (*Metrics)(nil)

// NewMetrics creates the relay collectors and registers them with reg,
// together with a gauge reporting the size of sessions.
func NewMetrics(reg prometheus.Registerer, sessions *session.Registry) *Metrics {
	m := &Metrics{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Claude processes started.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events delivered to clients by type.",
		}, []string{"type"}),
		aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aborts_total",
			Help:      "Abort requests by result.",
		}, []string{"result"}),
	}

	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Runs currently registered.",
	}, func() float64 { return float64(sessions.Count()) })

	reg.MustRegister(m.runsStarted, m.runs, m.events, m.aborts, active)
	return m
}

// RunStarted implements relay.Observer.
func (m *Metrics) RunStarted() {
	m.runsStarted.Inc()
}

// RunFinished implements relay.Observer.
func (m *Metrics) RunFinished(outcome relay.Outcome) {
	m.runs.WithLabelValues(string(outcome)).Inc()
}

// EventSent implements relay.Observer.
func (m *Metrics) EventSent(t relay.EventType) {
	m.events.WithLabelValues(string(t)).Inc()
}

// AbortRequested implements relay.Observer.
func (m *Metrics) AbortRequested(found bool) {
	result := "not_found"
	if found {
		result = "found"
	}
	m.aborts.WithLabelValues(result).Inc()
}
