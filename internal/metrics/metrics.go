package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weeve"

// Metrics holds every collector the bot exports. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	SourceRotations    *prometheus.CounterVec
	ButtonPresses      *prometheus.CounterVec
	AuthPolls          *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	CommandsTotal      *prometheus.CounterVec
	SessionsReaped     prometheus.Counter
	ActiveSessions     prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of play requests resolved against a source",
			},
			[]string{"source", "outcome"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Time spent loading tracks from a source",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"source"},
		),
		SourceRotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_rotations_total",
				Help:      "Total number of default source rotations after failed searches",
			},
			[]string{"from", "to"},
		),
		ButtonPresses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "button_presses_total",
				Help:      "Total number of selection buttons pressed",
			},
			[]string{"action"},
		),
		AuthPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_polls_total",
				Help:      "Device authorization steps by outcome",
			},
			[]string{"source", "outcome"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Result cache lookups by layer and result",
			},
			[]string{"layer", "result"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of slash commands handled",
			},
			[]string{"command"},
		),
		SessionsReaped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_reaped_total",
				Help:      "Total number of sessions left for inactivity",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of guilds with a playback session",
			},
		),
	}

	reg.MustRegister(
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.SourceRotations,
		m.ButtonPresses,
		m.AuthPolls,
		m.CacheLookups,
		m.CommandsTotal,
		m.SessionsReaped,
		m.ActiveSessions,
	)
	return m
}

func (m *Metrics) Resolved(source, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(source, outcome).Inc()
	m.ResolutionDuration.WithLabelValues(source).Observe(took.Seconds())
}

func (m *Metrics) SourceRotated(from, to string) {
	if m == nil {
		return
	}
	m.SourceRotations.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ButtonPressed(action string) {
	if m == nil {
		return
	}
	m.ButtonPresses.WithLabelValues(action).Inc()
}

func (m *Metrics) AuthPolled(source, outcome string) {
	if m == nil {
		return
	}
	m.AuthPolls.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) CacheLookup(layer, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(layer, result).Inc()
}

func (m *Metrics) CommandHandled(command string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command).Inc()
}

func (m *Metrics) SessionsActive(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) Reaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsReaped.Add(float64(n))
}
