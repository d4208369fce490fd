// Package metrics provides Prometheus metrics for the game-date engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every metric the engine exports. A nil *Manager is valid and records nothing.
type Manager struct {
	namespace string
	subsystem string
	enabled   bool
	registry  *prometheus.Registry

	eliminations         prometheus.Counter
	rosterChanges        *prometheus.CounterVec
	recalculations       prometheus.Counter
	completions          prometheus.Counter
	timerActions         *prometheus.CounterVec
	autoAdvances         *prometheus.CounterVec
	tickErrors           prometheus.Counter
	notificationFailures prometheus.Counter
	archiveFailures      prometheus.Counter
	streamSubscribers    prometheus.Gauge
}

// NewManager creates a Manager with its own registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "league",
		subsystem: "game_date",
		enabled:   true,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	f := promauto.With(m.registry)

	m.eliminations = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "eliminations_total",
		Help: "Eliminations registered, winners included.",
	})
	m.rosterChanges = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "roster_changes_total",
		Help: "Live roster edits by operation.",
	}, []string{"op"})
	m.recalculations = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recalculations_total",
		Help: "Full position and points recalculations.",
	})
	m.completions = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "completions_total",
		Help: "Game dates completed by registering a winner.",
	})
	m.timerActions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "timer",
		Name: "actions_total",
		Help: "Persisted timer actions by type.",
	}, []string{"action"})
	m.autoAdvances = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "timer",
		Name: "auto_advance_attempts_total",
		Help: "Auto-advance guard outcomes: advanced, skipped, error.",
	}, []string{"result"})
	m.tickErrors = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "timer",
		Name: "tick_errors_total",
		Help: "Broadcast ticks that failed to derive a view.",
	})
	m.notificationFailures = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "timer",
		Name: "notification_failures_total",
		Help: "Blind change notifications that could not be delivered.",
	})
	m.archiveFailures = f.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "archive_failures_total",
		Help: "Final standings that could not be archived.",
	})
	m.streamSubscribers = f.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "timer",
		Name: "stream_subscribers",
		Help: "Open timer stream subscriptions.",
	})
}

func (m *Manager) on() bool { return m != nil && m.enabled }

func (m *Manager) RecordElimination() {
	if m.on() {
		m.eliminations.Inc()
	}
}

func (m *Manager) RecordRosterChange(op string) {
	if m.on() {
		m.rosterChanges.WithLabelValues(op).Inc()
	}
}

func (m *Manager) RecordRecalculation() {
	if m.on() {
		m.recalculations.Inc()
	}
}

func (m *Manager) RecordCompletion() {
	if m.on() {
		m.completions.Inc()
	}
}

func (m *Manager) RecordTimerAction(action string) {
	if m.on() {
		m.timerActions.WithLabelValues(action).Inc()
	}
}

// RecordAutoAdvance counts a guard outcome: "advanced", "skipped" or "error".
func (m *Manager) RecordAutoAdvance(result string) {
	if m.on() {
		m.autoAdvances.WithLabelValues(result).Inc()
	}
}

func (m *Manager) RecordTickError() {
	if m.on() {
		m.tickErrors.Inc()
	}
}

func (m *Manager) RecordNotificationFailure() {
	if m.on() {
		m.notificationFailures.Inc()
	}
}

func (m *Manager) RecordArchiveFailure() {
	if m.on() {
		m.archiveFailures.Inc()
	}
}

func (m *Manager) SubscriberJoined() {
	if m.on() {
		m.streamSubscribers.Inc()
	}
}

func (m *Manager) SubscriberLeft() {
	if m.on() {
		m.streamSubscribers.Dec()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
