package server

import (
	"github.com/chazu/storyvm/vm"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "storyvm"
	subsystem = "play"
)

// metrics are registered on a per-server registry so several servers can
// live in one process.
type metrics struct {
	registry     *prometheus.Registry
	active       prometheus.Gauge
	sessions     prometheus.Counter
	rejected     prometheus.Counter
	commands     prometheus.Counter
	instructions prometheus.Counter
	errors       *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_active",
			Help:      "Play sessions currently connected.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_total",
			Help:      "Play sessions started.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_rejected_total",
			Help:      "Play sessions refused for lack of capacity or a bad token.",
		}),
		commands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_total",
			Help:      "Input lines received from players.",
		}),
		instructions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "instructions_total",
			Help:      "Instructions executed by finished sessions.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Sessions ended by a machine error. Broken down by error kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.active, m.sessions, m.rejected, m.commands, m.instructions, m.errors)
	return m
}

// machineError counts err under its vm error kind.
func (m *metrics) machineError(err error) {
	kind := "other"
	var ve *vm.Error
	if errors.As(err, &ve) {
		kind = ve.Kind.String()
	}
	m.errors.WithLabelValues(kind).Inc()
}
