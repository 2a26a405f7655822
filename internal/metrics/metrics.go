// Package metrics exports machine lifecycle events as Prometheus metrics.
//
// Labels are bounded by the machine's registry: machine name, state key,
// event kind and cadence. Nothing per-run or per-tick becomes a label.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/fsmstack/internal/fsm"
)

// Collector is an fsm.Listener that updates Prometheus metrics.
//
// Attach one Collector to any number of machines; series are keyed by the
// machine name.
type Collector struct {
	transitions *prometheus.CounterVec
	ticks       *prometheus.CounterVec
	depth       *prometheus.GaugeVec
	paused      *prometheus.GaugeVec
}

// New registers the fsmstack metrics on reg. Registering twice on the same
// registry panics, as promauto does.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsmstack_transitions_total",
			Help: "Total number of state enters and exits, by machine, state and kind.",
		}, []string{"machine", "state", "kind"}),

		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsmstack_ticks_total",
			Help: "Total number of ticks dispatched, by machine, state and cadence.",
		}, []string{"machine", "state", "cadence"}),

		depth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fsmstack_stack_depth",
			Help: "Current number of stacked states, by machine.",
		}, []string{"machine"}),

		paused: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fsmstack_paused",
			Help: "1 while the machine is paused, 0 otherwise.",
		}, []string{"machine"}),
	}
}

// OnEvent implements fsm.Listener.
func (c *Collector) OnEvent(ev fsm.Event) {
	switch ev.Kind {
	case fsm.EventEntered:
		c.transitions.WithLabelValues(ev.Machine, string(ev.State), ev.Kind.String()).Inc()
		c.depth.WithLabelValues(ev.Machine).Set(float64(ev.Depth))
	case fsm.EventExited:
		c.transitions.WithLabelValues(ev.Machine, string(ev.State), ev.Kind.String()).Inc()
	case fsm.EventPopped:
		c.depth.WithLabelValues(ev.Machine).Set(float64(ev.Depth))
	case fsm.EventTicked:
		c.ticks.WithLabelValues(ev.Machine, string(ev.State), ev.Cadence.String()).Inc()
	case fsm.EventPaused:
		c.paused.WithLabelValues(ev.Machine).Set(1)
	case fsm.EventResumed:
		c.paused.WithLabelValues(ev.Machine).Set(0)
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
