package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RuntimeStatuses lists every value the runtime status gauge is set for.
var RuntimeStatuses = []string{"unknown", "installed", "ready", "started", "stopped"}

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	ticks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Number of completed status monitor ticks.",
		},
	)
	tickFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "monitor",
			Name:      "tick_failures_total",
			Help:      "Number of ticks aborted by a recovered panic.",
		},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "runtime",
			Name:      "probes_total",
			Help:      "Runtime probe results by outcome (not_installed, not_running, running).",
		}, []string{"outcome"},
	)
	runtimeStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "socktainerd",
			Subsystem: "runtime",
			Name:      "status",
			Help:      "Current runtime status (1 = active status, 0 = inactive).",
		}, []string{"status"},
	)
	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "runtime",
			Name:      "status_transitions_total",
			Help:      "Number of runtime status transitions.",
		}, []string{"from", "to"},
	)
	bridgeStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "bridge",
			Name:      "starts_total",
			Help:      "Number of successful bridge process spawns.",
		},
	)
	bridgeSpawnFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "bridge",
			Name:      "spawn_failures_total",
			Help:      "Number of failed bridge process spawns.",
		},
	)
	bridgeStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "bridge",
			Name:      "stops_total",
			Help:      "Number of requested bridge process stops.",
		},
	)
	bridgeExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "bridge",
			Name:      "exits_total",
			Help:      "Number of observed bridge process exits.",
		}, []string{"unexpected"},
	)
	bridgeRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "socktainerd",
			Subsystem: "bridge",
			Name:      "running",
			Help:      "1 while a bridge process handle is held.",
		},
	)
	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "connection",
			Name:      "registrations_total",
			Help:      "Connection registration attempts by result (ok, error).",
		}, []string{"result"},
	)
	unregistrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socktainerd",
			Subsystem: "connection",
			Name:      "unregistrations_total",
			Help:      "Number of connection unregistrations.",
		},
	)
	startupGrace = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "socktainerd",
			Subsystem: "bridge",
			Name:      "startup_wait_seconds",
			Help:      "Time between bridge spawn and connection registration.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		ticks, tickFailures, probes, runtimeStatus, statusTransitions,
		bridgeStarts, bridgeSpawnFailures, bridgeStops, bridgeExits, bridgeRunning,
		registrations, unregistrations, startupGrace,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncTick() {
	if regOK.Load() {
		ticks.Inc()
	}
}

func IncTickFailure() {
	if regOK.Load() {
		tickFailures.Inc()
	}
}

func IncProbe(outcome string) {
	if regOK.Load() {
		probes.WithLabelValues(outcome).Inc()
	}
}

// SetRuntimeStatus marks status active and every other known status inactive.
func SetRuntimeStatus(status string) {
	if !regOK.Load() {
		return
	}
	for _, s := range RuntimeStatuses {
		var v float64
		if s == status {
			v = 1
		}
		runtimeStatus.WithLabelValues(s).Set(v)
	}
}

func RecordStatusTransition(from, to string) {
	if regOK.Load() {
		statusTransitions.WithLabelValues(from, to).Inc()
	}
}

func IncBridgeStart() {
	if regOK.Load() {
		bridgeStarts.Inc()
	}
}

func IncBridgeSpawnFailure() {
	if regOK.Load() {
		bridgeSpawnFailures.Inc()
	}
}

func IncBridgeStop() {
	if regOK.Load() {
		bridgeStops.Inc()
	}
}

func IncBridgeExit(unexpected bool) {
	if regOK.Load() {
		l := "false"
		if unexpected {
			l = "true"
		}
		bridgeExits.WithLabelValues(l).Inc()
	}
}

func SetBridgeRunning(running bool) {
	if regOK.Load() {
		var v float64
		if running {
			v = 1
		}
		bridgeRunning.Set(v)
	}
}

func IncRegistration(ok bool) {
	if regOK.Load() {
		l := "ok"
		if !ok {
			l = "error"
		}
		registrations.WithLabelValues(l).Inc()
	}
}

func IncUnregistration() {
	if regOK.Load() {
		unregistrations.Inc()
	}
}

func ObserveStartupWait(seconds float64) {
	if regOK.Load() {
		startupGrace.Observe(seconds)
	}
}
