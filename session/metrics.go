package session

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	started   prometheus.Counter
	resumed   prometheus.Counter
	expired   prometheus.Counter
	destroyed prometheus.Counter
	gcRuns    prometheus.Counter
	gcErrors  prometheus.Counter
}

// newMetrics creates the session counters and registers them with reg,
// if any. Unregistered counters still count.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionx",
			Name:      "sessions_started_total",
			Help:      "Sessions started.",
		}),
		resumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionx",
			Name:      "sessions_resumed_total",
			Help:      "Sessions resumed from the store.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionx",
			Name:      "sessions_expired_total",
			Help:      "Sessions found expired and deleted.",
		}),
		destroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionx",
			Name:      "sessions_destroyed_total",
			Help:      "Sessions destroyed explicitly or by tag.",
		}),
		gcRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionx",
			Name:      "gc_runs_total",
			Help:      "Garbage collection runs.",
		}),
		gcErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionx",
			Name:      "gc_errors_total",
			Help:      "Failed garbage collection runs.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.started, m.resumed, m.expired, m.destroyed, m.gcRuns, m.gcErrors)
	}
	return m
}
