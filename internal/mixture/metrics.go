package mixture

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moad",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "moad",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	agentCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moad",
			Subsystem: "engine",
			Name:      "agent_calls_total",
			Help:      "Agent completion calls by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	degradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moad",
			Subsystem: "engine",
			Name:      "degradations_total",
			Help:      "Recovery actions taken by the degradation policy",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration, agentCallsTotal, degradationsTotal)
}
