package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels computations that returned a result.
	OutcomeSuccess = "success"
	// OutcomeInvalid labels requests rejected for bad input or bad event data.
	OutcomeInvalid = "invalid"
	// OutcomeError labels dependency failures, timeouts and internal errors.
	OutcomeError = "error"
)

var (
	computationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_utilization",
			Name:      "computations_total",
			Help:      "Total number of overview and timeline computations, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	computationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_utilization",
			Name:      "computation_seconds",
			Help:      "Computation latency in seconds, including collaborator reads.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)
)

// Register attaches mirador-utilization collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		computationsTotal,
		computationDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveComputation records a computation duration and outcome label.
func ObserveComputation(operation string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeInvalid, OutcomeError:
	default:
		outcome = OutcomeError
	}
	computationsTotal.WithLabelValues(operation, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	computationDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}
