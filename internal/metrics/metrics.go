// Package metrics provides Prometheus metrics for the supervisor, the
// task queue and the worker pool. Metrics register on the default
// registry; exposing them over HTTP is the embedding API's concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	supervisorRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pdfnode",
		Subsystem: "supervisor",
		Name:      "restarts_total",
		Help:      "Backend restart attempts scheduled after a failure",
	})

	supervisorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pdfnode",
		Subsystem: "supervisor",
		Name:      "state",
		Help:      "Current supervisor state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pdfnode",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Tasks currently buffered in the queue",
	})

	queueCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pdfnode",
		Subsystem: "queue",
		Name:      "capacity",
		Help:      "Configured queue capacity",
	})

	tasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pdfnode",
		Subsystem: "tasks",
		Name:      "submitted_total",
		Help:      "Tasks admitted to the queue",
	})

	tasksDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pdfnode",
		Subsystem: "tasks",
		Name:      "deduplicated_total",
		Help:      "Submissions that returned an existing pending handle",
	})

	tasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pdfnode",
		Subsystem: "tasks",
		Name:      "completed_total",
		Help:      "Tasks that resolved successfully",
	})

	tasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdfnode",
		Subsystem: "tasks",
		Name:      "failed_total",
		Help:      "Tasks that resolved with a failure",
	}, []string{"reason"})

	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pdfnode",
		Subsystem: "tasks",
		Name:      "duration_seconds",
		Help:      "Wall time from dequeue to resolution",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// IncRestarts records a scheduled restart attempt.
func IncRestarts() {
	supervisorRestarts.Inc()
}

// SetSupervisorState marks the active supervisor state.
func SetSupervisorState(state string) {
	for _, s := range []string{"starting", "running", "restarting", "stopped"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		supervisorState.WithLabelValues(s).Set(v)
	}
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetQueueCapacity records the configured capacity.
func SetQueueCapacity(n int) {
	queueCapacity.Set(float64(n))
}

// IncSubmitted records an admitted task.
func IncSubmitted() {
	tasksSubmitted.Inc()
}

// IncDeduplicated records a submission collapsed onto a pending task.
func IncDeduplicated() {
	tasksDeduplicated.Inc()
}

// ObserveCompleted records a successful task and its duration in seconds.
func ObserveCompleted(seconds float64) {
	tasksCompleted.Inc()
	taskDuration.Observe(seconds)
}

// ObserveFailed records a failed task with a reason label.
func ObserveFailed(reason string, seconds float64) {
	tasksFailed.WithLabelValues(reason).Inc()
	taskDuration.Observe(seconds)
}
