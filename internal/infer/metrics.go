package infer

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "glowrs",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Commands waiting in the queue",
		},
		[]string{"queue"},
	)

	queueWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "glowrs",
			Subsystem: "queue",
			Name:      "wait_seconds",
			Help:      "Time a task spent queued before the worker picked it up",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	queueProcess = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "glowrs",
			Subsystem: "queue",
			Name:      "process_seconds",
			Help:      "Time the handler spent on a task",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	queueTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glowrs",
			Subsystem: "queue",
			Name:      "tasks_total",
			Help:      "Tasks handled by queue and outcome (ok, error, dropped, rejected)",
		},
		[]string{"queue", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(queueDepth, queueWait, queueProcess, queueTasksTotal)
}
