package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// pipelineRuns counts finished runs by final status (notified|skipped|error).
	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slacker_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)

	// stageDuration records how long each stage took.
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slacker_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// classifications counts assigned tags; source is classifier or fallback.
	classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slacker_classifications_total",
			Help: "Total number of classified messages by intent and source.",
		},
		[]string{"intent", "source"},
	)

	// queueDepth gauges messages waiting for a worker.
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "slacker_pipeline_queue_depth",
			Help: "Current number of messages waiting in the pipeline queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(pipelineRuns, stageDuration, classifications, queueDepth)
}
