package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelfx_jobs_processed_total",
		Help: "Total number of jobs processed, by outcome",
	}, []string{"outcome"})

	JobStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelfx_job_stage_duration_seconds",
		Help:    "Duration of processing stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelfx_frames_processed_total",
		Help: "Total number of frames run through the effect pipeline",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelfx_active_jobs",
		Help: "Number of jobs currently being processed",
	})

	RedeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelfx_redeliveries_total",
		Help: "Total number of redelivered messages observed, by receive count",
	}, []string{"receive_count"})
)
