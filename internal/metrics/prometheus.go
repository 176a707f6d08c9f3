package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framegrab_jobs_processed_total",
		Help: "Total number of extraction jobs processed, by outcome",
	}, []string{"outcome"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "framegrab_job_processing_duration_seconds",
		Help:    "Duration of extraction job stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_frames_extracted_total",
		Help: "Total number of frames stored across all jobs",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framegrab_active_jobs",
		Help: "Number of extraction jobs currently being processed",
	})

	SweptExtractionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_swept_extractions_total",
		Help: "Total number of finished extractions removed by the retention sweep",
	})
)

const (
	OutcomeDone      = "done"
	OutcomeFailed    = "failed"
	OutcomeMalformed = "malformed"
)
