// Package metrics registers the engine's Prometheus instruments and serves
// them together with a liveness endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SamplesRead = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "weavesync_velocity_samples_total", Help: "Raw velocity samples read from the sensor"},
	)
	SamplesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "weavesync_velocity_samples_rejected_total", Help: "Samples rejected as outliers by the velocity filter"},
	)
	SensorErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "weavesync_sensor_read_errors_total", Help: "Velocity sensor read failures"},
	)
	IterationsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "weavesync_capture_iterations_total", Help: "Completed two-light capture iterations"},
	)
	IterationsAborted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "weavesync_capture_iterations_aborted_total", Help: "Capture iterations aborted on camera failure"},
	)
	LightGapSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weavesync_light_gap_seconds",
			Help:    "Wall-clock gap between the two light captures of one iteration",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)
	JobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weavesync_dispatch_jobs_enqueued_total", Help: "Jobs accepted by the dispatch queue"},
		[]string{"kind"},
	)
	JobsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weavesync_dispatch_jobs_dropped_total", Help: "Jobs dropped by the dispatch queue"},
		[]string{"kind"},
	)
	JobsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weavesync_dispatch_jobs_delivered_total", Help: "Jobs delivered to the server"},
		[]string{"kind"},
	)
	JobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "weavesync_dispatch_jobs_failed_total", Help: "Jobs that exhausted their retries"},
		[]string{"kind"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "weavesync_dispatch_queue_depth", Help: "Jobs currently waiting in the dispatch queue"},
	)
)

func init() {
	prometheus.MustRegister(
		SamplesRead, SamplesRejected, SensorErrors,
		IterationsCompleted, IterationsAborted, LightGapSeconds,
		JobsEnqueued, JobsDropped, JobsDelivered, JobsFailed, QueueDepth,
	)
}

// Handler returns the HTTP handler exposing /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// Serve starts the metrics listener in the background.
func Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: Handler()}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
