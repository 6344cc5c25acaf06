package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsProcessed counts completed jobs per queue and outcome.
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinforge_jobs_processed_total",
			Help: "Total number of processed jobs",
		},
		[]string{"queue", "status"},
	)

	// JobDuration observes job execution time per queue.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twinforge_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	// HTTPRequests counts served requests per method, route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinforge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration observes request latency per method and route.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twinforge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RecordsInserted counts record-store inserts per component table.
	RecordsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twinforge_records_inserted_total",
			Help: "Total number of records inserted",
		},
		[]string{"component"},
	)

	// QueueDepth reports the last observed queue depth per queue and state.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "twinforge_queue_depth",
			Help: "Observed queue depth",
		},
		[]string{"queue", "state"},
	)
)

// ObserveJob records one job completion.
func ObserveJob(queue string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	JobsProcessed.WithLabelValues(queue, status).Inc()
	JobDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, path string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler exposes the metrics in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
