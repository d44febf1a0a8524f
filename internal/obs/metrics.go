package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Blast pipeline metrics.
var (
	jobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blast_jobs_enqueued_total",
			Help: "Jobs accepted into the dispatch queue.",
		},
		[]string{"channel"},
	)

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blast_dispatch_attempts_total",
			Help: "Dispatch attempts grouped by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "blast_queue_depth",
			Help: "Jobs currently waiting in the queue.",
		},
		[]string{"channel"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blast_webhook_events_total",
			Help: "Inbound provider webhook events by classified type.",
		},
		[]string{"type"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		jobsEnqueuedTotal, dispatchTotal, queueDepth, webhookEventsTotal,
		ready,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(v bool) {
	if v {
		ready.Set(1)
	} else {
		ready.Set(0)
	}
}

// JobEnqueued increments the enqueue counter for a channel.
func JobEnqueued(channel string) {
	jobsEnqueuedTotal.WithLabelValues(channel).Inc()
}

// DispatchResult records one send attempt outcome ("sent" or "failed").
func DispatchResult(channel, outcome string) {
	dispatchTotal.WithLabelValues(channel, outcome).Inc()
}

// SetQueueDepth publishes the current queue depth for a channel.
func SetQueueDepth(channel string, n int) {
	queueDepth.WithLabelValues(channel).Set(float64(n))
}

// WebhookEvent counts a classified inbound webhook event.
func WebhookEvent(kind string) {
	webhookEventsTotal.WithLabelValues(kind).Inc()
}

// Instrument wraps an http.Handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for instrumentation.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
