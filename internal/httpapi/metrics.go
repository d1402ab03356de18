package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onnxd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		},
		[]string{"path", "method", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "onnxd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, including time queued behind other inferences.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"path", "method", "status"},
	)

	inflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "onnxd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "HTTP requests currently being served.",
		},
	)

	// Rejected /infer bodies never reach the dispatcher.
	rejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onnxd",
			Subsystem: "http",
			Name:      "infer_rejected_total",
			Help:      "Inference requests rejected before submission, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, inflightRequests, rejectedTotal)
}

// Rejection reasons for rejectedTotal.
const (
	rejectMediaType    = "media_type"
	rejectBodyTooLarge = "body_too_large"
	rejectInvalidJSON  = "invalid_json"
	rejectInvalidFeeds = "invalid_feeds"
)

func observeRejection(reason string) {
	rejectedTotal.WithLabelValues(reason).Inc()
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus. The route pattern is
// only known after routing, so labels are computed once the handler returns.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inflightRequests.Inc()
		defer inflightRequests.Dec()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		path := routePatternOrPath(r)
		status := strconv.Itoa(sr.status)
		requestsTotal.WithLabelValues(path, r.Method, status).Inc()
		requestDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath returns the chi route pattern when routing matched and
// the raw path otherwise. Unmatched paths are collapsed to keep label
// cardinality bounded.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
		return "unmatched"
	}
	return r.URL.Path
}
