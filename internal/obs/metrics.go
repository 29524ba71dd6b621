package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
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

// Метрики ядра доступа и модерации.
var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	moderationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_transitions_total",
			Help: "Applied moderation transitions by resource kind and action.",
		},
		[]string{"kind", "action"},
	)

	serviceReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the last readiness check passed.",
	})

	profileFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_fallback_total",
			Help: "Privileged profile lookups after a circular policy failure, by outcome.",
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// Init registers the collectors in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authzDecisions, moderationTransitions, profileFallbacks, serviceReady,
		)
	})
}

// SetReady records the outcome of the latest readiness probe.
func SetReady(ok bool) {
	if ok {
		serviceReady.Set(1)
		return
	}
	serviceReady.Set(0)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDecision counts one authorization outcome.
func RecordDecision(action string, allowed bool, reason string) {
	outcome := "allow"
	if !allowed {
		outcome = reason
	}
	authzDecisions.WithLabelValues(action, outcome).Inc()
}

// RecordTransition counts one applied moderation transition.
func RecordTransition(kind, action string) {
	moderationTransitions.WithLabelValues(kind, action).Inc()
}

// RecordFallback counts one privileged profile lookup attempt.
func RecordFallback(outcome string) {
	profileFallbacks.WithLabelValues(outcome).Inc()
}

// CanonicalPath collapses identifiers in known routes so label cardinality
// stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		return raw
	}
	switch parts[1] {
	case "polls":
		// /v1/polls/{id}, /v1/polls/{id}/comments, /v1/polls/{id}/votes, /v1/polls/{id}/moderation
		if len(parts) == 3 {
			return "/v1/polls/:id"
		}
		if len(parts) == 4 && (parts[3] == "comments" || parts[3] == "votes" || parts[3] == "moderation") {
			return "/v1/polls/:id/" + parts[3]
		}
	case "comments":
		if len(parts) == 3 {
			return "/v1/comments/:id"
		}
		if len(parts) == 4 && parts[3] == "moderation" {
			return "/v1/comments/:id/moderation"
		}
	case "identities":
		if len(parts) == 4 && (parts[3] == "role" || parts[3] == "suspension") {
			return "/v1/identities/:id/" + parts[3]
		}
	}
	return raw
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
