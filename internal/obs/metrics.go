package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
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

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready.",
	})
)

// Authorization and session domain metrics.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"result"},
	)

	lockoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Accounts transitioned to the locked state.",
	})

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Refresh token redemptions by outcome.",
		},
		[]string{"result"},
	)

	replayTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_replay_total",
		Help: "Rotated-out refresh tokens presented again (compromise signal).",
	})

	revokedRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revoked_token_rejections_total",
		Help: "Requests rejected because the presented token id is revoked.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		loginsTotal, lockoutsTotal, refreshTotal, replayTotal, revokedRejections,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// ObserveLogin records a login attempt outcome: "success", "invalid",
// "locked" or "password_change_required".
func ObserveLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// IncLockout counts an account transition into the locked state.
func IncLockout() {
	lockoutsTotal.Inc()
}

// ObserveRefresh records a refresh redemption outcome: "success", "expired",
// "revoked" or "invalid".
func ObserveRefresh(result string) {
	refreshTotal.WithLabelValues(result).Inc()
}

// IncReplay counts a replayed refresh token.
func IncReplay() {
	replayTotal.Inc()
}

// IncRevokedRejection counts a request carrying a revoked token id.
func IncRevokedRejection() {
	revokedRejections.Inc()
}

// CanonicalPath collapses resource ids so metric label cardinality stays
// bounded. Unknown paths pass through unchanged (minus the query string).
func CanonicalPath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	known := map[string]bool{
		"users": true, "roles": true,
		"role-groups": true, "permission-groups": true,
	}
	if len(parts) >= 3 && parts[0] == "v1" && known[parts[1]] {
		out := append([]string{parts[0], parts[1], ":id"}, parts[3:]...)
		return "/" + strings.Join(out, "/")
	}
	return "/" + strings.Join(parts, "/")
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
