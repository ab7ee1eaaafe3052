package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// httpMetrics holds HTTP-specific metric instruments.
type httpMetrics struct {
	requestCounter metric.Int64Counter
	durationHisto  metric.Float64Histogram
}

// HTTPMetricsMiddleware returns a middleware that records HTTP request
// metrics: total requests and request durations with method, path, and
// status_code labels. The matched route pattern is used as the path label to
// keep cardinality bounded.
func HTTPMetricsMiddleware(
	meterProvider metric.MeterProvider,
	namespace string,
) func(http.Handler) http.Handler {
	meter := meterProvider.Meter(namespace)

	requestCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		// If metric creation fails, return a no-op middleware.
		return func(next http.Handler) http.Handler { return next }
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return func(next http.Handler) http.Handler { return next }
	}

	instruments := &httpMetrics{
		requestCounter: requestCounter,
		durationHisto:  durationHisto,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			attrs := []attribute.KeyValue{
				attribute.String("method", r.Method),
				attribute.String("path", sanitizePath(r.Pattern)),
				attribute.String("status_code", strconv.Itoa(rw.statusCode)),
			}

			instruments.requestCounter.Add(r.Context(), 1, metric.WithAttributes(attrs...))
			instruments.durationHisto.Record(r.Context(), time.Since(start).Seconds(),
				metric.WithAttributes(attrs...))
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// sanitizePath returns the matched route pattern, or "unknown" when the
// request did not match a route.
func sanitizePath(pattern string) string {
	if pattern == "" {
		return "unknown"
	}
	return pattern
}
