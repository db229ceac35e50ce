// Package requestmetrics wraps HTTP handlers with the observability/metrics
// HTTP-request instrumentation, normalizing paths first to keep label
// cardinality bounded.
package requestmetrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"companionradar/internal/handler/http/pathutil"
	"companionradar/internal/handler/http/responsewriter"
	"companionradar/internal/observability/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	totalRequests atomic.Uint64
	errorRequests atomic.Uint64
)

// Middleware records request count, duration, and size via
// metrics.RecordHTTPRequest, and tracks in-flight requests on the shared
// ActiveConnections gauge.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.ActiveConnections.Inc()
		defer metrics.ActiveConnections.Dec()

		wrapped := responsewriter.Wrap(w)
		path := pathutil.NormalizePath(r.URL.Path)

		start := time.Now()
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		status := wrapped.StatusCode()
		totalRequests.Add(1)
		if status >= 500 {
			errorRequests.Add(1)
		}

		metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), duration, int(r.ContentLength), wrapped.BytesWritten())
	})
}

// Snapshot returns the cumulative request and 5xx-error counts tracked
// since process start, for periodic SLO ratio calculation.
func Snapshot() (total, errors uint64) {
	return totalRequests.Load(), errorRequests.Load()
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
