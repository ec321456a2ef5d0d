package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/dd0wney/echoaid/pkg/metrics"
)

// unmatchedPath labels requests no route matched, keeping label
// cardinality bounded.
const unmatchedPath = "unmatched"

// routeLabel returns the matched ServeMux pattern without its method.
func routeLabel(r *http.Request) string {
	pattern := r.Pattern
	if pattern == "" {
		return unmatchedPath
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

// Metrics creates middleware that tracks HTTP request metrics. It must wrap
// the ServeMux directly: the matched pattern is read back from the request
// the mux received.
func Metrics(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reg == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reg.HTTPRequestsInFlight.Inc()
			defer reg.HTTPRequestsInFlight.Dec()

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			reg.RecordHTTPRequest(r.Method, routeLabel(r), rec.statusCode, time.Since(start), rec.bytesWritten)
		})
	}
}
