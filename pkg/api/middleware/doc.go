// Package middleware provides the HTTP middleware chain of the EchoAid API.
//
// One file per concern:
//
//   - recovery.go: panic recovery
//   - logging.go: structured request logging
//   - cors.go: cross-origin requests (rs/cors)
//   - security_headers.go: response hardening headers
//   - body_limit.go: request body size limiting
//   - request_id.go: request id generation and propagation
//   - ratelimit.go: per-key token buckets (x/time/rate)
//   - trusted_proxy.go: client address resolution behind proxies
//   - metrics.go: Prometheus request metrics
//
// All middleware follows the standard pattern: func(http.Handler) http.Handler
//
//	handler := middleware.Metrics(reg)(mux)
//	handler = middleware.Logging(logger)(handler)
//	handler = middleware.RequestID()(handler)
//	handler = middleware.PanicRecovery(logger)(handler)
package middleware
