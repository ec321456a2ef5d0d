// Package api serves the EchoAid HTTP, GraphQL and websocket interfaces.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/echoaid/pkg/auth"
)

// routes registers every endpoint on a ServeMux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("GET /health", s.healthChecker.HTTPHandler())
	mux.HandleFunc("GET /health/ready", s.healthChecker.ReadinessHandler())
	mux.HandleFunc("GET /health/live", s.healthChecker.LivenessHandler())
	mux.Handle("GET /metrics", s.metricsHandler())

	// Building and cells
	mux.HandleFunc("GET /api/building", s.handleBuilding)
	mux.HandleFunc("GET /api/nodes", s.handleNodes)
	mux.HandleFunc("GET /api/directions", s.handleDirections)
	mux.HandleFunc("GET /api/chokepoints", s.handleChokePoints)
	mux.HandleFunc("GET /api/cells", s.handleCells)
	mux.HandleFunc("GET /api/cells/{id}", s.handleCell)

	// Blockades and routing
	mux.HandleFunc("GET /api/blockades", s.handleListBlockades)
	mux.HandleFunc("POST /api/blockades", s.requireRole(auth.RoleResponder, s.handleReportBlockade))
	mux.HandleFunc("DELETE /api/blockades", s.requireRole(auth.RoleResponder, s.handleClearBlockades))
	mux.HandleFunc("DELETE /api/blockades/{edge}", s.requireRole(auth.RoleResponder, s.handleClearBlockade))
	mux.HandleFunc("POST /api/routes", s.requireRole(auth.RoleDevice, s.handleRoute))
	mux.HandleFunc("POST /api/reroute", s.requireRole(auth.RoleOperator, s.handleReroute))
	mux.HandleFunc("GET /api/congestion", s.handleCongestion)
	mux.HandleFunc("GET /api/occupants", s.handleOccupants)
	mux.HandleFunc("PUT /api/occupants/{id}/location", s.requireRole(auth.RoleDevice, s.handleLocation))

	// Sensing
	mux.HandleFunc("POST /api/shaking", s.requireRole(auth.RoleDevice, s.handleShaking))
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/alerts/{cell}", s.handleCellAlert)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/sensing/stats", s.handleSensingStats)
	mux.HandleFunc("GET /api/sensing/config", s.handleSensingConfig)
	mux.HandleFunc("PATCH /api/sensing/config", s.requireRole(auth.RoleOperator, s.handleUpdateSensingConfig))
	mux.HandleFunc("POST /api/sensing/reset", s.requireRole(auth.RoleOperator, s.handleSensingReset))
	mux.HandleFunc("POST /api/sensing/simulate", s.requireRole(auth.RoleOperator, s.handleSimulate))

	// GraphQL read model and live stream
	mux.Handle("POST /graphql", s.graphqlHandler)
	mux.HandleFunc("GET /ws", s.handleStream)

	return mux
}

func (s *Server) metricsHandler() http.Handler {
	inner := promhttp.HandlerFor(s.metricsRegistry.GetPrometheusRegistry(), promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metricsRegistry.UpdateSystemMetrics()
		inner.ServeHTTP(w, r)
	})
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Version returns the version string reported by the server.
func (s *Server) Version() string {
	return s.opts.Version
}
