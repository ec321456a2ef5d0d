package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dd0wney/echoaid/pkg/api/middleware"
	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/graphql"
	"github.com/dd0wney/echoaid/pkg/health"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/pubsub"
)

// NewServer wires the API over deps.
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Graph == nil || deps.Grid == nil || deps.Coordinator == nil ||
		deps.Aggregator == nil || deps.Evacuation == nil || deps.Hub == nil || deps.Metrics == nil {
		return nil, errors.New("api: graph, grid, coordinator, aggregator, evacuation, hub and metrics are required")
	}
	if opts.GraphQLMaxDepth <= 0 {
		opts.GraphQLMaxDepth = graphql.DefaultMaxDepth
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	proxies, err := middleware.ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	logger := logging.OrDefault(deps.Logger).With(logging.Component("api"))

	schema, err := graphql.GenerateSchema(graphql.Source{
		Graph:       deps.Graph,
		Grid:        deps.Grid,
		Coordinator: deps.Coordinator,
		Aggregator:  deps.Aggregator,
		Evacuation:  deps.Evacuation,
	})
	if err != nil {
		return nil, fmt.Errorf("api: graphql schema: %w", err)
	}

	s := &Server{
		building:        deps.Graph,
		grid:            deps.Grid,
		coordinator:     deps.Coordinator,
		aggregator:      deps.Aggregator,
		evacuation:      deps.Evacuation,
		hub:             deps.Hub,
		tokens:          deps.Tokens,
		telemetry:       deps.Telemetry,
		graphqlHandler:  graphql.NewGraphQLHandler(schema, opts.GraphQLMaxDepth, logger),
		metricsRegistry: deps.Metrics,
		healthChecker:   health.NewHealthChecker(),
		logger:          logger,
		proxies:         proxies,
		opts:            opts,
		startTime:       time.Now(),
	}
	if opts.RequestRate > 0 {
		s.clientLimiter = middleware.NewKeyedLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: opts.RequestRate,
			BurstSize:         opts.RequestBurst,
		})
	}
	if opts.ReportRate > 0 {
		s.deviceLimiter = middleware.NewKeyedLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: opts.ReportRate,
			BurstSize:         opts.ReportBurst,
		})
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.registerHealthChecks()
	return s, nil
}

// registerHealthChecks wires component checks. Building and hub gate
// readiness; the rest only shape the full report.
func (s *Server) registerHealthChecks() {
	s.healthChecker.Register("building", health.BuildingCheck(func() (string, int, int, int) {
		return s.building.Name(), s.building.NodeCount(), s.building.EdgeCount(), len(s.building.Exits())
	}))
	s.healthChecker.Register("hub", health.HubCheck(func() (bool, int) {
		return s.hub.Closed(), s.hub.SubscriberCount(pubsub.TopicAlerts)
	}))
	s.healthChecker.Register("sensing", health.SensingCheck(func() (int, int, error) {
		stats := s.aggregator.Stats()
		return stats.ActiveDevices, stats.TotalAlerts, s.aggregator.Config().Validate()
	}), health.ProbeReport)
	s.healthChecker.Register("evacuation", health.EvacuationCheck(func() (standby, evacuating, safe int) {
		for _, st := range s.evacuation.Statuses() {
			switch st.Status {
			case evacuation.StatusStandby:
				standby++
			case evacuation.StatusEvacuating:
				evacuating++
			case evacuation.StatusSafe:
				safe++
			}
		}
		return standby, evacuating, safe
	}), health.ProbeReport)
	s.healthChecker.Register("telemetry", health.TelemetryCheck(func() (bool, uint64, uint64, error) {
		if s.telemetry == nil {
			return false, 0, 0, nil
		}
		st := s.telemetry.Status()
		return true, st.Written, st.Failed, st.LastError
	}), health.ProbeReport)
	s.healthChecker.Register("memory", health.MemoryCheck(health.RuntimeMemory), health.ProbeLive)
}

// checkOrigin accepts websocket upgrades from the same host or from an
// origin CORS allows.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if s.opts.CORS == nil {
		return false
	}
	return slices.Contains(s.opts.CORS.AllowedOrigins, "*") || slices.Contains(s.opts.CORS.AllowedOrigins, origin)
}

// Handler returns the routed API wrapped in the middleware chain,
// outermost first: panic recovery, request id, access log, security
// headers, CORS, body limit, per-client rate limit and metrics.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.routes()
	h = middleware.Metrics(s.metricsRegistry)(h)
	if s.clientLimiter != nil {
		h = middleware.RateLimit(s.clientLimiter, s.proxies.ClientIP, nil)(h)
	}
	h = middleware.BodySizeLimit(s.opts.MaxBodyBytes)(h)
	h = middleware.CORS(s.opts.CORS)(h)
	h = middleware.SecurityHeaders()(h)
	h = middleware.Logging(s.logger)(h)
	h = middleware.RequestID()(h)
	h = middleware.PanicRecovery(s.logger)(h)
	return h
}

// Health exposes the checker so callers can add checks.
func (s *Server) Health() *health.HealthChecker {
	return s.healthChecker
}

// PruneLimiters forgets idle rate limit keys. The server binary calls it
// periodically.
func (s *Server) PruneLimiters() {
	for _, l := range []*middleware.KeyedLimiter{s.clientLimiter, s.deviceLimiter} {
		if l != nil {
			l.Prune()
		}
	}
}
