package api

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/dd0wney/echoaid/pkg/api/middleware"
	"github.com/dd0wney/echoaid/pkg/auth"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/graphql"
	"github.com/dd0wney/echoaid/pkg/health"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/metrics"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
	"github.com/dd0wney/echoaid/pkg/telemetry"
)

// Deps are the services the API exposes. Everything except Tokens,
// Telemetry and Logger is required.
type Deps struct {
	Graph       *building.Graph
	Grid        *cells.Grid
	Coordinator *routing.Coordinator
	Aggregator  *sensing.Aggregator
	Evacuation  *evacuation.Service
	Hub         *pubsub.Hub
	Metrics     *metrics.Registry
	Logger      logging.Logger

	// Tokens validates bearer tokens. Nil disables authentication.
	Tokens auth.TokenValidator
	// Telemetry is the optional Influx forwarder, reported by /health.
	Telemetry *telemetry.Forwarder
}

// Options tune the HTTP surface.
type Options struct {
	Version      string
	MaxBodyBytes int64
	// ReportRate and ReportBurst limit POST /api/shaking per device.
	// A rate of zero disables the limit.
	ReportRate  float64
	ReportBurst int
	// RequestRate and RequestBurst limit every request per client address.
	// A rate of zero disables the limit.
	RequestRate     float64
	RequestBurst    int
	TrustedProxies  []string
	CORS            *middleware.CORSConfig
	GraphQLMaxDepth int
}

// Server represents the HTTP API server
type Server struct {
	building    *building.Graph
	grid        *cells.Grid
	coordinator *routing.Coordinator
	aggregator  *sensing.Aggregator
	evacuation  *evacuation.Service
	hub         *pubsub.Hub
	tokens      auth.TokenValidator
	telemetry   *telemetry.Forwarder

	graphqlHandler  *graphql.GraphQLHandler
	metricsRegistry *metrics.Registry
	healthChecker   *health.HealthChecker
	logger          logging.Logger

	proxies       middleware.TrustedProxies
	clientLimiter *middleware.KeyedLimiter // nil when unlimited
	deviceLimiter *middleware.KeyedLimiter // nil when unlimited
	upgrader      websocket.Upgrader

	opts      Options
	startTime time.Time
}
