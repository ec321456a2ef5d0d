package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dd0wney/echoaid/pkg/api"
	"github.com/dd0wney/echoaid/pkg/api/middleware"
	"github.com/dd0wney/echoaid/pkg/auth"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/config"
	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/metrics"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
	"github.com/dd0wney/echoaid/pkg/telemetry"
)

var version = "dev"

const limiterPruneInterval = time.Minute

func main() {
	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env", ".env", "dotenv file (ignored when missing)")
	port := flag.Int("port", 0, "HTTP port, overrides http.addr (or set PORT)")
	source := flag.String("building", "", "building dataset path or s3://bucket/key, overrides building.source")
	flag.Parse()

	// Structured lifecycle logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}
	if *port != 0 {
		cfg.HTTP.Addr = ":" + strconv.Itoa(*port)
	}
	if *source != "" {
		cfg.Building.Source = *source
	}

	logger.Info("EchoAid server starting", "version", version, "building", cfg.Building.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(ctx context.Context, cfg *config.Config, lifecycle *slog.Logger) error {
	logger := logging.NewDefaultLogger()
	logger.SetLevel(cfg.LogLevel())

	g, err := loadBuilding(ctx, cfg)
	if err != nil {
		return err
	}
	lifecycle.Info("building loaded",
		"name", g.Name(),
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"exits", len(g.Exits()),
	)

	grid, err := cfg.Grid()
	if err != nil {
		return fmt.Errorf("cell grid: %w", err)
	}

	reg := metrics.DefaultRegistry()
	reg.SetBuilding(g.NodeCount(), g.EdgeCount())
	hub := pubsub.NewHub(pubsub.WithMetrics(reg))
	coord := routing.NewCoordinator(g, routing.Config{
		CongestionWeight: cfg.Routing.CongestionWeight,
		Logger:           logger,
		Metrics:          reg,
	})
	agg := sensing.NewAggregator(grid,
		sensing.WithConfig(cfg.SensingConfig()),
		sensing.WithLogger(logger),
		sensing.WithMetrics(reg),
	)
	svc := evacuation.NewService(evacuation.Deps{
		Graph:       g,
		Grid:        grid,
		Coordinator: coord,
		Aggregator:  agg,
		Hub:         hub,
		Announcer:   evacuation.NewLogAnnouncer(logger),
		Logger:      logger,
		Metrics:     reg,
	}, evacuation.Config{
		StepInterval: cfg.Evacuation.StepInterval,
		AutoMode:     routing.Mode(cfg.Evacuation.AutoMode),
	})

	var forwarder *telemetry.Forwarder
	if cfg.Influx.Enabled {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		forwarder, err = telemetry.Dial(dialCtx, cfg.InfluxOptions(), hub, logger, reg)
		cancel()
		if err != nil {
			// Evacuation must not depend on the time series store.
			lifecycle.Warn("telemetry disabled", "error", err)
			forwarder = nil
		} else {
			go func() {
				if err := forwarder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					lifecycle.Warn("telemetry stopped", "error", err)
				}
			}()
		}
	}

	if n := cfg.Routing.SeedOccupants; n > 0 {
		seeded := coord.Seed(n)
		lifecycle.Info("simulated evacuees seeded", "requested", n, "routed", len(seeded))
	}

	var tokens auth.TokenValidator
	if cfg.Auth.Enabled {
		tm, err := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("token manager: %w", err)
		}
		tokens = tm
		lifecycle.Info("bearer authentication enabled", "issuer", cfg.Auth.Issuer)
	} else {
		lifecycle.Warn("authentication disabled, mutating endpoints are open")
	}

	var cors *middleware.CORSConfig
	if len(cfg.CORS.AllowedOrigins) > 0 {
		cors = middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.CORS.AllowedOrigins
		cors.AllowCredentials = cfg.CORS.AllowCredentials
	}

	server, err := api.NewServer(api.Deps{
		Graph:       g,
		Grid:        grid,
		Coordinator: coord,
		Aggregator:  agg,
		Evacuation:  svc,
		Hub:         hub,
		Metrics:     reg,
		Logger:      logger,
		Tokens:      tokens,
		Telemetry:   forwarder,
	}, api.Options{
		Version:         version,
		MaxBodyBytes:    int64(cfg.HTTP.MaxBodyBytes),
		ReportRate:      cfg.HTTP.ReportRate,
		ReportBurst:     cfg.HTTP.ReportBurst,
		RequestRate:     cfg.HTTP.RequestRate,
		RequestBurst:    cfg.HTTP.RequestBurst,
		TrustedProxies:  cfg.HTTP.TrustedProxies,
		CORS:            cors,
		GraphQLMaxDepth: cfg.HTTP.GraphQLMaxDepth,
	})
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		// Websocket streams manage their own write deadlines.
		WriteTimeout: 0,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		ticker := time.NewTicker(limiterPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				server.PruneLimiters()
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		lifecycle.Info("server starting", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			shutdownServices(svc, hub, forwarder)
			return err
		}
	case <-ctx.Done():
	}

	lifecycle.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// Closing the hub first ends websocket streams, which Shutdown does
	// not wait for since they are hijacked connections.
	hub.Shutdown()
	err = httpServer.Shutdown(shutdownCtx)
	shutdownServices(svc, hub, forwarder)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadBuilding(ctx context.Context, cfg *config.Config) (*building.Graph, error) {
	loader := &building.Loader{}
	if strings.HasPrefix(cfg.Building.Source, "s3://") {
		fetcher, err := building.NewS3Fetcher(ctx, cfg.S3Options())
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		loader.Fetcher = fetcher
	}
	g, err := loader.Load(ctx, cfg.Building.Source)
	if err != nil {
		return nil, fmt.Errorf("load building: %w", err)
	}
	return g, nil
}

func shutdownServices(svc *evacuation.Service, hub *pubsub.Hub, forwarder *telemetry.Forwarder) {
	svc.Close()
	hub.Shutdown()
	if forwarder != nil {
		forwarder.Close()
	}
}
