// Package telemetry exports shaking reports, alerts, blockade changes and
// route assignments from the event hub to InfluxDB as time series points.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/metrics"
	"github.com/dd0wney/echoaid/pkg/pubsub"
)

// ErrNotConfigured is returned when the forwarder has no target.
var ErrNotConfigured = errors.New("influx url, org and bucket are required")

// Options locate the InfluxDB bucket points are written to.
type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// Timeout bounds each write; zero means five seconds.
	Timeout time.Duration
}

// PointWriter is the slice of the InfluxDB blocking write API the
// forwarder needs.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Forwarder drains hub events into a PointWriter.
type Forwarder struct {
	hub     *pubsub.Hub
	writer  PointWriter
	logger  logging.Logger
	metrics *metrics.Registry
	timeout time.Duration
	close   func()

	mu     sync.Mutex
	status Status
}

// Status counts write outcomes since the forwarder started.
type Status struct {
	Written   uint64
	Failed    uint64
	LastError error
	LastWrite time.Time
}

// NewForwarder wraps an existing writer.
func NewForwarder(hub *pubsub.Hub, writer PointWriter, logger logging.Logger, reg *metrics.Registry) *Forwarder {
	return &Forwarder{
		hub:     hub,
		writer:  writer,
		logger:  logging.OrDefault(logger).With(logging.Component("telemetry")),
		metrics: reg,
		timeout: 5 * time.Second,
		close:   func() {},
	}
}

// Dial connects to InfluxDB, checks its health and returns a forwarder
// writing to opts.Bucket.
func Dial(ctx context.Context, opts Options, hub *pubsub.Hub, logger logging.Logger, reg *metrics.Registry) (*Forwarder, error) {
	if opts.URL == "" || opts.Org == "" || opts.Bucket == "" {
		return nil, ErrNotConfigured
	}

	client := influxdb2.NewClient(opts.URL, opts.Token)
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx health check: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("influx unhealthy: %s %s", health.Status, msg)
	}

	f := NewForwarder(hub, client.WriteAPIBlocking(opts.Org, opts.Bucket), logger, reg)
	if opts.Timeout > 0 {
		f.timeout = opts.Timeout
	}
	f.close = client.Close
	f.logger.Info("influx connected", logging.String("url", opts.URL), logging.String("bucket", opts.Bucket))
	return f, nil
}

// Run forwards events until ctx ends or the hub shuts down. Write errors
// are logged and counted; they never stop the loop.
func (f *Forwarder) Run(ctx context.Context) error {
	sub, err := f.hub.Subscribe(ctx, pubsub.TopicSensing, pubsub.TopicAlerts, pubsub.TopicBlockades, pubsub.TopicRoutes)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for ev := range sub.Events() {
		p, ok := Point(ev)
		if !ok {
			continue
		}
		f.write(ctx, p)
	}
	return ctx.Err()
}

// Status returns the write counters.
func (f *Forwarder) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Close releases the underlying client.
func (f *Forwarder) Close() { f.close() }

func (f *Forwarder) write(ctx context.Context, p *write.Point) {
	wctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	err := f.writer.WritePoint(wctx, p)
	if f.metrics != nil {
		f.metrics.RecordTelemetryWrite(p.Name(), err)
	}
	f.mu.Lock()
	if err != nil {
		f.status.Failed++
		f.status.LastError = err
	} else {
		f.status.Written++
		f.status.LastError = nil
		f.status.LastWrite = time.Now()
	}
	f.mu.Unlock()

	if err != nil {
		f.logger.Warn("influx write failed", logging.String("measurement", p.Name()), logging.Error(err))
	}
}

func measurementFor(eventType string) string {
	return strings.ReplaceAll(eventType, ".", "_")
}
