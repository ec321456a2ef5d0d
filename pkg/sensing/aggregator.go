// Package sensing confirms earthquakes from crowd-sourced shaking reports.
// A cell raises an alert only when enough distinct devices report strong
// shaking inside a short window, which filters out a single dropped phone.
package sensing

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/metrics"
)

// Aggregator owns the recent events, the alert list and the device registry.
type Aggregator struct {
	grid    *cells.Grid
	now     func() time.Time
	newID   func() string
	logger  logging.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	cfg     Config
	events  []Event // chronological by arrival
	alerts  []Alert
	devices map[string]time.Time
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now for registry and stats reads.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithMetrics records report and alert metrics.
func WithMetrics(m *metrics.Registry) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithConfig replaces DefaultConfig. Invalid configs are ignored.
func WithConfig(c Config) Option {
	return func(a *Aggregator) {
		if c.Validate() == nil {
			a.cfg = c
		}
	}
}

// WithIDGenerator replaces the uuid alert id source.
func WithIDGenerator(gen func() string) Option {
	return func(a *Aggregator) { a.newID = gen }
}

// NewAggregator creates an empty aggregator. grid validates cell ids;
// a nil grid accepts any non-empty cell id.
func NewAggregator(grid *cells.Grid, opts ...Option) *Aggregator {
	a := &Aggregator{
		grid:    grid,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  logging.NewNopLogger(),
		cfg:     DefaultConfig(),
		devices: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logging.Component("sensing"))
	return a
}

// ReportShaking records a report and evaluates its cell. A report without
// a location cell is rejected and leaves no trace. A zero timestamp means
// now; an empty device id becomes AnonymousDevice.
func (a *Aggregator) ReportShaking(ev Event) (Receipt, error) {
	if err := a.check(ev); err != nil {
		a.logger.Debug("shaking report rejected", logging.Device(ev.DeviceID), logging.Error(err))
		if a.metrics != nil {
			a.metrics.RecordShakingReport(false, 0)
		}
		return Receipt{}, err
	}
	if ev.DeviceID == "" {
		ev.DeviceID = AnonymousDevice
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = a.now()
	}
	ev.Features = cloneFeatures(ev.Features)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.devices[ev.DeviceID] = ev.Timestamp
	a.events = append(a.events, ev)
	a.events = keepAfter(a.events, ev.Timestamp.Add(-EventRetention), func(e Event) time.Time { return e.Timestamp })
	a.alerts = keepAfter(a.alerts, ev.Timestamp.Add(-AlertRetention), func(al Alert) time.Time { return al.Timestamp })

	receipt := Receipt{Event: ev}
	if alert, ok := a.evaluate(ev.LocationCell, ev.Timestamp); ok {
		a.alerts = append(a.alerts, alert)
		receipt.Alert = &alert
		a.logger.Warn("earthquake confirmed",
			logging.Cell(alert.CellID),
			logging.Int("devices", alert.DeviceCount),
			logging.Float64("confidence", alert.Confidence),
		)
		if a.metrics != nil {
			a.metrics.RecordAlert(alert.Confidence)
		}
	}

	if a.metrics != nil {
		a.metrics.RecordShakingReport(true, len(a.events))
		a.metrics.ActiveDevices.Set(float64(a.activeCount(a.now())))
	}
	return receipt, nil
}

func (a *Aggregator) check(ev Event) error {
	if ev.LocationCell == "" {
		return ErrMissingCell
	}
	if a.grid != nil {
		if _, err := a.grid.Parse(ev.LocationCell); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidCell, ev.LocationCell)
		}
	}
	if math.IsNaN(ev.Intensity) || math.IsInf(ev.Intensity, 0) || ev.Intensity < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidIntensity, ev.Intensity)
	}
	return nil
}

// evaluate applies the confirmation rule for cell at time now.
func (a *Aggregator) evaluate(cell string, now time.Time) (Alert, bool) {
	cutoff := now.Add(-a.cfg.Window)

	var (
		devices []string
		seen    = make(map[string]bool)
		sum     float64
		peak    float64
		count   int
	)
	for _, e := range a.events {
		if e.LocationCell != cell || !e.Timestamp.After(cutoff) || e.Intensity < a.cfg.MinIntensity {
			continue
		}
		count++
		sum += e.Intensity
		peak = math.Max(peak, e.Intensity)
		if !seen[e.DeviceID] {
			seen[e.DeviceID] = true
			devices = append(devices, e.DeviceID)
		}
	}
	if len(devices) < a.cfg.MinDevices {
		return Alert{}, false
	}

	for _, prev := range a.alerts {
		if prev.CellID == cell && now.Sub(prev.Timestamp) < a.cfg.Cooldown {
			return Alert{}, false
		}
	}

	avg := sum / float64(count)
	return Alert{
		ID:           a.newID(),
		Timestamp:    now,
		CellID:       cell,
		DeviceCount:  len(devices),
		Devices:      devices,
		AvgIntensity: avg,
		MaxIntensity: peak,
		Confidence:   Confidence(len(devices), a.cfg.MinDevices, avg),
		Status:       StatusAlert,
	}, true
}

// Confidence scores corroboration and strength on a 0..100 scale:
// device count relative to the threshold plus average intensity scaled by
// 30 per 10 m/s². It is a heuristic for ranking alerts, not a probability.
func Confidence(devices, minDevices int, avgIntensity float64) float64 {
	if minDevices < 1 {
		minDevices = 1
	}
	score := float64(devices)/float64(minDevices)*100 + avgIntensity/10*30
	return math.Min(100, score)
}

// keepAfter removes items not strictly after cutoff, preserving order.
func keepAfter[T any](items []T, cutoff time.Time, at func(T) time.Time) []T {
	return slices.DeleteFunc(items, func(item T) bool { return !at(item).After(cutoff) })
}

func cloneFeatures(f map[string]float64) map[string]float64 {
	if f == nil {
		return nil
	}
	out := make(map[string]float64, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// SetConfig merges patch over the current config. An invalid result is
// rejected and the current config is kept.
func (a *Aggregator) SetConfig(patch ConfigPatch) (Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := patch.Apply(a.cfg)
	if err := next.Validate(); err != nil {
		return a.cfg, err
	}
	a.cfg = next
	a.logger.Info("sensing config updated",
		logging.Int("min_devices", next.MinDevices),
		logging.Duration("window", next.Window),
		logging.Float64("min_intensity", next.MinIntensity),
		logging.Duration("cooldown", next.Cooldown),
	)
	return next, nil
}

// Config returns the current thresholds.
func (a *Aggregator) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Reset clears events, alerts and the device registry. Config is kept.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.events = nil
	a.alerts = nil
	a.devices = make(map[string]time.Time)
	a.logger.Info("sensing state reset")
}
