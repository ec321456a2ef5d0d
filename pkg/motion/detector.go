// Package motion turns raw accelerometer samples into shaking reports.
package motion

import (
	"context"
	"math"
	"time"

	"github.com/dd0wney/echoaid/pkg/sensing"
)

// Sample is one accelerometer reading in m/s².
type Sample struct {
	X, Y, Z float64
	At      time.Time
}

// Magnitude is the Euclidean norm of the acceleration vector.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// MotionSource streams samples until ctx ends or the source is exhausted,
// then closes the channel.
type MotionSource interface {
	Samples(ctx context.Context) (<-chan Sample, error)
}

// Sensitivity trades false alarms against missed shaking.
type Sensitivity int

const (
	VerySensitive Sensitivity = 1
	Normal        Sensitivity = 2
	LessSensitive Sensitivity = 3
)

// Thresholds are the per-sensitivity detection parameters.
type Thresholds struct {
	ShakeMagnitude     float64       `json:"shake_magnitude"`
	ConfirmationWindow time.Duration `json:"confirmation_window"`
}

var thresholds = map[Sensitivity]Thresholds{
	VerySensitive: {ShakeMagnitude: 2.0, ConfirmationWindow: 5 * time.Second},
	Normal:        {ShakeMagnitude: 3.0, ConfirmationWindow: 4 * time.Second},
	LessSensitive: {ShakeMagnitude: 4.5, ConfirmationWindow: 3 * time.Second},
}

// ThresholdsFor clamps s into 1..3 and returns its thresholds.
func ThresholdsFor(s Sensitivity) Thresholds {
	return thresholds[min(LessSensitive, max(VerySensitive, s))]
}

const (
	historySize  = 60
	recentSize   = 15
	reportPeriod = time.Second
)

// Feature keys attached to emitted events.
const (
	FeaturePeakAcceleration = "peak_acceleration"
	FeatureRecentAverage    = "recent_average"
	FeatureWindowSize       = "window_size"
)

// DetectorConfig identifies the device and where it is.
type DetectorConfig struct {
	DeviceID    string
	Sensitivity Sensitivity
	// Cell reports the device's current cell id; "" suppresses reports.
	Cell func() string
}

// Detector keeps a rolling history of magnitudes and emits at most one
// shaking event per second while the magnitude exceeds the threshold.
// It is not safe for concurrent use.
type Detector struct {
	cfg        DetectorConfig
	limits     Thresholds
	history    [historySize]float64
	seen       int
	lastReport time.Time
}

// NewDetector creates a detector.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Cell == nil {
		cfg.Cell = func() string { return "" }
	}
	return &Detector{cfg: cfg, limits: ThresholdsFor(cfg.Sensitivity)}
}

// Thresholds returns the active detection parameters.
func (d *Detector) Thresholds() Thresholds { return d.limits }

// Observe records s and returns an event when it counts as strong shaking.
func (d *Detector) Observe(s Sample) (sensing.Event, bool) {
	mag := s.Magnitude()
	d.history[d.seen%historySize] = mag
	d.seen++

	n := min(d.seen, recentSize)
	sum := 0.0
	for i := 1; i <= n; i++ {
		sum += d.history[(d.seen-i)%historySize]
	}
	avg := sum / float64(n)

	if mag <= d.limits.ShakeMagnitude {
		return sensing.Event{}, false
	}
	if !d.lastReport.IsZero() && s.At.Sub(d.lastReport) <= reportPeriod {
		return sensing.Event{}, false
	}
	cell := d.cfg.Cell()
	if cell == "" {
		return sensing.Event{}, false
	}

	d.lastReport = s.At
	return sensing.Event{
		Timestamp:    s.At,
		LocationCell: cell,
		Intensity:    mag,
		DeviceID:     d.cfg.DeviceID,
		Features: map[string]float64{
			FeaturePeakAcceleration: mag,
			FeatureRecentAverage:    avg,
			FeatureWindowSize:       float64(n),
		},
	}, true
}

// Run feeds every sample from src through the detector and hands events
// to emit. It returns when the source closes or ctx is cancelled.
func (d *Detector) Run(ctx context.Context, src MotionSource, emit func(sensing.Event)) error {
	samples, err := src.Samples(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-samples:
			if !ok {
				return nil
			}
			if ev, hit := d.Observe(s); hit {
				emit(ev)
			}
		}
	}
}
