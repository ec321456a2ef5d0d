package sensing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMissingCell      = errors.New("shaking report has no location cell")
	ErrInvalidCell      = errors.New("shaking report has a malformed location cell")
	ErrInvalidIntensity = errors.New("intensity must be a finite non-negative number")
	ErrInvalidConfig    = errors.New("invalid sensing configuration")
)

const (
	// EventRetention bounds how long raw reports are kept.
	EventRetention = 10 * time.Second
	// AlertRetention bounds how long alerts are kept.
	AlertRetention = 60 * time.Second
	// DeviceActivity is how recently a device must have reported to count as active.
	DeviceActivity = 30 * time.Second
	// StatsWindow is the look-back used by Stats.
	StatsWindow = 60 * time.Second
	// DefaultRecentLimit caps RecentEvents when no limit is given.
	DefaultRecentLimit = 100
	// AnonymousDevice stands in for reports without a device id.
	AnonymousDevice = "anon"
)

// StatusAlert is the only alert status.
const StatusAlert = "ALERT"

// Event is one shaking report from one device.
type Event struct {
	Timestamp    time.Time          `json:"timestamp"`
	LocationCell string             `json:"location_cell"`
	Intensity    float64            `json:"intensity"`
	DeviceID     string             `json:"device_id"`
	Features     map[string]float64 `json:"features,omitempty"`
}

// Alert is a confirmed, corroborated earthquake detection for one cell.
type Alert struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	CellID       string    `json:"cell_id"`
	DeviceCount  int       `json:"device_count"`
	Devices      []string  `json:"devices"`
	AvgIntensity float64   `json:"avg_intensity"`
	MaxIntensity float64   `json:"max_intensity"`
	// Confidence is a 0..100 tuning heuristic, not a probability.
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

// Receipt is the outcome of an accepted report.
type Receipt struct {
	Event Event `json:"event"`
	// Alert is set only when this report raised a new alert.
	Alert *Alert `json:"alert,omitempty"`
}

// Device is a registry entry.
type Device struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
}

// CellStats summarises one cell over the stats window.
type CellStats struct {
	Count        int      `json:"count"`
	Devices      []string `json:"devices"`
	AvgIntensity float64  `json:"avg_intensity"`
	MaxIntensity float64  `json:"max_intensity"`
}

// Stats summarises recent sensing activity.
type Stats struct {
	TotalEvents   int                  `json:"total_events"`
	TotalAlerts   int                  `json:"total_alerts"`
	ActiveDevices int                  `json:"active_devices"`
	Cells         map[string]CellStats `json:"cells"`
}

// Config holds the confirmation thresholds.
type Config struct {
	// MinDevices distinct devices must corroborate within Window.
	MinDevices   int           `validate:"min=1"`
	Window       time.Duration `validate:"gt=0"`
	MinIntensity float64       `validate:"gte=0"`
	// Cooldown suppresses repeat alerts for the same cell.
	Cooldown time.Duration `validate:"gte=0"`
}

// DefaultConfig requires three devices within four seconds.
func DefaultConfig() Config {
	return Config{
		MinDevices:   3,
		Window:       4 * time.Second,
		MinIntensity: 2.0,
		Cooldown:     10 * time.Second,
	}
}

var configValidator = validator.New()

// Validate checks the thresholds.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	return nil
}

type configWire struct {
	MinDevices   int     `json:"n_devices"`
	WindowMs     int64   `json:"t_window_ms"`
	MinIntensity float64 `json:"min_intensity"`
	CooldownMs   int64   `json:"alert_cooldown_ms"`
}

// MarshalJSON writes durations as milliseconds.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configWire{
		MinDevices:   c.MinDevices,
		WindowMs:     c.Window.Milliseconds(),
		MinIntensity: c.MinIntensity,
		CooldownMs:   c.Cooldown.Milliseconds(),
	})
}

// ConfigPatch carries a partial update; nil fields keep their value.
type ConfigPatch struct {
	MinDevices   *int
	Window       *time.Duration
	MinIntensity *float64
	Cooldown     *time.Duration
}

// UnmarshalJSON reads the same millisecond field names Config writes.
func (p *ConfigPatch) UnmarshalJSON(data []byte) error {
	var wire struct {
		MinDevices   *int     `json:"n_devices"`
		WindowMs     *int64   `json:"t_window_ms"`
		MinIntensity *float64 `json:"min_intensity"`
		CooldownMs   *int64   `json:"alert_cooldown_ms"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*p = ConfigPatch{MinDevices: wire.MinDevices, MinIntensity: wire.MinIntensity}
	if wire.WindowMs != nil {
		d := time.Duration(*wire.WindowMs) * time.Millisecond
		p.Window = &d
	}
	if wire.CooldownMs != nil {
		d := time.Duration(*wire.CooldownMs) * time.Millisecond
		p.Cooldown = &d
	}
	return nil
}

// Apply returns c with the patch merged over it.
func (p ConfigPatch) Apply(c Config) Config {
	if p.MinDevices != nil {
		c.MinDevices = *p.MinDevices
	}
	if p.Window != nil {
		c.Window = *p.Window
	}
	if p.MinIntensity != nil {
		c.MinIntensity = *p.MinIntensity
	}
	if p.Cooldown != nil {
		c.Cooldown = *p.Cooldown
	}
	return c
}
