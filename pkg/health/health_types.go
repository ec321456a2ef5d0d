package health

import (
	"encoding/json"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check for a specific component
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"-"`
}

// MarshalJSON reports Duration in milliseconds.
func (c Check) MarshalJSON() ([]byte, error) {
	type plain Check
	return json.Marshal(struct {
		plain
		DurationMS float64 `json:"duration_ms"`
	}{plain(c), float64(c.Duration) / float64(time.Millisecond)})
}

// CheckFunc is a function that performs a health check
type CheckFunc func() Check

// HealthChecker runs named checks on demand. Safe for concurrent use.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]registration
	started time.Time
	now     func() time.Time
}

// Response represents the overall health response
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"-"`
}

// MarshalJSON reports Uptime in whole seconds.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	return json.Marshal(struct {
		plain
		UptimeSeconds int64 `json:"uptime_seconds"`
	}{plain(r), int64(r.Uptime / time.Second)})
}
