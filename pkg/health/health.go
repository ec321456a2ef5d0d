// Package health aggregates component checks into the /health,
// /health/ready and /health/live responses.
package health

import (
	"time"
)

// Probe selects which responses a check contributes to.
type Probe uint8

const (
	// ProbeReport adds the check to the full /health report.
	ProbeReport Probe = 1 << iota
	// ProbeReady gates /health/ready.
	ProbeReady
	// ProbeLive gates /health/live.
	ProbeLive
)

type registration struct {
	check  CheckFunc
	probes Probe
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]registration),
		started: time.Now(),
		now:     time.Now,
	}
}

// Register adds or replaces a named check. With no probes the check joins
// the full report and readiness.
func (hc *HealthChecker) Register(name string, check CheckFunc, probes ...Probe) {
	var mask Probe
	for _, p := range probes {
		mask |= p
	}
	if mask == 0 {
		mask = ProbeReport | ProbeReady
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = registration{check: check, probes: mask}
}

// Check runs every check registered for the full report.
func (hc *HealthChecker) Check() Response { return hc.run(ProbeReport) }

// CheckReadiness runs the readiness checks.
func (hc *HealthChecker) CheckReadiness() Response { return hc.run(ProbeReady) }

// CheckLiveness runs the liveness checks.
func (hc *HealthChecker) CheckLiveness() Response { return hc.run(ProbeLive) }

func (hc *HealthChecker) run(probe Probe) Response {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	now := hc.now()
	resp := Response{
		Status:    StatusHealthy,
		Timestamp: now,
		Checks:    make(map[string]Check),
		Uptime:    now.Sub(hc.started),
	}
	for name, reg := range hc.checks {
		if reg.probes&probe == 0 {
			continue
		}
		began := hc.now()
		c := reg.check()
		c.Duration = hc.now().Sub(began)
		c.LastChecked = began
		if c.Name == "" {
			c.Name = name
		}
		resp.Checks[name] = c
		resp.Status = worse(resp.Status, c.Status)
	}
	return resp
}

func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusUnhealthy:
			return 2
		case StatusDegraded:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
