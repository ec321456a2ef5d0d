package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestNewHealthChecker(t *testing.T) {
	hc := NewHealthChecker()

	if hc == nil {
		t.Fatal("NewHealthChecker returned nil")
	}
	if hc.checks == nil {
		t.Error("check map not initialized")
	}
}

func TestRegisterReadinessOnly(t *testing.T) {
	hc := NewHealthChecker()

	called := false
	hc.Register("ready-test", func() Check {
		called = true
		return Check{Status: StatusHealthy}
	}, ProbeReady)

	// Should not be called for regular Check()
	hc.Check()
	if called {
		t.Error("readiness check should not be called for Check()")
	}

	resp := hc.CheckReadiness()
	if !called {
		t.Error("readiness check was not called")
	}
	if _, exists := resp.Checks["ready-test"]; !exists {
		t.Error("readiness check result not in response")
	}
}

func TestRegisterDefaultsToFullAndReadiness(t *testing.T) {
	hc := NewHealthChecker()
	hc.Register("building", func() Check { return Check{Status: StatusHealthy} })

	if _, ok := hc.Check().Checks["building"]; !ok {
		t.Error("check missing from full report")
	}
	if _, ok := hc.CheckReadiness().Checks["building"]; !ok {
		t.Error("check missing from readiness")
	}
	if len(hc.CheckLiveness().Checks) != 0 {
		t.Error("Register should not add liveness checks")
	}

	hc.Register("building", func() Check { return Check{Status: StatusHealthy} }, ProbeLive)
	if _, ok := hc.Check().Checks["building"]; ok {
		t.Error("re-registering should replace the probe set")
	}
	if _, ok := hc.CheckLiveness().Checks["building"]; !ok {
		t.Error("check missing from liveness")
	}
}

func TestCheckStatusAggregation(t *testing.T) {
	tests := []struct {
		name           string
		checkStatuses  []Status
		expectedStatus Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unhealthy", []Status{StatusHealthy, StatusUnhealthy}, StatusUnhealthy},
		{"degraded and unhealthy", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
		{"no checks", nil, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()

			for i, status := range tt.checkStatuses {
				hc.Register(string(rune('a'+i)), func() Check {
					return Check{Status: status}
				}, ProbeReport)
			}

			resp := hc.Check()
			if resp.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, resp.Status)
			}
		})
	}
}

func TestCheckFillsNameAndTiming(t *testing.T) {
	hc := NewHealthChecker()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hc.started = base
	ticks := 0
	hc.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	hc.Register("hub", func() Check { return Check{Status: StatusHealthy} }, ProbeReport)

	resp := hc.Check()
	check := resp.Checks["hub"]
	if check.Name != "hub" {
		t.Errorf("expected name from registration, got %q", check.Name)
	}
	if check.Duration != time.Second {
		t.Errorf("expected 1s duration, got %v", check.Duration)
	}
	if resp.Uptime != time.Second {
		t.Errorf("expected 1s uptime, got %v", resp.Uptime)
	}
}

func TestBuildingCheck(t *testing.T) {
	tests := []struct {
		name                string
		nodes, edges, exits int
		expectedStatus      Status
		expectedMsg         string
	}{
		{"loaded", 40, 52, 3, StatusHealthy, "40 nodes, 3 exits"},
		{"no exits", 40, 52, 0, StatusUnhealthy, "Building has no exits"},
		{"empty", 0, 0, 0, StatusUnhealthy, "No building loaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := BuildingCheck(func() (string, int, int, int) {
				return "Science Hall", tt.nodes, tt.edges, tt.exits
			})()

			if check.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, check.Status)
			}
			if check.Message != tt.expectedMsg {
				t.Errorf("expected message %q, got %q", tt.expectedMsg, check.Message)
			}
			if check.Details["name"] != "Science Hall" {
				t.Errorf("expected building name in details, got %v", check.Details["name"])
			}
		})
	}
}

func TestSensingCheck(t *testing.T) {
	check := SensingCheck(func() (int, int, error) { return 12, 2, nil })()
	if check.Status != StatusHealthy {
		t.Errorf("active alerts should not degrade sensing, got %s", check.Status)
	}
	if check.Details["active_devices"] != 12 || check.Details["active_alerts"] != 2 {
		t.Errorf("unexpected details %v", check.Details)
	}

	check = SensingCheck(func() (int, int, error) { return 0, 0, errors.New("window must be positive") })()
	if check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy on config error, got %s", check.Status)
	}
}

func TestHubCheck(t *testing.T) {
	if check := HubCheck(func() (bool, int) { return false, 3 })(); check.Status != StatusHealthy {
		t.Errorf("open hub should be healthy, got %s", check.Status)
	}
	if check := HubCheck(func() (bool, int) { return true, 0 })(); check.Status != StatusUnhealthy {
		t.Errorf("closed hub should be unhealthy, got %s", check.Status)
	}
}

func TestEvacuationCheck(t *testing.T) {
	check := EvacuationCheck(func() (int, int, int) { return 10, 4, 6 })()
	if check.Status != StatusHealthy || check.Message != "4 evacuating" {
		t.Errorf("unexpected check %+v", check)
	}
}

func TestTelemetryCheck(t *testing.T) {
	tests := []struct {
		name           string
		enabled        bool
		lastErr        error
		expectedStatus Status
	}{
		{"disabled", false, nil, StatusHealthy},
		{"writing", true, nil, StatusHealthy},
		{"failing", true, errors.New("connection refused"), StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := TelemetryCheck(func() (bool, uint64, uint64, error) {
				return tt.enabled, 5, 1, tt.lastErr
			})()
			if check.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, check.Status)
			}
		})
	}
}

func TestMemoryCheck(t *testing.T) {
	tests := []struct {
		name           string
		alloc          uint64
		sys            uint64
		expectedStatus Status
	}{
		{"normal usage", 50, 100, StatusHealthy},
		{"boundary (90%)", 90, 100, StatusHealthy},
		{"high usage (91%)", 91, 100, StatusDegraded},
		{"no stats", 0, 0, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := MemoryCheck(func() (uint64, uint64) { return tt.alloc, tt.sys })()
			if check.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, check.Status)
			}
		})
	}

	if alloc, sys := RuntimeMemory(); alloc == 0 || sys == 0 {
		t.Errorf("RuntimeMemory() = %d, %d", alloc, sys)
	}
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name       string
		status     Status
		healthCode int
		binaryCode int
	}{
		{"healthy", StatusHealthy, http.StatusOK, http.StatusOK},
		{"degraded", StatusDegraded, http.StatusOK, http.StatusServiceUnavailable},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			check := func() Check { return Check{Status: tt.status} }
			hc.Register("c", check, ProbeReport, ProbeReady, ProbeLive)

			for _, h := range []struct {
				handler http.HandlerFunc
				want    int
			}{
				{hc.HTTPHandler(), tt.healthCode},
				{hc.ReadinessHandler(), tt.binaryCode},
				{hc.LivenessHandler(), tt.binaryCode},
			} {
				rec := httptest.NewRecorder()
				h.handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
				if rec.Code != h.want {
					t.Errorf("expected %d, got %d", h.want, rec.Code)
				}
				if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("expected JSON content type, got %q", ct)
				}
			}
		})
	}
}

func TestConcurrentCheckRegistration(t *testing.T) {
	hc := NewHealthChecker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			hc.Register(string(rune('a'+i)), func() Check { return Check{Status: StatusHealthy} })
		}(i)
		go func() {
			defer wg.Done()
			hc.Check()
		}()
	}
	wg.Wait()

	if n := len(hc.Check().Checks); n != 20 {
		t.Errorf("expected 20 checks, got %d", n)
	}
}

func TestResponseJSONSerialization(t *testing.T) {
	resp := Response{
		Status:    StatusDegraded,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Uptime:    90 * time.Second,
		Checks: map[string]Check{
			"telemetry": {Name: "telemetry", Status: StatusDegraded, Duration: 1500 * time.Microsecond},
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if decoded["status"] != "degraded" {
		t.Errorf("expected status degraded, got %v", decoded["status"])
	}
	if decoded["uptime_seconds"] != float64(90) {
		t.Errorf("expected uptime_seconds 90, got %v", decoded["uptime_seconds"])
	}
	checks := decoded["checks"].(map[string]any)
	tel := checks["telemetry"].(map[string]any)
	if tel["duration_ms"] != 1.5 {
		t.Errorf("expected duration_ms 1.5, got %v", tel["duration_ms"])
	}
	if _, ok := tel["Duration"]; ok {
		t.Error("raw Duration should not be serialized")
	}
}
