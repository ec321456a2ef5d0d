package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/echoaid/pkg/auth"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/validation"
)

// Floor plan:
//
//	R ── H ──── X1 exit
//	     │
//	     X2 exit
const wingYAML = `name: Test Wing
nodes:
  - {id: R, x: 0, y: 0, label: "Room 1", feature: ROOM}
  - {id: H, x: 100, y: 0, label: "Hall"}
  - {id: X1, x: 300, y: 0, label: "Main Exit", feature: EXIT}
  - {id: X2, x: 100, y: 150, label: "Courtyard Exit", feature: EXIT}
edges:
  - [R, H]
  - [H, X1]
  - [H, X2]
`

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", writeDataset(t, wingYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "Building: Test Wing")
	assert.Contains(t, out, "nodes: 4, edges: 3, rooms: 1")
	assert.Contains(t, out, "exits: X1, X2")
	assert.Contains(t, out, "every node reaches an exit")
	assert.Contains(t, out, "    H-R          100% of rooms, only way out\n")
	assert.Contains(t, out, "    H-X2         100% of rooms\n")

	out, err = execute(t, "validate", "--choke-points", "0", writeDataset(t, wingYAML))
	require.NoError(t, err)
	assert.NotContains(t, out, "choke points")
}

func TestValidateStrictRejectsStrandedNodes(t *testing.T) {
	path := writeDataset(t, wingYAML+"  - [Z, Z2]\n")
	_, err := execute(t, "validate", path)
	require.Error(t, err, "edge to an unknown node")

	stranded := strings.Replace(wingYAML, "edges:", "  - {id: Z, x: 500, y: 500}\nedges:", 1)
	path = writeDataset(t, stranded)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "WARNING: no exit reachable from Z")

	_, err = execute(t, "validate", "--strict", path)
	assert.ErrorContains(t, err, "1 nodes cannot reach an exit")
}

func TestRoute(t *testing.T) {
	path := writeDataset(t, wingYAML)

	out, err := execute(t, "route", "-b", path, "--from", "R")
	require.NoError(t, err)
	assert.Contains(t, out, "Route from R to Courtyard Exit (global mode)")
	assert.Contains(t, out, "distance: 250.0")

	out, err = execute(t, "route", "-b", path, "--from", "R", "--block", "H-X2", "--mode", "local", "--json")
	require.NoError(t, err)
	var got routeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, building.NodeID("X1"), got.Route.Exit)
	assert.Equal(t, building.Path{"R", "H", "X1"}, got.Route.Path)
	assert.Len(t, got.Directions, 3)
	assert.Zero(t, got.Route.Penalty)
}

func TestRouteErrors(t *testing.T) {
	path := writeDataset(t, wingYAML)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing from", []string{"route", "-b", path}, `"from" not set`},
		{"bad mode", []string{"route", "-b", path, "--from", "R", "--mode", "fastest"}, "mode must be"},
		{"unknown node", []string{"route", "-b", path, "--from", "Q"}, "not part of the building"},
		{"unknown edge", []string{"route", "-b", path, "--from", "R", "--block", "R-X1"}, "block R-X1"},
		{"cut off", []string{"route", "-b", path, "--from", "R", "--block", "R-H"}, "no exit is reachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestCells(t *testing.T) {
	out, err := execute(t, "cells")
	require.NoError(t, err)
	assert.Contains(t, out, "Grid: 20 x 14 cells of 60 units (280 total)")

	out, err = execute(t, "cells", "cell_1_1")
	require.NoError(t, err)
	assert.Contains(t, out, "bounds: (60, 60) - (120, 120)")
	assert.Contains(t, out, "center: (90, 90)")
	assert.Contains(t, out, "neighbors: cell_1_0, cell_1_2, cell_2_1, cell_0_1, cell_2_0, cell_0_0, cell_2_2, cell_0_2")

	out, err = execute(t, "cells", "cell_1_1", "--direction", "north")
	require.NoError(t, err)
	assert.Contains(t, out, "neighbors: cell_1_0\n")

	_, err = execute(t, "cells", "room_1")
	assert.Error(t, err)
	_, err = execute(t, "cells", "cell_1_1", "--direction", "up")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	const secret = "cli-test-secret-that-is-at-least-32-chars"

	out, err := execute(t, "token", "--subject", "phone_17", "--role", "responder", "--secret", secret)
	require.NoError(t, err)

	tm, err := auth.NewTokenManager(secret, "echoaid", time.Hour)
	require.NoError(t, err)
	claims, err := tm.ValidateToken(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "phone_17", claims.Subject)
	assert.Equal(t, auth.RoleResponder, claims.Role)
}

func TestTokenErrors(t *testing.T) {
	t.Setenv(secretEnv, "")
	_, err := execute(t, "token", "--subject", "phone_17")
	assert.ErrorContains(t, err, secretEnv)

	t.Setenv(secretEnv, "cli-test-secret-that-is-at-least-32-chars")
	_, err = execute(t, "token", "--subject", "phone_17", "--role", "admin")
	assert.ErrorIs(t, err, auth.ErrInvalidRole)
}

func TestDetectDrill(t *testing.T) {
	opts := drillOptions{cell: "cell_10_6", devices: 3, sensitivity: 2, peak: 6, duration: 3 * time.Second, seed: 7}
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	events, err := detectDrill(context.Background(), opts, start)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	devices := map[string]bool{}
	for i, ev := range events {
		devices[ev.DeviceID] = true
		assert.Equal(t, "cell_10_6", ev.LocationCell)
		assert.Greater(t, ev.Intensity, 3.0)
		if i > 0 {
			assert.False(t, ev.Timestamp.Before(events[i-1].Timestamp), "events are time ordered")
		}
	}
	assert.Len(t, devices, 3)
}

func TestSimulateLocal(t *testing.T) {
	out, err := execute(t, "simulate", "--cell", "cell_10_6", "--devices", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "from 4 devices in cell_10_6")
	assert.Contains(t, out, "ALERT cell_10_6")

	out, err = execute(t, "simulate", "--cell", "cell_10_6", "--devices", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "no alert raised")

	_, err = execute(t, "simulate", "--cell", "lobby")
	assert.Error(t, err)
}

func TestSimulateRemote(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/shaking", r.URL.Path)
		assert.Equal(t, "Bearer drill-token", r.Header.Get("Authorization"))

		var req validation.ShakingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cell_3_4", req.LocationCell)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if calls.Add(1) == 3 {
			_, _ = w.Write([]byte(`{"event":{},"alert":{"cell_id":"cell_3_4","device_count":3,"confidence":72},"evacuated":["u1","u2"]}`))
			return
		}
		_, _ = w.Write([]byte(`{"event":{}}`))
	}))
	defer srv.Close()

	out, err := execute(t, "simulate", "--cell", "cell_3_4", "--devices", "3", "--server", srv.URL+"/", "--token", "drill-token")
	require.NoError(t, err)
	assert.Contains(t, out, "ALERT cell_3_4: 3 devices, confidence 72, 2 occupants evacuated")
	assert.GreaterOrEqual(t, int(calls.Load()), 3)
}

func TestSimulateRemoteRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"missing bearer token","code":401}`))
	}))
	defer srv.Close()

	_, err := execute(t, "simulate", "--cell", "cell_3_4", "--server", srv.URL)
	assert.ErrorContains(t, err, "missing bearer token")
}
