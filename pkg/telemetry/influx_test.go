package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/metrics"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type mockWriter struct {
	mu     sync.Mutex
	points []*write.Point
	err    error
}

func (m *mockWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, points...)
	return m.err
}

func (m *mockWriter) lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.points))
	for _, p := range m.points {
		out = append(out, write.PointToLineProtocol(p, time.Nanosecond))
	}
	return out
}

func TestPointConversion(t *testing.T) {
	tests := []struct {
		name   string
		event  pubsub.Event
		prefix string
		fields []string
	}{
		{
			name: "shaking",
			event: pubsub.Event{Data: sensing.Event{
				Timestamp: t0, LocationCell: "cell_1_1", DeviceID: "p1", Intensity: 3,
				Features: map[string]float64{"window_size": 60},
			}},
			prefix: "shaking,cell=cell_1_1,device_id=p1 ",
			fields: []string{"intensity=3", "window_size=60"},
		},
		{
			name: "alert",
			event: pubsub.Event{Data: sensing.Alert{
				Timestamp: t0, CellID: "cell_2_2", DeviceCount: 3, AvgIntensity: 4, MaxIntensity: 5, Confidence: 100,
			}},
			prefix: "alert,cell=cell_2_2 ",
			fields: []string{"device_count=3i", "confidence=100"},
		},
		{
			name: "blockade",
			event: pubsub.Event{Time: t0, Data: evacuation.BlockadeChange{
				Action: evacuation.EventBlockadeAdded, Edge: "M-A",
				Blockades: []routing.Blockade{{}}, Rerouted: []string{"u1", "u2"},
			}},
			prefix: "blockades,action=blockade_added,edge=M-A ",
			fields: []string{"active=1i", "rerouted=2i"},
		},
		{
			name: "route",
			event: pubsub.Event{Time: t0, Data: evacuation.Assignment{
				Mode:  routing.ModeGlobal,
				Route: routing.Route{Path: building.Path{"S", "A"}, Exit: "A", Distance: 120},
			}},
			prefix: "route,exit=A,mode=global ",
			fields: []string{"distance=120", "waypoints=2i"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Point(tt.event)
			require.True(t, ok)
			line := write.PointToLineProtocol(p, time.Nanosecond)
			assert.True(t, strings.HasPrefix(line, tt.prefix), line)
			for _, f := range tt.fields {
				assert.Contains(t, line, f)
			}
		})
	}
}

func TestPointSkipsUnknownData(t *testing.T) {
	_, ok := Point(pubsub.Event{Data: "hello"})
	assert.False(t, ok)

	_, ok = Point(pubsub.Event{Data: evacuation.Assignment{}})
	assert.False(t, ok, "missing route has no series")
}

func TestForwarderWritesHubEvents(t *testing.T) {
	hub := pubsub.NewHub()
	defer hub.Shutdown()
	reg := metrics.NewRegistry()
	w := &mockWriter{}
	f := NewForwarder(hub, w, nil, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return hub.SubscriberCount(pubsub.TopicAlerts) == 1 }, time.Second, time.Millisecond)

	hub.Publish(pubsub.TopicAlerts, evacuation.EventAlertRaised, sensing.Alert{Timestamp: t0, CellID: "cell_0_0", DeviceCount: 3})
	hub.Publish(pubsub.TopicEvacuation, "announcement", evacuation.Announcement{Text: "ignored"})

	require.Eventually(t, func() bool { return len(w.lines()) == 1 }, time.Second, time.Millisecond)
	assert.True(t, strings.HasPrefix(w.lines()[0], "alert,cell=cell_0_0"))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.TelemetryWritesTotal.WithLabelValues("alert", "ok")))

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestForwarderCountsWriteErrors(t *testing.T) {
	hub := pubsub.NewHub()
	reg := metrics.NewRegistry()
	w := &mockWriter{err: errors.New("bucket not found")}
	f := NewForwarder(hub, w, nil, reg)

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()
	require.Eventually(t, func() bool { return hub.SubscriberCount(pubsub.TopicSensing) == 1 }, time.Second, time.Millisecond)

	hub.Publish(pubsub.TopicSensing, evacuation.EventShakingReported, sensing.Event{Timestamp: t0, LocationCell: "cell_0_0", DeviceID: "p1", Intensity: 2})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(reg.TelemetryWritesTotal.WithLabelValues("shaking", "error")) == 1
	}, time.Second, time.Millisecond)

	hub.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after hub shutdown")
	}

	st := f.Status()
	assert.Equal(t, uint64(1), st.Failed)
	assert.Zero(t, st.Written)
	assert.EqualError(t, st.LastError, "bucket not found")
}

func TestDialRequiresTarget(t *testing.T) {
	_, err := Dial(context.Background(), Options{URL: "http://localhost:8086"}, pubsub.NewHub(), nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
