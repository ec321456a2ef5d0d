package evacuation

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/metrics"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu  sync.Mutex
	got []Announcement
}

func (r *recorder) Announce(_ context.Context, a Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return nil
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, a := range r.got {
		out = append(out, a.Text)
	}
	return out
}

// Floor plan, one grid cell is 60 units:
//
//	R ── S(130,130) ── M ── A exit
//	     │
//	     D1 ── D2 ── B exit ── F(1000,700)
type fixture struct {
	svc   *Service
	coord *routing.Coordinator
	hub   *pubsub.Hub
	ann   *recorder
	reg   *metrics.Registry
}

func newFixture(t *testing.T, step time.Duration) *fixture {
	t.Helper()
	g, err := building.New(building.Dataset{
		Name: "evacuation",
		Nodes: []building.NodeSpec{
			{ID: "R", X: 70, Y: 130, Label: "Room 101", Feature: "ROOM"},
			{ID: "S", X: 130, Y: 130},
			{ID: "M", X: 230, Y: 130},
			{ID: "A", X: 330, Y: 130, Label: "Exit A", Feature: "EXIT"},
			{ID: "D1", X: 130, Y: 230},
			{ID: "D2", X: 230, Y: 230},
			{ID: "B", X: 330, Y: 230, Label: "Exit B", Feature: "EXIT"},
			{ID: "F", X: 1000, Y: 700},
		},
		Edges: [][]string{{"R", "S"}, {"S", "M"}, {"M", "A"}, {"S", "D1"}, {"D1", "D2"}, {"D2", "B"}, {"B", "F"}},
	})
	require.NoError(t, err)

	clock := func() time.Time { return t0 }
	reg := metrics.NewRegistry()
	hub := pubsub.NewHub(pubsub.WithClock(clock))
	coord := routing.NewCoordinator(g, routing.Config{Clock: clock, Metrics: reg})
	agg := sensing.NewAggregator(cells.DefaultGrid(), sensing.WithClock(clock))
	ann := &recorder{}

	svc := NewService(Deps{
		Graph:       g,
		Grid:        cells.DefaultGrid(),
		Coordinator: coord,
		Aggregator:  agg,
		Hub:         hub,
		Announcer:   ann,
		Metrics:     reg,
	}, Config{StepInterval: step, Clock: clock, Rand: rand.New(rand.NewSource(7))})

	t.Cleanup(func() {
		svc.Close()
		hub.Shutdown()
	})
	return &fixture{svc: svc, coord: coord, hub: hub, ann: ann, reg: reg}
}

// stepOnce advances the tracker for id by hand.
func (f *fixture) stepOnce(id string) bool {
	f.svc.mu.Lock()
	gen := f.svc.occupants[id].gen
	f.svc.mu.Unlock()
	return f.svc.step(context.Background(), id, gen)
}

func status(t *testing.T, s *Service, id string) OccupantStatus {
	t.Helper()
	st, err := s.Status(id)
	require.NoError(t, err)
	return st
}

func TestEvacuateWalksOccupantToExit(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	ctx := context.Background()

	a, err := f.svc.Evacuate(ctx, "u1", "S", routing.ModeGlobal)
	require.NoError(t, err)
	assert.Equal(t, building.NodeID("A"), a.Route.Exit)
	assert.Equal(t, "Exit A", a.ExitLabel)
	assert.Equal(t, building.Path{"S", "M", "A"}, a.Route.Path)
	assert.Len(t, a.Directions, 3)

	require.Eventually(t, func() bool {
		return len(f.ann.texts()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusSafe, status(t, f.svc, "u1").Status)

	assert.Equal(t, []string{
		"Route calculated. Head towards Exit A.",
		"Halfway there.",
		"You are safe.",
	}, f.ann.texts())
	assert.Equal(t, building.NodeID("A"), status(t, f.svc, "u1").Node)

	occ, ok := f.coord.Occupant("u1")
	require.True(t, ok)
	assert.Equal(t, building.Path{"A"}, occ.Path)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.reg.EvacuationsActive))
}

func TestEvacuateValidation(t *testing.T) {
	f := newFixture(t, -1)
	ctx := context.Background()

	tests := []struct {
		name string
		id   string
		node building.NodeID
		mode routing.Mode
		want error
	}{
		{"missing occupant", "", "S", routing.ModeGlobal, ErrMissingOccupant},
		{"unknown node", "u1", "nowhere", routing.ModeGlobal, routing.ErrUnknownNode},
		{"bad mode", "u1", "S", "teleport", ErrInvalidMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Evacuate(ctx, tt.id, tt.node, tt.mode)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.svc.Statuses())
}

func TestEvacuateFromExitIsImmediatelySafe(t *testing.T) {
	f := newFixture(t, -1)

	a, err := f.svc.Evacuate(context.Background(), "u1", "B", routing.ModeLocal)
	require.NoError(t, err)
	assert.Equal(t, StatusSafe, a.Status)
	assert.Empty(t, a.Directions)
	assert.Contains(t, f.ann.texts(), "You are safe.")
}

func TestNoRouteKeepsOccupantEvacuatingUntilCleared(t *testing.T) {
	f := newFixture(t, -1)
	ctx := context.Background()

	_, err := f.coord.AddBlockade(building.NewEdgeKey("S", "M"), "r")
	require.NoError(t, err)
	_, err = f.coord.AddBlockade(building.NewEdgeKey("S", "D1"), "r")
	require.NoError(t, err)

	_, err = f.svc.Evacuate(ctx, "u1", "S", routing.ModeGlobal)
	require.ErrorIs(t, err, ErrNoRoute)
	assert.Equal(t, StatusEvacuating, status(t, f.svc, "u1").Status)
	assert.Contains(t, f.ann.texts(), "Warning. No route found.")

	change := f.svc.ClearAllBlockades(ctx)
	assert.Empty(t, change.Blockades)

	st := status(t, f.svc, "u1")
	assert.Equal(t, StatusEvacuating, st.Status)
	assert.Equal(t, building.Path{"S", "M", "A"}, st.Remaining)
	assert.Contains(t, f.ann.texts(), "All blockades cleared.")
}

func TestReportBlockadeReroutesEvacuatingOccupants(t *testing.T) {
	f := newFixture(t, -1)
	ctx := context.Background()

	sub, err := f.hub.Subscribe(ctx, pubsub.TopicBlockades)
	require.NoError(t, err)

	_, err = f.svc.Evacuate(ctx, "u1", "S", routing.ModeGlobal)
	require.NoError(t, err)

	change, err := f.svc.ReportBlockade(ctx, building.NewEdgeKey("M", "A"), "responder-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, change.Rerouted)
	require.Len(t, change.Blockades, 1)
	assert.Equal(t, "responder-1", change.Blockades[0].ReporterID)

	st := status(t, f.svc, "u1")
	assert.Equal(t, building.Path{"S", "D1", "D2", "B"}, st.Remaining)
	assert.Contains(t, f.ann.texts(), "Blockade reported.")
	assert.Contains(t, f.ann.texts(), "Route calculated. Head towards Exit B.")

	select {
	case ev := <-sub.Events():
		assert.Equal(t, EventBlockadeAdded, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no blockade event published")
	}

	_, err = f.svc.ReportBlockade(ctx, building.NewEdgeKey("A", "B"), "responder-1")
	assert.ErrorIs(t, err, routing.ErrUnknownEdge)

	change = f.svc.ClearBlockade(ctx, building.NewEdgeKey("M", "A"))
	assert.Empty(t, change.Blockades)
	assert.Equal(t, building.Path{"S", "M", "A"}, status(t, f.svc, "u1").Remaining)
}

func TestRerouteKeepsBlockades(t *testing.T) {
	f := newFixture(t, -1)
	ctx := context.Background()

	_, err := f.svc.Evacuate(ctx, "u1", "S", routing.ModeGlobal)
	require.NoError(t, err)
	_, err = f.coord.AddBlockade(building.NewEdgeKey("D2", "B"), "r")
	require.NoError(t, err)

	change := f.svc.Reroute(ctx)
	assert.Equal(t, EventRerouted, change.Action)
	assert.Equal(t, []string{"u1"}, change.Rerouted)
	assert.Len(t, change.Blockades, 1, "reroute leaves the blockade set alone")
	assert.Equal(t, building.Path{"S", "M", "A"}, status(t, f.svc, "u1").Remaining)
}

func TestBlockadeRerouteKeepsProgress(t *testing.T) {
	f := newFixture(t, -1)
	ctx := context.Background()

	_, err := f.svc.Evacuate(ctx, "u1", "R", routing.ModeGlobal)
	require.NoError(t, err)
	require.False(t, f.stepOnce("u1"))
	require.False(t, f.stepOnce("u1"))
	require.Equal(t, building.NodeID("M"), status(t, f.svc, "u1").Node)
	require.Equal(t, []string{"Route calculated. Head towards Exit A.", "Halfway there."}, f.ann.texts())

	sub, err := f.hub.Subscribe(ctx, pubsub.TopicRoutes, pubsub.TopicBlockades)
	require.NoError(t, err)

	change, err := f.svc.ReportBlockade(ctx, building.NewEdgeKey("M", "A"), "responder-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, change.Rerouted)

	occ, ok := f.coord.Occupant("u1")
	require.True(t, ok)
	want := building.Path{"M", "S", "D1", "D2", "B"}
	assert.Equal(t, want, occ.Path)
	assert.Equal(t, want, status(t, f.svc, "u1").Remaining)

	var got []pubsub.Event
	for len(got) < 2 {
		select {
		case ev := <-sub.Events():
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("received %d events, want 2", len(got))
		}
	}
	require.Equal(t, EventRouteAssigned, got[0].Type)
	assigned, ok := got[0].Data.(Assignment)
	require.True(t, ok)
	assert.Equal(t, occ.Path, assigned.Route.Path, "published route must match the coordinator")
	assert.Equal(t, "Exit B", assigned.ExitLabel)
	assert.Len(t, assigned.Directions, len(want))
	assert.Equal(t, EventBlockadeAdded, got[1].Type, "blockade change follows the new routes")

	for i := 0; i < len(want) && !f.stepOnce("u1"); i++ {
	}
	assert.Equal(t, StatusSafe, status(t, f.svc, "u1").Status)

	halfway := 0
	for _, text := range f.ann.texts() {
		if text == "Halfway there." {
			halfway++
		}
	}
	assert.Equal(t, 1, halfway)
}

func TestLocalModeLeavesCoordinatorUntouched(t *testing.T) {
	f := newFixture(t, -1)

	a, err := f.svc.Evacuate(context.Background(), "u1", "D1", routing.ModeLocal)
	require.NoError(t, err)
	assert.Equal(t, building.NodeID("B"), a.Route.Exit)
	assert.Zero(t, a.Route.Penalty)
	assert.Equal(t, 0, f.coord.OccupantCount())
	assert.Equal(t, building.Path{"D1", "D2", "B"}, status(t, f.svc, "u1").Remaining)
}

func TestTrackerHoldsAtBlockedEdge(t *testing.T) {
	f := newFixture(t, -1)

	_, err := f.svc.Evacuate(context.Background(), "u1", "S", routing.ModeLocal)
	require.NoError(t, err)
	_, err = f.coord.AddBlockade(building.NewEdgeKey("M", "A"), "r")
	require.NoError(t, err)

	assert.False(t, f.stepOnce("u1"))
	assert.Equal(t, building.NodeID("M"), status(t, f.svc, "u1").Node)

	assert.False(t, f.stepOnce("u1"))
	assert.Equal(t, building.NodeID("M"), status(t, f.svc, "u1").Node, "blocked edge must not be walked")

	f.coord.RemoveBlockade(building.NewEdgeKey("M", "A"))
	assert.True(t, f.stepOnce("u1"))
	st := status(t, f.svc, "u1")
	assert.Equal(t, StatusSafe, st.Status)
	assert.Equal(t, building.NodeID("A"), st.Node)
}

func TestGlobalStepTrimsCoordinatorPath(t *testing.T) {
	f := newFixture(t, -1)

	_, err := f.svc.Evacuate(context.Background(), "u1", "S", routing.ModeGlobal)
	require.NoError(t, err)
	require.False(t, f.stepOnce("u1"))

	occ, ok := f.coord.Occupant("u1")
	require.True(t, ok)
	assert.Equal(t, building.NodeID("M"), occ.Node)
	assert.Equal(t, building.Path{"M", "A"}, occ.Path)
	assert.Equal(t, []string{"Route calculated. Head towards Exit A.", "Halfway there."}, f.ann.texts())
}

func TestAlertEvacuatesNearbyStandbyOccupants(t *testing.T) {
	f := newFixture(t, -1)
	ctx := context.Background()

	_, err := f.svc.Locate(ctx, "near", "S")
	require.NoError(t, err)
	_, err = f.svc.Locate(ctx, "far", "F")
	require.NoError(t, err)

	alerts, err := f.hub.Subscribe(ctx, pubsub.TopicAlerts)
	require.NoError(t, err)

	cell := status(t, f.svc, "near").Cell
	require.Equal(t, "cell_2_2", cell)

	var out ShakingOutcome
	for i, dev := range []string{"p1", "p2", "p3"} {
		out, err = f.svc.ReportShaking(ctx, sensing.Event{
			Timestamp:    t0.Add(time.Duration(i) * time.Second),
			LocationCell: cell,
			Intensity:    3,
			DeviceID:     dev,
		})
		require.NoError(t, err)
	}

	require.NotNil(t, out.Receipt.Alert)
	assert.Equal(t, []string{"near"}, out.Evacuated)
	assert.Equal(t, StatusEvacuating, status(t, f.svc, "near").Status)
	assert.Equal(t, StatusStandby, status(t, f.svc, "far").Status)
	assert.Contains(t, f.ann.texts(), "Earthquake detected! 3 devices confirmed. Evacuate immediately.")
	assert.Contains(t, f.ann.texts(), "Automatic evacuation route activated.")

	select {
	case ev := <-alerts.Events():
		assert.Equal(t, EventAlertRaised, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("alert not published")
	}
}

func TestReportShakingRejectsMissingCell(t *testing.T) {
	f := newFixture(t, -1)

	_, err := f.svc.ReportShaking(context.Background(), sensing.Event{Intensity: 5, DeviceID: "p1"})
	assert.ErrorIs(t, err, sensing.ErrMissingCell)
}

func TestSimulateQuake(t *testing.T) {
	f := newFixture(t, -1)
	ctx := context.Background()

	_, err := f.svc.Locate(ctx, "u1", "R")
	require.NoError(t, err)

	sim, err := f.svc.SimulateQuake(ctx, "cell_1_2", 0, 0)
	require.NoError(t, err)
	assert.Len(t, sim.Events, DefaultSimulatedDevices)
	require.NotNil(t, sim.Alert)
	assert.Equal(t, "cell_1_2", sim.Alert.CellID)
	assert.Equal(t, []string{"u1"}, sim.Evacuated)
	for _, ev := range sim.Events {
		assert.GreaterOrEqual(t, ev.Intensity, 3.5)
		assert.Less(t, ev.Intensity, 5.5)
	}

	_, err = f.svc.SimulateQuake(ctx, "not-a-cell", 3, 4)
	assert.Error(t, err)

	random, err := f.svc.SimulateQuake(ctx, "", 1, 4)
	require.NoError(t, err)
	assert.NotEmpty(t, random.Cell)
}

func TestLocateReroutesWhileEvacuating(t *testing.T) {
	f := newFixture(t, -1)
	ctx := context.Background()

	_, err := f.svc.Evacuate(ctx, "u1", "S", routing.ModeLocal)
	require.NoError(t, err)

	st, err := f.svc.Locate(ctx, "u1", "D2")
	require.NoError(t, err)
	assert.Equal(t, building.Path{"D2", "B"}, st.Remaining)

	_, err = f.svc.Locate(ctx, "u1", "nowhere")
	assert.ErrorIs(t, err, routing.ErrUnknownNode)
}

func TestStopAndMarkSafe(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.svc.Evacuate(ctx, "u1", "S", routing.ModeGlobal)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.reg.EvacuationsActive))

	st, err := f.svc.StopEvacuation("u1")
	require.NoError(t, err)
	assert.Equal(t, StatusStandby, st.Status)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.reg.EvacuationsActive))

	st, err = f.svc.MarkSafe(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusSafe, st.Status)

	_, err = f.svc.Status("ghost")
	assert.ErrorIs(t, err, ErrNotLocated)
}

func TestCloseRejectsNewWork(t *testing.T) {
	f := newFixture(t, time.Millisecond)
	ctx := context.Background()

	_, err := f.svc.Evacuate(ctx, "u1", "S", routing.ModeGlobal)
	require.NoError(t, err)

	f.svc.Close()
	f.svc.Close()

	_, err = f.svc.Evacuate(ctx, "u2", "S", routing.ModeGlobal)
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = f.svc.Locate(ctx, "u3", "S")
	assert.ErrorIs(t, err, ErrClosed)
}
