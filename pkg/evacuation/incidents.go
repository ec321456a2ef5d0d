package evacuation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dd0wney/echoaid/pkg/algorithms"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
)

// ReportShaking feeds one report to the aggregator. When it confirms a new
// alert, everyone is warned and every STANDBY occupant located in the
// alerted cell or an adjacent one is evacuated with Config.AutoMode.
func (s *Service) ReportShaking(ctx context.Context, ev sensing.Event) (ShakingOutcome, error) {
	receipt, err := s.deps.Aggregator.ReportShaking(ev)
	if err != nil {
		return ShakingOutcome{}, err
	}
	s.publish(pubsub.TopicSensing, EventShakingReported, receipt.Event)

	outcome := ShakingOutcome{Receipt: receipt}
	if receipt.Alert == nil {
		return outcome, nil
	}

	alert := *receipt.Alert
	s.publish(pubsub.TopicAlerts, EventAlertRaised, alert)
	s.announce(ctx, "", KindAlert,
		fmt.Sprintf("Earthquake detected! %d devices confirmed. Evacuate immediately.", alert.DeviceCount))

	for _, id := range s.standbyNear(alert.CellID) {
		node, ok := s.locationOf(id)
		if !ok {
			continue
		}
		_, err := s.Evacuate(ctx, id, node, s.cfg.AutoMode)
		switch {
		case err == nil:
			s.announce(ctx, id, KindAlert, "Automatic evacuation route activated.")
		case !errors.Is(err, ErrNoRoute):
			s.logger.Warn("automatic evacuation failed", logging.Occupant(id), logging.Error(err))
			continue
		}
		outcome.Evacuated = append(outcome.Evacuated, id)
	}
	s.logger.Info("alert handled",
		logging.Cell(alert.CellID),
		logging.String("alert_id", alert.ID),
		logging.Int("evacuated", len(outcome.Evacuated)),
	)
	return outcome, nil
}

// SimulateQuake injects a corroborating cluster of reports into cell, half
// a second apart, as a drill. An empty cell picks one of the interior
// cells at random; devices <= 0 uses DefaultSimulatedDevices; intensity
// <= 0 draws each report from [3.5, 5.5).
func (s *Service) SimulateQuake(ctx context.Context, cell string, devices int, intensity float64) (Simulation, error) {
	if cell == "" {
		cell = s.randomCell()
	} else if _, err := s.deps.Grid.Parse(cell); err != nil {
		return Simulation{}, err
	}
	if devices <= 0 {
		devices = DefaultSimulatedDevices
	}

	sim := Simulation{Cell: cell}
	start := s.cfg.Clock()
	for i := 0; i < devices; i++ {
		level := intensity
		if level <= 0 {
			level = 3.5 + s.randFloat()*2
		}
		out, err := s.ReportShaking(ctx, sensing.Event{
			Timestamp:    start.Add(simulatedSpacing * time.Duration(i)),
			LocationCell: cell,
			Intensity:    level,
			DeviceID:     fmt.Sprintf("sim_%d", i),
			Features:     map[string]float64{},
		})
		if err != nil {
			return sim, err
		}
		sim.Events = append(sim.Events, out.Receipt.Event)
		if out.Receipt.Alert != nil {
			sim.Alert = out.Receipt.Alert
		}
		sim.Evacuated = append(sim.Evacuated, out.Evacuated...)
	}
	s.logger.Warn("simulated earthquake injected", logging.Cell(cell), logging.Count(devices))
	return sim, nil
}

// ReportBlockade blocks edge, reroutes every tracked occupant and
// refreshes everyone currently evacuating.
func (s *Service) ReportBlockade(ctx context.Context, edge building.EdgeKey, reporterID string) (BlockadeChange, error) {
	blockades, err := s.deps.Coordinator.AddBlockade(edge, reporterID)
	if err != nil {
		return BlockadeChange{}, err
	}
	s.announce(ctx, "", KindBlockade, "Blockade reported.")
	return s.afterBlockadeChange(ctx, EventBlockadeAdded, edge.String(), blockades), nil
}

// ClearBlockade unblocks edge if it was blocked.
func (s *Service) ClearBlockade(ctx context.Context, edge building.EdgeKey) BlockadeChange {
	blockades := s.deps.Coordinator.RemoveBlockade(edge)
	s.announce(ctx, "", KindBlockade, "Blockade cleared.")
	return s.afterBlockadeChange(ctx, EventBlockadeRemoved, edge.String(), blockades)
}

// ClearAllBlockades unblocks every edge.
func (s *Service) ClearAllBlockades(ctx context.Context) BlockadeChange {
	blockades := s.deps.Coordinator.ClearAllBlockades()
	s.announce(ctx, "", KindBlockade, "All blockades cleared.")
	return s.afterBlockadeChange(ctx, EventBlockadesClear, "", blockades)
}

// Reroute recomputes every tracked route against the current blockades
// without changing them, for operators who want to force a rebalance.
func (s *Service) Reroute(ctx context.Context) BlockadeChange {
	return s.afterBlockadeChange(ctx, EventRerouted, "", s.deps.Coordinator.Blockades())
}

func (s *Service) afterBlockadeChange(ctx context.Context, eventType, edge string, blockades []routing.Blockade) BlockadeChange {
	rerouted := s.deps.Coordinator.RerouteAllRoutes()
	change := BlockadeChange{
		Action:    eventType,
		Edge:      edge,
		Blockades: blockades,
		Rerouted:  make([]string, 0, len(rerouted)),
	}
	for _, r := range rerouted {
		change.Rerouted = append(change.Rerouted, r.OccupantID)
	}
	s.refresh(ctx, rerouted)
	s.publish(pubsub.TopicBlockades, eventType, change)
	return change
}

// refresh points everyone mid-evacuation at their new route. Global
// occupants take the route the coordinator just assigned; local ones are
// routed again from where they stand. Progress already walked is kept.
func (s *Service) refresh(ctx context.Context, rerouted []routing.Rerouted) {
	assigned := make(map[string]routing.Route, len(rerouted))
	for _, r := range rerouted {
		assigned[r.OccupantID] = r.Route
	}

	type pending struct {
		id   string
		node building.NodeID
		mode routing.Mode
	}

	s.mu.Lock()
	var todo []pending
	for _, id := range s.order {
		if occ := s.occupants[id]; occ.status == StatusEvacuating {
			todo = append(todo, pending{id: id, node: occ.node, mode: occ.mode})
		}
	}
	s.mu.Unlock()

	for _, p := range todo {
		var (
			route routing.Route
			ok    bool
		)
		if p.mode == routing.ModeLocal {
			route, ok = s.deps.Coordinator.RouteLocal(p.node)
		} else {
			route, ok = assigned[p.id]
			if !ok {
				if _, tracked := s.deps.Coordinator.Occupant(p.id); !tracked {
					// Never routed, so the coordinator has nothing to reroute.
					if _, err := s.Evacuate(ctx, p.id, p.node, p.mode); err != nil && !errors.Is(err, ErrNoRoute) {
						s.logger.Warn("refresh failed", logging.Occupant(p.id), logging.Error(err))
					}
					continue
				}
			}
		}
		if !ok {
			s.logger.Warn("no route found", logging.Occupant(p.id), logging.Node(string(p.node)))
			s.announce(ctx, p.id, KindWarning, "Warning. No route found.")
			s.publish(pubsub.TopicRoutes, EventRouteMissing, Assignment{OccupantID: p.id, Mode: p.mode, Status: StatusEvacuating})
			continue
		}
		s.reassign(ctx, p.id, route)
	}
}

// reassign switches an evacuating occupant onto route without resetting
// their progress or restarting a running tracker.
func (s *Service) reassign(ctx context.Context, id string, route routing.Route) {
	s.mu.Lock()
	occ, ok := s.occupants[id]
	if !ok || occ.status != StatusEvacuating || len(route.Path) == 0 || route.Path[0] != occ.node {
		// Moved or finished since the reroute; the next blockade change catches them.
		s.mu.Unlock()
		return
	}
	if occ.mode == routing.ModeLocal {
		occ.path = slices.Clone(route.Path)
	}
	occ.planned = occ.steps + len(route.Path)
	arrived := len(route.Path) < 2
	if arrived {
		s.stopTracker(occ)
		s.setStatus(occ, StatusSafe)
	} else if occ.cancel == nil {
		s.startTracker(occ)
	}
	assignment := Assignment{
		OccupantID: id,
		Mode:       occ.mode,
		Status:     occ.status,
		Route:      route,
		ExitLabel:  s.exitLabel(route.Exit),
		Directions: algorithms.Directions(s.deps.Graph, route.Path),
	}
	node := occ.node
	s.mu.Unlock()

	s.logger.Info("evacuation route reassigned",
		logging.Occupant(id),
		logging.Exit(string(route.Exit)),
		logging.Int("waypoints", len(route.Path)),
	)
	s.announce(ctx, id, KindRoute, fmt.Sprintf("Route calculated. Head towards %s.", assignment.ExitLabel))
	s.publish(pubsub.TopicRoutes, EventRouteAssigned, assignment)
	if arrived {
		s.arrive(ctx, id, node)
	}
}

func (s *Service) standbyNear(cell string) []string {
	area := []string{cell}
	if near, err := s.deps.Grid.Neighbors(cell, cells.All); err == nil {
		area = append(area, near...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, id := range s.order {
		occ := s.occupants[id]
		if occ.status != StatusStandby {
			continue
		}
		if c, ok := s.cellOf(occ.node); ok && slices.Contains(area, c) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Service) locationOf(id string) (building.NodeID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	occ, ok := s.occupants[id]
	if !ok {
		return "", false
	}
	return occ.node, true
}

// randomCell mirrors the drill button: a cell from the interior band of
// the column-major enumeration.
func (s *Service) randomCell() string {
	all := s.deps.Grid.AllCells()
	lo, hi := 5, 25
	if hi > len(all) {
		hi = len(all)
	}
	if lo >= hi {
		lo = 0
	}
	return all[lo+s.randIntn(hi-lo)]
}

func (s *Service) randFloat() float64 {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.cfg.Rand.Float64()
}

func (s *Service) randIntn(n int) int {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.cfg.Rand.Intn(n)
}
