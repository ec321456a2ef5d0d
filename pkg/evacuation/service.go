// Package evacuation sequences sensing, routing and announcements for the
// people in one building: it turns confirmed alerts into evacuations,
// reroutes after blockade changes and walks occupants to their exits.
package evacuation

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dd0wney/echoaid/pkg/algorithms"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/routing"
)

// Service is safe for concurrent use.
type Service struct {
	deps   Deps
	cfg    Config
	logger logging.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	randMu sync.Mutex

	mu        sync.Mutex
	occupants map[string]*occupant
	order     []string
	closed    bool
}

// NewService wires a service over deps.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Announcer == nil {
		deps.Announcer = NopAnnouncer{}
	}
	if deps.Grid == nil {
		deps.Grid = cells.DefaultGrid()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		deps:      deps,
		cfg:       cfg.withDefaults(),
		logger:    logging.OrDefault(deps.Logger).With(logging.Component("evacuation")),
		ctx:       ctx,
		stop:      stop,
		occupants: make(map[string]*occupant),
	}
}

// Locate records where an occupant is. An occupant already evacuating is
// rerouted from the new position.
func (s *Service) Locate(ctx context.Context, occupantID string, node building.NodeID) (OccupantStatus, error) {
	if occupantID == "" {
		return OccupantStatus{}, ErrMissingOccupant
	}
	if !s.deps.Graph.HasNode(node) {
		return OccupantStatus{}, fmt.Errorf("%w: %s", routing.ErrUnknownNode, node)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return OccupantStatus{}, ErrClosed
	}
	occ := s.ensure(occupantID)
	occ.node = node
	evacuating, mode := occ.status == StatusEvacuating, occ.mode
	snapshot := s.snapshot(occ)
	s.mu.Unlock()

	s.logger.Debug("occupant located", logging.Occupant(occupantID), logging.Node(string(node)))
	if evacuating {
		if _, err := s.Evacuate(ctx, occupantID, node, mode); err != nil {
			return snapshot, err
		}
		return s.Status(occupantID)
	}
	return snapshot, nil
}

// Evacuate routes occupantID from node with the given mode, announces the
// destination and starts walking them to it. The occupant stays
// EVACUATING when no exit is reachable so a later blockade change can
// route them; ErrNoRoute is returned in that case.
func (s *Service) Evacuate(ctx context.Context, occupantID string, node building.NodeID, mode routing.Mode) (Assignment, error) {
	if occupantID == "" {
		return Assignment{}, ErrMissingOccupant
	}
	if mode == "" {
		mode = routing.ModeGlobal
	}
	if mode != routing.ModeGlobal && mode != routing.ModeLocal {
		return Assignment{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if !s.deps.Graph.HasNode(node) {
		return Assignment{}, fmt.Errorf("%w: %s", routing.ErrUnknownNode, node)
	}

	var (
		route routing.Route
		ok    bool
	)
	if mode == routing.ModeGlobal {
		route, ok = s.deps.Coordinator.RouteGlobal(node, occupantID)
	} else {
		route, ok = s.deps.Coordinator.RouteLocal(node)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Assignment{}, ErrClosed
	}
	occ := s.ensure(occupantID)
	s.stopTracker(occ)
	occ.node, occ.mode = node, mode
	occ.path, occ.steps, occ.halfway = nil, 0, false
	s.setStatus(occ, StatusEvacuating)

	assignment := Assignment{OccupantID: occupantID, Mode: mode, Status: StatusEvacuating}
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("no route found", logging.Occupant(occupantID), logging.Node(string(node)))
		s.announce(ctx, occupantID, KindWarning, "Warning. No route found.")
		s.publish(pubsub.TopicRoutes, EventRouteMissing, assignment)
		return assignment, fmt.Errorf("%w from %s", ErrNoRoute, node)
	}

	if mode == routing.ModeLocal {
		occ.path = slices.Clone(route.Path)
	}
	occ.planned = len(route.Path)
	arrived := len(route.Path) < 2
	if arrived {
		s.setStatus(occ, StatusSafe)
	} else {
		s.startTracker(occ)
	}
	assignment.Status = occ.status
	s.mu.Unlock()

	assignment.Route = route
	assignment.ExitLabel = s.exitLabel(route.Exit)
	assignment.Directions = algorithms.Directions(s.deps.Graph, route.Path)

	s.logger.Info("evacuation route assigned",
		logging.Occupant(occupantID),
		logging.String("mode", string(mode)),
		logging.Exit(string(route.Exit)),
		logging.Int("waypoints", len(route.Path)),
	)
	s.announce(ctx, occupantID, KindRoute, fmt.Sprintf("Route calculated. Head towards %s.", assignment.ExitLabel))
	s.publish(pubsub.TopicRoutes, EventRouteAssigned, assignment)
	if arrived {
		s.arrive(ctx, occupantID, node)
	}
	return assignment, nil
}

// MarkSafe ends an occupant's evacuation immediately.
func (s *Service) MarkSafe(ctx context.Context, occupantID string) (OccupantStatus, error) {
	s.mu.Lock()
	occ, ok := s.occupants[occupantID]
	if !ok {
		s.mu.Unlock()
		return OccupantStatus{}, fmt.Errorf("%w: %s", ErrNotLocated, occupantID)
	}
	s.stopTracker(occ)
	s.setStatus(occ, StatusSafe)
	node := occ.node
	snapshot := s.snapshot(occ)
	s.mu.Unlock()

	s.arrive(ctx, occupantID, node)
	return snapshot, nil
}

// StopEvacuation cancels an occupant's tracker and returns them to STANDBY.
func (s *Service) StopEvacuation(occupantID string) (OccupantStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	occ, ok := s.occupants[occupantID]
	if !ok {
		return OccupantStatus{}, fmt.Errorf("%w: %s", ErrNotLocated, occupantID)
	}
	s.stopTracker(occ)
	occ.path = nil
	s.setStatus(occ, StatusStandby)
	return s.snapshot(occ), nil
}

// Status returns one occupant's snapshot.
func (s *Service) Status(occupantID string) (OccupantStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	occ, ok := s.occupants[occupantID]
	if !ok {
		return OccupantStatus{}, fmt.Errorf("%w: %s", ErrNotLocated, occupantID)
	}
	return s.snapshot(occ), nil
}

// Statuses returns every located occupant in first-seen order.
func (s *Service) Statuses() []OccupantStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]OccupantStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.snapshot(s.occupants[id]))
	}
	return out
}

// Close stops every tracker and rejects further evacuations.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, occ := range s.occupants {
		s.stopTracker(occ)
	}
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
}

func (s *Service) ensure(id string) *occupant {
	occ, ok := s.occupants[id]
	if !ok {
		occ = &occupant{id: id, status: StatusStandby}
		s.occupants[id] = occ
		s.order = append(s.order, id)
	}
	return occ
}

func (s *Service) setStatus(occ *occupant, status Status) {
	occ.status = status
	if s.deps.Metrics == nil {
		return
	}
	active := 0
	for _, o := range s.occupants {
		if o.status == StatusEvacuating {
			active++
		}
	}
	s.deps.Metrics.EvacuationsActive.Set(float64(active))
}

// remaining resolves the path an occupant is walking.
func (s *Service) remaining(occ *occupant) building.Path {
	if occ.status != StatusEvacuating {
		return nil
	}
	if occ.mode == routing.ModeGlobal {
		if o, ok := s.deps.Coordinator.Occupant(occ.id); ok {
			return o.Path
		}
		return nil
	}
	return slices.Clone(occ.path)
}

func (s *Service) snapshot(occ *occupant) OccupantStatus {
	st := OccupantStatus{
		ID:        occ.id,
		Node:      occ.node,
		Status:    occ.status,
		Mode:      occ.mode,
		Remaining: s.remaining(occ),
	}
	if cell, ok := s.cellOf(occ.node); ok {
		st.Cell = cell
	}
	return st
}

func (s *Service) cellOf(node building.NodeID) (string, bool) {
	n, ok := s.deps.Graph.Node(node)
	if !ok {
		return "", false
	}
	cell, err := s.deps.Grid.CellOf(n.Pos)
	if err != nil {
		return "", false
	}
	return cell, true
}

func (s *Service) exitLabel(exit building.NodeID) string {
	if n, ok := s.deps.Graph.Node(exit); ok {
		return n.DisplayName()
	}
	return "nearest exit"
}

func (s *Service) announce(ctx context.Context, occupantID string, kind Kind, text string) {
	a := Announcement{OccupantID: occupantID, Kind: kind, Text: text, At: s.cfg.Clock()}
	if err := s.deps.Announcer.Announce(ctx, a); err != nil {
		s.logger.Warn("announcement failed", logging.Occupant(occupantID), logging.Error(err))
	}
	s.publish(pubsub.TopicEvacuation, "announcement", a)
}

func (s *Service) publish(topic pubsub.Topic, eventType string, data any) {
	if s.deps.Hub != nil {
		s.deps.Hub.Publish(topic, eventType, data)
	}
}

func (s *Service) arrive(ctx context.Context, occupantID string, node building.NodeID) {
	s.logger.Info("occupant safe", logging.Occupant(occupantID), logging.Node(string(node)))
	s.announce(ctx, occupantID, KindSafe, "You are safe.")
	s.publish(pubsub.TopicEvacuation, EventOccupantSafe, Movement{OccupantID: occupantID, Node: node})
}
