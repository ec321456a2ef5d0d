package evacuation

import (
	"context"
	"slices"
	"time"

	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/pubsub"
	"github.com/dd0wney/echoaid/pkg/routing"
)

// startTracker must be called with s.mu held.
func (s *Service) startTracker(occ *occupant) {
	if s.cfg.StepInterval < 0 {
		return
	}
	occ.gen++
	ctx, cancel := context.WithCancel(s.ctx)
	occ.cancel = cancel

	s.wg.Add(1)
	go s.track(ctx, occ.id, occ.gen, s.cfg.StepInterval)
}

// stopTracker must be called with s.mu held.
func (s *Service) stopTracker(occ *occupant) {
	occ.gen++
	if occ.cancel != nil {
		occ.cancel()
		occ.cancel = nil
	}
}

func (s *Service) track(ctx context.Context, id string, gen uint64, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.step(ctx, id, gen) {
				return
			}
		}
	}
}

// step advances one waypoint and reports whether tracking is finished. A
// blocked next edge holds the occupant in place until a reroute.
func (s *Service) step(ctx context.Context, id string, gen uint64) bool {
	s.mu.Lock()
	occ, ok := s.occupants[id]
	if !ok || occ.gen != gen || occ.status != StatusEvacuating {
		s.mu.Unlock()
		return true
	}

	path := s.remaining(occ)
	i := slices.Index(path, occ.node)
	if i < 0 || i+1 >= len(path) {
		s.mu.Unlock()
		s.logger.Debug("occupant waiting for a route", logging.Occupant(id), logging.Node(string(occ.node)))
		return false
	}
	next := path[i+1]
	if s.deps.Coordinator.BlockedEdges().Blocks(occ.node, next) {
		s.mu.Unlock()
		s.logger.Debug("next edge blocked", logging.Occupant(id), logging.Edge(building.NewEdgeKey(occ.node, next).String()))
		return false
	}

	occ.node = next
	occ.steps++
	if occ.mode == routing.ModeGlobal {
		if err := s.deps.Coordinator.MoveOccupant(id, next); err != nil {
			s.logger.Warn("move failed", logging.Occupant(id), logging.Error(err))
		}
	} else {
		occ.path = slices.Clone(path[i+1:])
	}

	left := len(path) - (i + 2)
	arrived := left == 0
	halfway := !arrived && !occ.halfway && occ.steps >= occ.planned/2
	if halfway {
		occ.halfway = true
	}
	if arrived {
		if occ.cancel != nil {
			defer occ.cancel()
			occ.cancel = nil
		}
		s.setStatus(occ, StatusSafe)
	}
	s.mu.Unlock()

	s.publish(pubsub.TopicEvacuation, EventOccupantMoved, Movement{OccupantID: id, Node: next, Remaining: left})
	if halfway {
		s.announce(ctx, id, KindProgress, "Halfway there.")
	}
	if arrived {
		s.arrive(ctx, id, next)
		return true
	}
	return false
}
