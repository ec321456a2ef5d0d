package api

import (
	"errors"
	"net/http"

	"github.com/dd0wney/echoaid/pkg/algorithms"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/validation"
)

func (s *Server) handleListBlockades(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, blockadeResponses(s.coordinator.Blockades()))
}

// handleReportBlockade blocks an edge and reroutes everyone. An
// authenticated caller is recorded as the reporter.
func (s *Server) handleReportBlockade(w http.ResponseWriter, r *http.Request) {
	var req validation.BlockadeRequest
	decoder := s.NewRequestDecoder(w, r)
	decoder.DecodeJSON(&req).Validate(func() error { return validation.ValidateBlockadeRequest(&req) })
	if decoder.RespondError() {
		return
	}

	edge, err := building.ParseEdgeKey(req.Edge)
	if err != nil {
		s.respondDomainError(w, r, "report blockade", err)
		return
	}
	reporter := reporterID(r, req.ReporterID)
	change, err := s.evacuation.ReportBlockade(r.Context(), edge, reporter)
	if err != nil {
		s.respondDomainError(w, r, "report blockade", err)
		return
	}
	s.logger.Info("blockade reported",
		logging.Edge(edge.String()),
		logging.String("reporter", reporter),
		logging.Int("rerouted", len(change.Rerouted)),
	)
	s.respondJSON(w, http.StatusCreated, blockadeChangeResponse(change))
}

func (s *Server) handleClearBlockade(w http.ResponseWriter, r *http.Request) {
	edge, err := building.ParseEdgeKey(r.PathValue("edge"))
	if err != nil {
		s.respondDomainError(w, r, "clear blockade", err)
		return
	}
	s.respondJSON(w, http.StatusOK, blockadeChangeResponse(s.evacuation.ClearBlockade(r.Context(), edge)))
}

func (s *Server) handleClearBlockades(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, blockadeChangeResponse(s.evacuation.ClearAllBlockades(r.Context())))
}

func (s *Server) handleReroute(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, blockadeChangeResponse(s.evacuation.Reroute(r.Context())))
}

// handleRoute starts an evacuation. A route that cannot be found still
// leaves the occupant EVACUATING; the 409 body says so.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req validation.RouteRequest
	decoder := s.NewRequestDecoder(w, r)
	decoder.DecodeJSON(&req).Validate(func() error { return validation.ValidateRouteRequest(&req) })
	if decoder.RespondError() {
		return
	}

	assignment, err := s.evacuation.Evacuate(r.Context(), req.OccupantID, building.NodeID(req.Node), routing.Mode(req.Mode))
	if err != nil {
		s.respondDomainError(w, r, "route", err)
		return
	}
	s.respondJSON(w, http.StatusOK, assignment)
}

func (s *Server) handleCongestion(w http.ResponseWriter, r *http.Request) {
	unreachable := algorithms.Unreachable(s.building, s.coordinator.BlockedEdges())
	if unreachable == nil {
		unreachable = []building.NodeID{}
	}
	s.respondJSON(w, http.StatusOK, CongestionResponse{
		Load:        s.coordinator.Congestion(),
		Unreachable: unreachable,
		Occupants:   s.coordinator.OccupantCount(),
	})
}

func (s *Server) handleOccupants(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, OccupantsResponse{
		Occupants: s.evacuation.Statuses(),
		Routes:    s.coordinator.Occupants(),
	})
}

// handleLocation records a positioning update. Occupants mid-evacuation
// are rerouted from the new node.
func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req validation.LocationRequest
	decoder := s.NewRequestDecoder(w, r)
	decoder.DecodeJSON(&req).Validate(func() error {
		return validation.ValidateRouteRequest(&validation.RouteRequest{OccupantID: r.PathValue("id"), Node: req.Node})
	})
	if decoder.RespondError() {
		return
	}

	status, err := s.evacuation.Locate(r.Context(), r.PathValue("id"), building.NodeID(req.Node))
	if err != nil && !errors.Is(err, evacuation.ErrNoRoute) {
		s.respondDomainError(w, r, "update location", err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}
