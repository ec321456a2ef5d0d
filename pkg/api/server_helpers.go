package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dd0wney/echoaid/pkg/api/middleware"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
	"github.com/dd0wney/echoaid/pkg/evacuation"
	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/routing"
	"github.com/dd0wney/echoaid/pkg/sensing"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	middleware.WriteError(w, status, message)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, evacuation.ErrNotLocated),
		errors.Is(err, routing.ErrUnknownOccupant):
		return http.StatusNotFound
	case errors.Is(err, evacuation.ErrNoRoute):
		return http.StatusConflict
	case errors.Is(err, evacuation.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, routing.ErrUnknownEdge),
		errors.Is(err, routing.ErrUnknownNode),
		errors.Is(err, building.ErrInvalidEdgeKey),
		errors.Is(err, cells.ErrInvalidCell),
		errors.Is(err, sensing.ErrMissingCell),
		errors.Is(err, sensing.ErrInvalidCell),
		errors.Is(err, sensing.ErrInvalidIntensity),
		errors.Is(err, sensing.ErrInvalidConfig),
		errors.Is(err, evacuation.ErrMissingOccupant),
		errors.Is(err, evacuation.ErrInvalidMode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError sends err with its mapped status. Internal errors
// are logged and replaced with a generic message.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(operation+" failed",
			logging.String("request_id", middleware.GetRequestID(r)),
			logging.Error(err),
		)
		s.respondError(w, status, operation+" failed")
		return
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) nodeResponse(n building.Node) NodeResponse {
	resp := NodeResponse{
		ID:          n.ID,
		X:           n.Pos.X(),
		Y:           n.Pos.Y(),
		Label:       n.Label,
		Feature:     string(n.Feature),
		DisplayName: n.DisplayName(),
		Exit:        s.building.IsExit(n.ID),
	}
	if cell, err := s.grid.CellOf(n.Pos); err == nil {
		resp.Cell = cell
	}
	return resp
}

func (s *Server) nodeResponses(nodes []building.Node) []NodeResponse {
	out := make([]NodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, s.nodeResponse(n))
	}
	return out
}
