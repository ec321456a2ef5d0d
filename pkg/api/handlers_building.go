package api

import (
	"fmt"
	"net/http"

	"github.com/paulmach/orb"

	"github.com/dd0wney/echoaid/pkg/algorithms"
	"github.com/dd0wney/echoaid/pkg/building"
	"github.com/dd0wney/echoaid/pkg/cells"
)

const defaultChokePoints = 5

func boundArray(b orb.Bound) [4]float64 {
	return [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
}

func (s *Server) handleBuilding(w http.ResponseWriter, r *http.Request) {
	g := s.building

	edges := make([][2]building.NodeID, 0, g.EdgeCount())
	for _, k := range g.Edges() {
		edges = append(edges, [2]building.NodeID{k.A, k.B})
	}
	walls := make([][4]float64, 0, len(g.Walls()))
	for _, wall := range g.Walls() {
		walls = append(walls, [4]float64{wall.From.X(), wall.From.Y(), wall.To.X(), wall.To.Y()})
	}

	s.respondJSON(w, http.StatusOK, BuildingResponse{
		Name:   g.Name(),
		Nodes:  s.nodeResponses(g.Nodes()),
		Edges:  edges,
		Exits:  g.Exits(),
		Walls:  walls,
		Bounds: boundArray(g.Bound()),
	})
}

// handleNodes lists every node, or those matching ?q= by id or label.
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("q"); q != "" {
		s.respondJSON(w, http.StatusOK, s.nodeResponses(s.building.Search(q)))
		return
	}
	s.respondJSON(w, http.StatusOK, s.nodeResponses(s.building.Nodes()))
}

// handleDirections computes the shortest unblocked path between two nodes
// with turn-by-turn steps. Congestion is ignored.
func (s *Server) handleDirections(w http.ResponseWriter, r *http.Request) {
	from := building.NodeID(r.URL.Query().Get("from"))
	to := building.NodeID(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		s.respondError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	for _, id := range []building.NodeID{from, to} {
		if !s.building.HasNode(id) {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("node %q not found", id))
			return
		}
	}

	path, ok := algorithms.FindPath(s.building, from, to, s.coordinator.BlockedEdges())
	if !ok {
		s.respondError(w, http.StatusConflict, fmt.Sprintf("no unblocked path from %s to %s", from, to))
		return
	}
	s.respondJSON(w, http.StatusOK, DirectionsResponse{
		From:       from,
		To:         to,
		Distance:   algorithms.PathLength(s.building, path),
		Path:       path,
		Directions: algorithms.Directions(s.building, path),
	})
}

// handleChokePoints ranks the edges most room evacuations cross under the
// current blockades, at most ?limit= of them.
func (s *Server) handleChokePoints(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultChokePoints)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	top := algorithms.ChokePoints(s.building, s.coordinator.BlockedEdges(), limit)
	if top == nil {
		top = []algorithms.RankedEdge{}
	}
	s.respondJSON(w, http.StatusOK, top)
}

func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, CellsResponse{
		CellSize: s.grid.CellSize,
		Columns:  s.grid.Columns(),
		Rows:     s.grid.Rows(),
		Cells:    s.grid.AllCells(),
	})
}

// handleCell describes one cell. ?direction= narrows the neighbour list.
func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	cell, err := s.grid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondDomainError(w, r, "describe cell", err)
		return
	}
	dir, err := cells.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	neighbors, err := s.grid.Neighbors(cell.ID, dir)
	if err != nil {
		s.respondDomainError(w, r, "describe cell", err)
		return
	}

	center := cell.Bound.Center()
	resp := CellResponse{
		ID:        cell.ID,
		X:         cell.X,
		Y:         cell.Y,
		Bounds:    boundArray(cell.Bound),
		Center:    [2]float64{center.X(), center.Y()},
		Neighbors: neighbors,
	}
	if alert, ok := s.aggregator.AlertForCell(cell.ID); ok {
		a := alertResponse(alert)
		resp.Alert = &a
	}
	s.respondJSON(w, http.StatusOK, resp)
}
