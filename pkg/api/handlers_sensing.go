package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dd0wney/echoaid/pkg/logging"
	"github.com/dd0wney/echoaid/pkg/sensing"
	"github.com/dd0wney/echoaid/pkg/validation"
)

// handleShaking accepts one device report. Reports are limited per device
// id, or per client address for anonymous devices.
func (s *Server) handleShaking(w http.ResponseWriter, r *http.Request) {
	var req validation.ShakingRequest
	decoder := s.NewRequestDecoder(w, r)
	decoder.DecodeJSON(&req).Validate(func() error { return validation.ValidateShakingRequest(&req) })
	if decoder.RespondError() {
		return
	}

	if s.deviceLimiter != nil {
		key := "device:" + req.DeviceID
		if req.DeviceID == "" {
			key = "addr:" + s.proxies.ClientIP(r)
		}
		if !s.deviceLimiter.Allow(key) {
			s.metricsRegistry.ReportsRateLimited.Inc()
			s.logger.Debug("shaking report rate limited", logging.Device(req.DeviceID))
			w.Header().Set("Retry-After", strconv.Itoa(s.deviceLimiter.RetryAfter()))
			s.respondError(w, http.StatusTooManyRequests, "too many reports from this device")
			return
		}
	}

	ev := sensing.Event{
		LocationCell: req.LocationCell,
		Intensity:    req.Intensity,
		DeviceID:     req.DeviceID,
		Features:     req.Features,
	}
	if req.Timestamp > 0 {
		ev.Timestamp = time.UnixMilli(req.Timestamp)
	}

	outcome, err := s.evacuation.ReportShaking(r.Context(), ev)
	if err != nil {
		s.respondDomainError(w, r, "report shaking", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, ShakingResponse{
		Event:     eventResponse(outcome.Receipt.Event),
		Alert:     alertPtr(outcome.Receipt.Alert),
		Evacuated: outcome.Evacuated,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.aggregator.Alerts()
	out := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertResponse(a))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCellAlert(w http.ResponseWriter, r *http.Request) {
	cell := r.PathValue("cell")
	if _, err := s.grid.Parse(cell); err != nil {
		s.respondDomainError(w, r, "get alert", err)
		return
	}
	alert, ok := s.aggregator.AlertForCell(cell)
	if !ok {
		s.respondError(w, http.StatusNotFound, "no active alert for "+cell)
		return
	}
	s.respondJSON(w, http.StatusOK, alertResponse(alert))
}

// handleEvents returns recent reports, optionally for one ?cell= and at
// most ?limit= of them.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	cell := r.URL.Query().Get("cell")
	if cell != "" {
		if _, err := s.grid.Parse(cell); err != nil {
			s.respondDomainError(w, r, "list events", err)
			return
		}
	}
	limit, err := queryInt(r, "limit", sensing.DefaultRecentLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, eventResponses(s.aggregator.RecentEvents(cell, limit)))
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.aggregator.ActiveDevices()
	out := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceResponse{ID: d.ID, LastSeen: millis(d.LastSeen)})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSensingStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.aggregator.Stats())
}

func (s *Server) handleSensingConfig(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.aggregator.Config())
}

// handleUpdateSensingConfig merges a partial config; durations are
// milliseconds.
func (s *Server) handleUpdateSensingConfig(w http.ResponseWriter, r *http.Request) {
	var patch sensing.ConfigPatch
	decoder := s.NewRequestDecoder(w, r)
	if decoder.DecodeJSON(&patch).RespondError() {
		return
	}

	cfg, err := s.aggregator.SetConfig(patch)
	if err != nil {
		s.respondDomainError(w, r, "update sensing config", err)
		return
	}
	s.respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSensingReset(w http.ResponseWriter, r *http.Request) {
	s.aggregator.Reset()
	s.logger.Warn("sensing state reset")
	s.respondJSON(w, http.StatusOK, s.aggregator.Stats())
}

// handleSimulate injects a drill earthquake. Every field is optional.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req validation.SimulateRequest
	decoder := s.NewRequestDecoder(w, r)
	decoder.DecodeOptionalJSON(&req).Validate(func() error { return validation.ValidateSimulateRequest(&req) })
	if decoder.RespondError() {
		return
	}

	sim, err := s.evacuation.SimulateQuake(r.Context(), req.Cell, req.Devices, req.Intensity)
	if err != nil {
		s.respondDomainError(w, r, "simulate quake", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, SimulationResponse{
		Cell:      sim.Cell,
		Events:    eventResponses(sim.Events),
		Alert:     alertPtr(sim.Alert),
		Evacuated: sim.Evacuated,
	})
}
