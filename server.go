package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"

	"i4.energy/lab/pumpctl/proto"
	"i4.energy/lab/pumpctl/pump"
	"i4.energy/lab/pumpctl/scale"
	"i4.energy/lab/pumpctl/transport"
)

// Server handles incoming HTTP requests for interacting with the
// configured pumps and scale
type Server struct {
	Logger *slog.Logger
	Pumps  map[int]*pump.Pump
	// Scale is nil when no load cell is configured
	Scale *scale.Scale
	// Metrics serves /metrics when set
	Metrics http.Handler
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}

	mux.HandleFunc("GET /pumps", s.handleListPumps)
	mux.HandleFunc("GET /pumps/{addr}", s.withPump(s.handlePumpState))
	mux.HandleFunc("POST /pumps/{addr}/run", s.withPump(s.action((*pump.Pump).Start)))
	mux.HandleFunc("POST /pumps/{addr}/stop", s.withPump(s.action((*pump.Pump).Stop)))
	mux.HandleFunc("POST /pumps/{addr}/reverse", s.withPump(s.action((*pump.Pump).ReverseDirection)))
	mux.HandleFunc("POST /pumps/{addr}/clear-volume", s.withPump(s.action((*pump.Pump).ClearVolumeAccumulated)))
	mux.HandleFunc("POST /pumps/{addr}/clear-target", s.withPump(s.action((*pump.Pump).ClearTarget)))
	mux.HandleFunc("PUT /pumps/{addr}/rate", s.withPump(s.handleRate))
	mux.HandleFunc("PUT /pumps/{addr}/diameter", s.withPump(s.handleValue((*pump.Pump).SetDiameter)))
	mux.HandleFunc("PUT /pumps/{addr}/target", s.withPump(s.handleValue((*pump.Pump).SetTargetVolume)))
	mux.HandleFunc("PUT /pumps/{addr}/direction", s.withPump(s.handleDirection))
	mux.HandleFunc("PUT /pumps/{addr}/mode", s.withPump(s.handleMode))

	mux.HandleFunc("POST /scale/tare", s.handleTare)
	mux.HandleFunc("GET /scale/reading", s.handleReading)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	s.sendJSON(w, resp, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// sendDeviceError reports a driver error with a status code matching its
// cause.
func (s *Server) sendDeviceError(w http.ResponseWriter, err error) {
	s.sendError(w, err.Error(), errorStatus(err))
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, proto.ErrValueRange),
		errors.Is(err, proto.ErrInvalidUnit),
		errors.Is(err, proto.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, transport.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, proto.ErrFraming),
		errors.Is(err, proto.ErrNoPrompt),
		errors.Is(err, proto.ErrDecode),
		errors.Is(err, scale.ErrPromptTimeout),
		errors.Is(err, scale.ErrNoReading),
		errors.Is(err, scale.ErrDecode):
		return http.StatusBadGateway
	case errors.Is(err, pump.ErrAlreadyClosed),
		errors.Is(err, scale.ErrAlreadyClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// PumpStatus is the cached state of one pump.
type PumpStatus struct {
	Address int          `json:"address"`
	Status  proto.Status `json:"status"`
}

// PumpState is a full read of one pump's settings.
type PumpState struct {
	PumpStatus
	FlowRate          float64    `json:"flow_rate"`
	Unit              proto.Unit `json:"unit"`
	Mode              string     `json:"mode"`
	Diameter          float64    `json:"diameter"`
	TargetVolume      float64    `json:"target_volume"`
	VolumeAccumulated float64    `json:"volume_accumulated"`
}

func statusOf(p *pump.Pump) PumpStatus {
	return PumpStatus{Address: p.Address(), Status: p.Status()}
}

func (s *Server) handleListPumps(w http.ResponseWriter, r *http.Request) {
	resp := []PumpStatus{}
	for _, addr := range slices.Sorted(maps.Keys(s.Pumps)) {
		resp = append(resp, statusOf(s.Pumps[addr]))
	}
	s.sendJSON(w, resp, http.StatusOK)
}

type pumpHandler func(w http.ResponseWriter, r *http.Request, p *pump.Pump)

// withPump resolves the {addr} path value to a configured pump.
func (s *Server) withPump(h pumpHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := strconv.Atoi(r.PathValue("addr"))
		if err != nil {
			s.sendError(w, "pump address must be an integer", http.StatusBadRequest)
			return
		}
		p, ok := s.Pumps[addr]
		if !ok {
			s.sendError(w, "unknown pump", http.StatusNotFound)
			return
		}
		h(w, r, p)
	}
}

func (s *Server) handlePumpState(w http.ResponseWriter, r *http.Request, p *pump.Pump) {
	ctx := r.Context()
	var state PumpState
	var err error

	if state.FlowRate, state.Unit, err = p.FlowRate(ctx); err != nil {
		s.pumpFailed(w, p, "read flow rate", err)
		return
	}
	if state.Mode, err = p.Mode(ctx); err != nil {
		s.pumpFailed(w, p, "read mode", err)
		return
	}
	if state.Diameter, err = p.Diameter(ctx); err != nil {
		s.pumpFailed(w, p, "read diameter", err)
		return
	}
	if state.TargetVolume, err = p.TargetVolume(ctx); err != nil {
		s.pumpFailed(w, p, "read target volume", err)
		return
	}
	if state.VolumeAccumulated, err = p.VolumeAccumulated(ctx); err != nil {
		s.pumpFailed(w, p, "read accumulated volume", err)
		return
	}
	state.PumpStatus = statusOf(p)
	s.sendJSON(w, state, http.StatusOK)
}

// action adapts a no-argument pump command to a handler.
func (s *Server) action(fn func(*pump.Pump, context.Context) error) pumpHandler {
	return func(w http.ResponseWriter, r *http.Request, p *pump.Pump) {
		if err := fn(p, r.Context()); err != nil {
			s.pumpFailed(w, p, "command", err)
			return
		}
		s.sendJSON(w, statusOf(p), http.StatusOK)
	}
}

func (s *Server) handleValue(fn func(*pump.Pump, context.Context, float64) error) pumpHandler {
	return func(w http.ResponseWriter, r *http.Request, p *pump.Pump) {
		var req struct {
			Value *float64 `json:"value"`
		}
		if !s.decode(w, r, &req) {
			return
		}
		if req.Value == nil {
			s.sendError(w, "'value' field is required", http.StatusBadRequest)
			return
		}
		if err := fn(p, r.Context(), *req.Value); err != nil {
			s.pumpFailed(w, p, "set value", err)
			return
		}
		s.sendJSON(w, statusOf(p), http.StatusOK)
	}
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request, p *pump.Pump) {
	var req struct {
		Value *float64 `json:"value"`
		Unit  string   `json:"unit"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Value == nil || req.Unit == "" {
		s.sendError(w, "both 'value' and 'unit' fields are required", http.StatusBadRequest)
		return
	}

	value, unit, err := proto.NormalizeRate(*req.Value, req.Unit)
	if err != nil {
		s.sendDeviceError(w, err)
		return
	}
	if err := p.SetFlowRate(r.Context(), value, unit); err != nil {
		s.pumpFailed(w, p, "set flow rate", err)
		return
	}
	s.Logger.Info("Flow rate set", "pump", p.Address(), "value", value, "unit", unit)
	s.sendJSON(w, statusOf(p), http.StatusOK)
}

func (s *Server) handleDirection(w http.ResponseWriter, r *http.Request, p *pump.Pump) {
	var req struct {
		Forward *bool `json:"forward"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Forward == nil {
		s.sendError(w, "'forward' field is required", http.StatusBadRequest)
		return
	}
	if err := p.SetDirection(r.Context(), *req.Forward); err != nil {
		s.pumpFailed(w, p, "set direction", err)
		return
	}
	s.sendJSON(w, statusOf(p), http.StatusOK)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request, p *pump.Pump) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	mode, err := proto.ParseMode(req.Mode)
	if err != nil {
		s.sendDeviceError(w, err)
		return
	}
	if err := p.SetMode(r.Context(), mode); err != nil {
		s.pumpFailed(w, p, "set mode", err)
		return
	}
	s.sendJSON(w, statusOf(p), http.StatusOK)
}

func (s *Server) handleTare(w http.ResponseWriter, r *http.Request) {
	if s.Scale == nil {
		s.sendError(w, "no scale configured", http.StatusNotFound)
		return
	}
	reading, err := s.Scale.Tare(r.Context())
	if err != nil {
		s.Logger.Error("Failed to tare scale", "error", err)
		s.sendDeviceError(w, err)
		return
	}
	s.sendJSON(w, reading, http.StatusOK)
}

func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	if s.Scale == nil {
		s.sendError(w, "no scale configured", http.StatusNotFound)
		return
	}
	reading, err := s.Scale.Reading(r.Context())
	if err != nil {
		s.sendDeviceError(w, err)
		return
	}
	s.sendJSON(w, reading, http.StatusOK)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) pumpFailed(w http.ResponseWriter, p *pump.Pump, what string, err error) {
	s.Logger.Error("Pump request failed", "pump", p.Address(), "request", what, "error", err)
	s.sendDeviceError(w, err)
}
