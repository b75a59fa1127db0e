// Package httpapi serves the appliance control surface: health checks,
// metrics, device snapshots and attribute writes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/appliance"
	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/device"
)

// Devices is the registry view the server needs.
type Devices interface {
	Get(id string) (*appliance.Appliance, bool)
	List() []*appliance.Appliance
	Ready() bool
}

// Server exposes the registry over HTTP.
type Server struct {
	addr       string
	devices    Devices
	metrics    http.Handler
	httpServer *http.Server
}

// NewServer creates a server. metrics may be nil, in which case /metrics
// is not registered.
func NewServer(host string, port int, devices Devices, metrics http.Handler) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		devices: devices,
		metrics: metrics,
	}
}

// Handler builds the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("GET /devices", s.handleList)
	mux.HandleFunc("GET /devices/{id}", s.handleGet)
	mux.HandleFunc("PUT /devices/{id}/attributes/{key}", s.handleSetAttribute)
	mux.HandleFunc("PUT /devices/{id}/control", s.handleControl)
	return mux
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting HTTP API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.devices.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for devices"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	list := s.devices.List()
	out := make([]deviceView, 0, len(list))
	for _, a := range list {
		out = append(out, viewOf(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(a))
}

type valueRequest struct {
	Value *device.Value `json:"value"`
}

func (s *Server) handleSetAttribute(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	key := device.Key(r.PathValue("key"))

	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"value\": <bool|number>}")
		return
	}

	if r.URL.Query().Get("debounce") == "1" {
		// Debounced writes resolve later, so validate now to fail fast.
		if err := precheck(a.Snapshot(), key, *req.Value); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		a.Control(key).Call(*req.Value)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	res, err := a.SetAttribute(r.Context(), key, *req.Value)
	if err != nil {
		log.Warn().Err(err).
			Str("device", a.ID()).
			Str("key", string(key)).
			Msg("Attribute write failed")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resultOf(res))
}

type controlRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	loop := a.HumidityControl()
	if loop == nil {
		writeError(w, http.StatusConflict, "device has no humidity control")
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"enabled\": <bool>}")
		return
	}
	loop.SetEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": loop.Enabled()})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*appliance.Appliance, bool) {
	id := r.PathValue("id")
	a, ok := s.devices.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("device %s not found", id))
		return nil, false
	}
	return a, true
}

func precheck(snap device.Snapshot, key device.Key, value device.Value) error {
	current, ok := snap.Get(key)
	if !ok || !key.IsKnown() {
		return command.ErrUnknownAttribute
	}
	if !current.SameKind(value) || !key.Accepts(value) {
		return command.ErrInvalidValue
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, command.ErrUnknownAttribute):
		return http.StatusNotFound
	case errors.Is(err, command.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, command.ErrProposalAbandoned):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
