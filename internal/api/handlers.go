package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/spectrum"
	"github.com/roman-kulish/spectrum-streamer/internal/storage"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

// maxBodySize bounds cycle configuration requests
const maxBodySize = 1 << 20

// StatusResponse is returned by the status and cycle control endpoints
type StatusResponse struct {
	Status  sdr.Status       `json:"status"`
	Cycle   *sweep.CycleInfo `json:"cycle,omitempty"`
	Device  string           `json:"device"`
	Dropped uint64           `json:"droppedEvents"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleStartCycle(w http.ResponseWriter, r *http.Request) {
	s.controlCycle(w, r, http.StatusCreated, s.engine.StartCycle)
}

func (s *Server) handleRestartCycle(w http.ResponseWriter, r *http.Request) {
	s.controlCycle(w, r, http.StatusOK, s.engine.RestartCycle)
}

func (s *Server) controlCycle(w http.ResponseWriter, r *http.Request, code int, fn func(ctx context.Context, config sweep.CycleConfig) error) {
	var config sweep.CycleConfig
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&config); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid JSON: %s", err.Error())})
		return
	}

	if err := fn(r.Context(), config); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, code, s.status())
}

func (s *Server) handleStopSweep(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StopSweep(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status())
}

// handleSamples returns the buffered samples in arrival order, optionally
// only the last ?limit=N
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	samples := s.engine.Replay()

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid limit '%s'", v)})
			return
		}
		if limit < len(samples) {
			samples = samples[len(samples)-limit:]
		}
	}

	if samples == nil {
		samples = []*sdr.Sample{}
	}
	s.writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		var err error
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid limit '%s'", v)})
			return
		}
	}

	cycles, err := s.journal.Cycles(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if cycles == nil {
		cycles = []*spectrum.CycleRecord{}
	}
	s.writeJSON(w, http.StatusOK, cycles)
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := s.journal.Cycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, cycle)
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.journal.Cycle(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	entries, err := s.journal.Entries(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if entries == nil {
		entries = []*spectrum.JournalEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		Status:  s.engine.Status(),
		Device:  s.engine.Device(),
		Dropped: s.engine.Dropped(),
	}
	if info, ok := s.engine.LastCycle(); ok {
		resp.Cycle = &info
	}
	return resp
}

// writeError maps control and storage errors to HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		invalid *sweep.InvalidConfigError
		spawn   *sweep.SpawnError
	)

	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &invalid):
		code = http.StatusBadRequest
	case errors.Is(err, sweep.ErrAlreadyRunning):
		code = http.StatusConflict
	case errors.As(err, &spawn):
		code = http.StatusBadGateway
	case errors.Is(err, sweep.ErrEngineNotRunning):
		code = http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	}

	if code == http.StatusInternalServerError {
		s.logger.Error(err.Error())
	}

	s.writeJSON(w, code, ErrorResponse{Error: err.Error(), Kind: spectrum.ErrorKind(err)})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(fmt.Sprintf("writing response: %s", err.Error()), slog.Int("status", code))
	}
}
