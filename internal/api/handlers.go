// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/xrcap/internal/log"
	"github.com/ManuGH/xrcap/internal/session"
	"github.com/ManuGH/xrcap/internal/verification"
)

const maxListLimit = 500

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	State         session.State   `json:"state"`
	CaptureRateHz float64         `json:"capture_rate_hz"`
	Version       string          `json:"version,omitempty"`
	Current       *session.Active `json:"current,omitempty"`
}

// StartRequest is the optional body of POST /api/v1/recordings.
type StartRequest struct {
	Name string `json:"name"`
}

// StartResponse is returned when a recording starts.
type StartResponse struct {
	Name string `json:"name"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		State:         s.deps.Recorder.State(),
		CaptureRateHz: s.deps.Recorder.CaptureRate(),
		Version:       s.cfg.Version,
	}
	if cur, ok := s.deps.Recorder.Current(); ok {
		resp.Current = &cur
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, 4096))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}

	name, err := s.deps.Recorder.Start(r.Context(), req.Name)
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusCreated, StartResponse{Name: name})
	case errors.Is(err, session.ErrNotIdle):
		writeError(w, r, http.StatusConflict, "not_idle", err)
	case errors.Is(err, session.ErrInvalidName):
		writeError(w, r, http.StatusBadRequest, "invalid_name", err)
	case errors.Is(err, session.ErrSessionExists):
		writeError(w, r, http.StatusConflict, "session_exists", err)
	default:
		writeError(w, r, http.StatusInternalServerError, "start_failed", err)
	}
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Recorder.Stop(r.Context())
	switch {
	case errors.Is(err, session.ErrNotRecording):
		writeError(w, r, http.StatusConflict, "not_recording", err)
	case err != nil && summary.ID == "":
		writeError(w, r, http.StatusInternalServerError, "stop_failed", err)
	default:
		// Stream errors are reported inside the summary; the session is
		// still stopped.
		writeJSON(w, r, http.StatusOK, summary)
	}
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeError(w, r, http.StatusNotFound, "journal_disabled", errors.New("session journal is disabled"))
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}
	list, err := s.deps.Journal.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "journal_error", err)
		return
	}
	if list == nil {
		list = []session.Summary{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		writeError(w, r, http.StatusNotFound, "verification_disabled", errors.New("verification is disabled"))
		return
	}
	name := chi.URLParam(r, "name")
	var (
		rep verification.Report
		ok  bool
	)
	if name == "latest" {
		rep, ok = s.deps.Reports.Last()
	} else {
		rep, ok = s.deps.Reports.Get(name)
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", errors.New("no report for session"))
		return
	}
	writeJSON(w, r, http.StatusOK, rep)
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("event", "api.encode_error").Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	if status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("event", "api.error").Str("code", code).Msg("request failed")
	}
	writeJSON(w, r, status, ErrorResponse{
		Error:     code,
		Detail:    err.Error(),
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}
