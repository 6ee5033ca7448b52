// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/xrcap/internal/health"
	"github.com/ManuGH/xrcap/internal/session"
	"github.com/ManuGH/xrcap/internal/verification"
)

type fakeRecorder struct {
	mu       sync.Mutex
	state    session.State
	active   session.Active
	lastName string
	startErr error
	stopErr  error
}

func (f *fakeRecorder) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeRecorder) Current() (session.Active, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.state == session.StateRecording
}

func (f *fakeRecorder) CaptureRate() float64 { return 3 }

func (f *fakeRecorder) Start(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	if f.state != session.StateIdle {
		return "", session.ErrNotIdle
	}
	if name == "" {
		name = "20250101_000000"
	}
	f.lastName = name
	f.state = session.StateRecording
	f.active = session.Active{ID: "id-1", Name: name}
	return name, nil
}

func (f *fakeRecorder) Stop(context.Context) (session.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != session.StateRecording {
		return session.Summary{}, session.ErrNotRecording
	}
	f.state = session.StateIdle
	sum := session.Summary{ID: f.active.ID, Name: f.active.Name, Status: session.StatusComplete}
	if f.stopErr != nil {
		sum.Status = session.StatusFailed
		sum.Errors = []string{f.stopErr.Error()}
	}
	return sum, f.stopErr
}

type fakeJournal struct {
	list      []session.Summary
	err       error
	lastLimit int
}

func (f *fakeJournal) List(_ context.Context, limit int) ([]session.Summary, error) {
	f.lastLimit = limit
	return f.list, f.err
}

func newTestServer(t *testing.T, rec *fakeRecorder, deps Deps) *Server {
	t.Helper()
	deps.Recorder = rec
	srv, err := New(Config{Version: "test", RateLimit: 0}, deps)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestNew_RequiresRecorder(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestRecordingLifecycle(t *testing.T) {
	rec := &fakeRecorder{state: session.StateIdle}
	h := newTestServer(t, rec, Deps{}).Handler()

	resp := do(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, resp.Code)
	st := decode[StatusResponse](t, resp)
	assert.Equal(t, session.StateIdle, st.State)
	assert.Nil(t, st.Current)
	assert.Equal(t, 3.0, st.CaptureRateHz)

	resp = do(t, h, http.MethodPost, "/api/v1/recordings", `{"name":"scan-1"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "scan-1", decode[StartResponse](t, resp).Name)

	resp = do(t, h, http.MethodPost, "/api/v1/recordings", "")
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "not_idle", decode[ErrorResponse](t, resp).Error)

	st = decode[StatusResponse](t, do(t, h, http.MethodGet, "/api/v1/status", ""))
	require.NotNil(t, st.Current)
	assert.Equal(t, "scan-1", st.Current.Name)

	resp = do(t, h, http.MethodPost, "/api/v1/recordings/stop", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, session.StatusComplete, decode[session.Summary](t, resp).Status)

	resp = do(t, h, http.MethodPost, "/api/v1/recordings/stop", "")
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "not_recording", decode[ErrorResponse](t, resp).Error)
}

func TestStartRecording_EmptyBodyDerivesName(t *testing.T) {
	rec := &fakeRecorder{state: session.StateIdle}
	h := newTestServer(t, rec, Deps{}).Handler()

	resp := do(t, h, http.MethodPost, "/api/v1/recordings", "")
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "20250101_000000", rec.lastName)
}

func TestStartRecording_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"unknown field", `{"nom":"x"}`, nil, http.StatusBadRequest, "invalid_body"},
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid_body"},
		{"invalid name", `{"name":"../x"}`, session.ErrInvalidName, http.StatusBadRequest, "invalid_name"},
		{"exists", `{"name":"a"}`, session.ErrSessionExists, http.StatusConflict, "session_exists"},
		{"internal", `{}`, errors.New("disk full"), http.StatusInternalServerError, "start_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{state: session.StateIdle, startErr: tt.err}
			resp := do(t, newTestServer(t, rec, Deps{}).Handler(), http.MethodPost, "/api/v1/recordings", tt.body)
			assert.Equal(t, tt.status, resp.Code)
			body := decode[ErrorResponse](t, resp)
			assert.Equal(t, tt.code, body.Error)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestStopRecording_StreamErrorsStillReturnSummary(t *testing.T) {
	rec := &fakeRecorder{state: session.StateRecording, active: session.Active{ID: "id-9", Name: "s"}, stopErr: errors.New("camera drain timeout")}
	resp := do(t, newTestServer(t, rec, Deps{}).Handler(), http.MethodPost, "/api/v1/recordings/stop", "")
	require.Equal(t, http.StatusOK, resp.Code)
	sum := decode[session.Summary](t, resp)
	assert.Equal(t, session.StatusFailed, sum.Status)
	assert.Equal(t, []string{"camera drain timeout"}, sum.Errors)
}

func TestListRecordings(t *testing.T) {
	j := &fakeJournal{list: []session.Summary{{ID: "b"}, {ID: "a"}}}
	h := newTestServer(t, &fakeRecorder{state: session.StateIdle}, Deps{Journal: j}).Handler()

	resp := do(t, h, http.MethodGet, "/api/v1/recordings", "")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[[]session.Summary](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, 50, j.lastLimit)

	do(t, h, http.MethodGet, "/api/v1/recordings?limit=100000", "")
	assert.Equal(t, maxListLimit, j.lastLimit)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/recordings?limit=-1", "").Code)

	j.list, j.err = nil, errors.New("database is locked")
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/v1/recordings", "").Code)
}

func TestListRecordings_EmptyIsArray(t *testing.T) {
	h := newTestServer(t, &fakeRecorder{state: session.StateIdle}, Deps{Journal: &fakeJournal{}}).Handler()
	resp := do(t, h, http.MethodGet, "/api/v1/recordings", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, "[]", resp.Body.String())
}

func TestListRecordings_JournalDisabled(t *testing.T) {
	h := newTestServer(t, &fakeRecorder{state: session.StateIdle}, Deps{}).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/recordings", "").Code)
}

func TestGetVerification(t *testing.T) {
	store := verification.NewStore()
	store.Put(verification.Report{Version: 1, Session: "s1"})
	store.Put(verification.Report{Version: 1, Session: "s2", Detected: true})
	h := newTestServer(t, &fakeRecorder{state: session.StateIdle}, Deps{Reports: store}).Handler()

	resp := do(t, h, http.MethodGet, "/api/v1/recordings/s1/verification", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "s1", decode[verification.Report](t, resp).Session)

	resp = do(t, h, http.MethodGet, "/api/v1/recordings/latest/verification", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[verification.Report](t, resp).Detected)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/recordings/nope/verification", "").Code)
}

func TestProbesAndMetrics(t *testing.T) {
	hm := health.NewManager("test")
	h := newTestServer(t, &fakeRecorder{state: session.StateIdle}, Deps{Health: hm}).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	resp := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "xrcap_http_request_duration_seconds")
}

func TestRateLimit(t *testing.T) {
	rec := &fakeRecorder{state: session.StateIdle}
	srv, err := New(Config{RateLimit: 2}, Deps{Recorder: rec})
	require.NoError(t, err)
	h := srv.Handler()

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/status", "").Code)
	}
	resp := do(t, h, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "60", resp.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code, "probes are not limited")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := newTestServer(t, &fakeRecorder{state: session.StateIdle}, Deps{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/api/v1/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
