/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_tv/internal/diag"
	"github.com/friendsincode/bragi_tv/internal/events"
	"github.com/friendsincode/bragi_tv/internal/logbuffer"
	"github.com/friendsincode/bragi_tv/internal/models"
	"github.com/friendsincode/bragi_tv/internal/playlist"
	"github.com/friendsincode/bragi_tv/internal/telemetry"
)

type fakeController struct {
	status  models.StatusSnapshot
	calls   []string
	jumpErr error
}

func (c *fakeController) Start() error { c.calls = append(c.calls, "start"); return nil }
func (c *fakeController) Stop() error  { c.calls = append(c.calls, "stop"); return nil }
func (c *fakeController) Skip() error  { c.calls = append(c.calls, "skip"); return nil }

func (c *fakeController) Jump(index int) error {
	c.calls = append(c.calls, "jump")
	return c.jumpErr
}

func (c *fakeController) Status() models.StatusSnapshot { return c.status }

type fakePlaylistView struct {
	entries  []models.PlaylistEntry
	reloaded bool
}

func (p *fakePlaylistView) Snapshot() []models.PlaylistEntry { return p.entries }
func (p *fakePlaylistView) Reload()                          { p.reloaded = true }

type fakeHistory struct {
	recs []models.PlayRecord
}

func (h *fakeHistory) RecentPlays(ctx context.Context, channel string, limit int) ([]models.PlayRecord, error) {
	return h.recs, nil
}

type fakeDiagnoser struct{ ran bool }

func (d *fakeDiagnoser) Run(ctx context.Context, reason string) diag.Report {
	d.ran = true
	return diag.Report{Healthy: true, RanAt: time.Now()}
}

type fixture struct {
	api        *API
	router     *chi.Mux
	controller *fakeController
	playlist   *fakePlaylistView
	diagnoser  *fakeDiagnoser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	controller := &fakeController{
		status: models.StatusSnapshot{Phase: models.PhaseStreaming, Running: true, ActiveItemName: "a.mp4"},
	}
	pl := &fakePlaylistView{entries: []models.PlaylistEntry{
		{Index: 0, Name: "a.mp4", Current: true},
		{Index: 1, Name: "b.mp4"},
	}}
	d := &fakeDiagnoser{}
	history := &fakeHistory{recs: []models.PlayRecord{{ItemName: "a.mp4", Outcome: "completed"}}}

	buf := logbuffer.New(16)
	buf.Add(logbuffer.LogEntry{Timestamp: time.Now(), Level: "info", Message: "hello"})

	a := New(controller, pl, history, d, "main", events.NewBus(), buf, zerolog.Nop())
	router := chi.NewRouter()
	a.Routes(router)
	return &fixture{api: a, router: router, controller: controller, playlist: pl, diagnoser: d}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["phase"] != "streaming" || body["active_item_name"] != "a.mp4" {
		t.Errorf("body = %v", body)
	}
}

func TestControlEndpoints(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path string
		want int
	}{
		{"/api/start", http.StatusAccepted},
		{"/api/stop", http.StatusOK},
		{"/api/skip", http.StatusAccepted},
	}
	for _, tt := range tests {
		if rec := f.do(t, http.MethodPost, tt.path); rec.Code != tt.want {
			t.Errorf("POST %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
	if got := strings.Join(f.controller.calls, ","); got != "start,stop,skip" {
		t.Errorf("controller calls = %s", got)
	}
}

func TestPlaylistEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/playlist")
	body := decode(t, rec)
	if body["total"].(float64) != 2 {
		t.Errorf("total = %v", body["total"])
	}

	if rec := f.do(t, http.MethodPost, "/api/playlist/reload"); rec.Code != http.StatusAccepted {
		t.Errorf("reload = %d", rec.Code)
	}
	if !f.playlist.reloaded {
		t.Error("reload not forwarded to playlist")
	}

	if rec := f.do(t, http.MethodPost, "/api/playlist/1/play"); rec.Code != http.StatusAccepted {
		t.Errorf("play = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/playlist/x/play"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad index = %d", rec.Code)
	}

	f.controller.jumpErr = playlist.ErrIndexOutOfRange
	if rec := f.do(t, http.MethodPost, "/api/playlist/9/play"); rec.Code != http.StatusNotFound {
		t.Errorf("out of range = %d", rec.Code)
	}
}

func TestLogsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/logs?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("logs = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["total"].(float64) != 1 {
		t.Errorf("total = %v", body["total"])
	}
}

func TestLogsSearch(t *testing.T) {
	f := newFixture(t)

	if body := decode(t, f.do(t, http.MethodGet, "/api/logs?q=hell")); body["total"].(float64) != 1 {
		t.Errorf("search hell total = %v, want 1", body["total"])
	}
	if body := decode(t, f.do(t, http.MethodGet, "/api/logs?q=nomatch")); body["total"].(float64) != 0 {
		t.Errorf("search nomatch total = %v, want 0", body["total"])
	}
}

func TestHistoryAndVersionAndHealth(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodGet, "/api/history"); rec.Code != http.StatusOK {
		t.Errorf("history = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/version"); rec.Code != http.StatusOK {
		t.Errorf("version = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
}

func TestDiagnoseEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/diagnose")
	if rec.Code != http.StatusOK {
		t.Fatalf("diagnose = %d", rec.Code)
	}
	if !f.diagnoser.ran {
		t.Error("diagnoser not invoked")
	}
}

func TestEventsSSESendsInitialStatus(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.router.ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SSE handler did not return after context cancellation")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: status") {
		t.Errorf("missing initial status event:\n%s", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}

func TestEventsSSEStreamsThroughMetricsMiddleware(t *testing.T) {
	f := newFixture(t)

	// Same middleware stack the server mounts; the wrapped writer
	// must still expose http.Flusher or the feed refuses to stream.
	router := chi.NewRouter()
	router.Use(telemetry.MetricsMiddleware)
	f.api.Routes(router)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SSE handler did not return after context cancellation")
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("events behind middleware = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "event: status") {
		t.Errorf("missing initial status event:\n%s", rec.Body.String())
	}
}
