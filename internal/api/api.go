/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the control surface over HTTP: status, playlist
// inspection, start/stop/skip, logs and a live event feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_tv/internal/diag"
	"github.com/friendsincode/bragi_tv/internal/events"
	"github.com/friendsincode/bragi_tv/internal/logbuffer"
	"github.com/friendsincode/bragi_tv/internal/models"
	"github.com/friendsincode/bragi_tv/internal/playlist"
	"github.com/friendsincode/bragi_tv/internal/version"
)

// Controller is the slice of the stream supervisor the API drives.
type Controller interface {
	Start() error
	Stop() error
	Skip() error
	Jump(index int) error
	Status() models.StatusSnapshot
}

// PlaylistView exposes deck inspection and reload.
type PlaylistView interface {
	Snapshot() []models.PlaylistEntry
	Reload()
}

// History reads play records.
type History interface {
	RecentPlays(ctx context.Context, channel string, limit int) ([]models.PlayRecord, error)
}

// Diagnoser runs an on-demand diagnosis.
type Diagnoser interface {
	Run(ctx context.Context, reason string) diag.Report
}

// API exposes HTTP handlers.
type API struct {
	controller Controller
	playlist   PlaylistView
	history    History
	diagnoser  Diagnoser
	channel    string
	bus        *events.Bus
	logBuffer  *logbuffer.Buffer
	logger     zerolog.Logger
}

// New creates the API handler set.
func New(controller Controller, playlist PlaylistView, history History, diagnoser Diagnoser, channel string, bus *events.Bus, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		controller: controller,
		playlist:   playlist,
		history:    history,
		diagnoser:  diagnoser,
		channel:    channel,
		bus:        bus,
		logBuffer:  logBuf,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers all endpoints on the router.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Get("/version", a.handleVersion)
		r.Get("/logs", a.handleLogs)
		r.Get("/history", a.handleHistory)

		r.Post("/start", a.handleStart)
		r.Post("/stop", a.handleStop)
		r.Post("/skip", a.handleSkip)
		r.Post("/diagnose", a.handleDiagnose)

		r.Get("/playlist", a.handlePlaylist)
		r.Post("/playlist/reload", a.handlePlaylistReload)
		r.Post("/playlist/{index}/play", a.handlePlaylistPlay)

		r.Get("/events", a.handleEventsSSE)
		r.Get("/events/ws", a.handleEventsWS)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.controller.Status())
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": version.Version,
		"channel": a.channel,
	})
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := a.controller.Start(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "starting"})
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := a.controller.Stop(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	if err := a.controller.Skip(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "skipping"})
}

func (a *API) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	if a.diagnoser == nil {
		writeError(w, http.StatusServiceUnavailable, "diagnosis not configured")
		return
	}
	writeJSON(w, http.StatusOK, a.diagnoser.Run(r.Context(), "api"))
}

func (a *API) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	entries := a.playlist.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(entries),
		"entries": entries,
	})
}

func (a *API) handlePlaylistReload(w http.ResponseWriter, r *http.Request) {
	a.playlist.Reload()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reload scheduled"})
}

func (a *API) handlePlaylistPlay(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	if err := a.controller.Jump(index); err != nil {
		if errors.Is(err, playlist.ErrIndexOutOfRange) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "jumping", "index": index})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log buffer not configured")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	var entries []logbuffer.LogEntry
	if q := r.URL.Query().Get("q"); q != "" {
		entries = a.logBuffer.Search(q, limit)
	} else {
		entries = a.logBuffer.Recent(limit, r.URL.Query().Get("level"))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(entries),
		"entries": entries,
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	recs, err := a.history.RecentPlays(r.Context(), a.channel, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plays": recs})
}

// busEvent is the wire form of one event on the feed endpoints.
type busEvent struct {
	Type    string         `json:"type"`
	Payload events.Payload `json:"payload"`
	At      time.Time      `json:"at"`
}

var feedTypes = []events.EventType{
	events.EventStatus,
	events.EventNowPlaying,
	events.EventStreamError,
	events.EventPlaylistReloaded,
	events.EventDiagnosis,
}

// subscribeAll fans all feed event types into one channel. The
// returned stop function must be called before abandoning the channel.
func (a *API) subscribeAll() (<-chan busEvent, func()) {
	out := make(chan busEvent, 32)
	stop := make(chan struct{})

	var stops []func()
	for _, et := range feedTypes {
		et := et
		sub := a.bus.Subscribe(et)
		go func() {
			for {
				select {
				case <-stop:
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					select {
					case out <- busEvent{Type: string(et), Payload: payload, At: time.Now()}:
					default:
					}
				}
			}
		}()
		stops = append(stops, func() { a.bus.Unsubscribe(et, sub) })
	}

	return out, func() {
		close(stop)
		for _, fn := range stops {
			fn()
		}
	}
}

func (a *API) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	feed, stopFeed := a.subscribeAll()
	defer stopFeed()

	// Initial status so clients render immediately.
	a.writeSSE(w, busEvent{Type: string(events.EventStatus), Payload: statusPayload(a.controller.Status()), At: time.Now()})
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case ev := <-feed:
			a.writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func (a *API) writeSSE(w http.ResponseWriter, ev busEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + ev.Type + "\ndata: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}

func statusPayload(st models.StatusSnapshot) events.Payload {
	return events.Payload{
		"phase": string(st.Phase),
		"item":  st.ActiveItemName,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
