/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, the playlist engine,
// the stream supervisor and the HTTP control surface into one process.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/bragi_tv/internal/api"
	"github.com/friendsincode/bragi_tv/internal/config"
	"github.com/friendsincode/bragi_tv/internal/db"
	"github.com/friendsincode/bragi_tv/internal/diag"
	"github.com/friendsincode/bragi_tv/internal/events"
	"github.com/friendsincode/bragi_tv/internal/logbuffer"
	"github.com/friendsincode/bragi_tv/internal/models"
	"github.com/friendsincode/bragi_tv/internal/playlist"
	"github.com/friendsincode/bragi_tv/internal/source"
	"github.com/friendsincode/bragi_tv/internal/state"
	"github.com/friendsincode/bragi_tv/internal/stream"
	"github.com/friendsincode/bragi_tv/internal/telemetry"
	"github.com/friendsincode/bragi_tv/internal/version"
)

// Server bundles the broadcast core and its HTTP control surface.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	database   *gorm.DB
	logBuffer  *logbuffer.Buffer
	bus        *events.Bus
	source     source.Source
	engine     *playlist.Engine
	supervisor *stream.Supervisor
	diagRunner *diag.Runner
	checker    *version.Checker
	api        *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		logBuffer: logBuf,
		bus:       events.NewBus(),
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	s.database = database
	s.DeferClose(func() error { return db.Close(database) })

	src, err := source.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	s.source = src

	store := state.NewStore(database, logger)

	s.engine = playlist.New(src, models.PlayMode(cfg.Playback.Mode), s.bus, 0, logger)
	if cfg.Playback.Resume {
		name, pos, ok, err := store.LoadProgress(context.Background(), cfg.Channel)
		if err != nil {
			logger.Warn().Err(err).Msg("could not load saved playback state")
		} else if ok {
			logger.Info().Str("item", name).Float64("position", pos).Msg("resuming previous playback")
			s.engine.Restore(name, pos)
		}
	}

	s.diagRunner = diag.NewRunner(cfg.Output.DestinationURL, src, s.bus, logger)

	runner := &stream.FFmpegRunner{Bin: cfg.FFmpegBin, Logger: logger}
	s.supervisor = stream.New(
		stream.Options{
			Channel:     cfg.Channel,
			Output:      cfg.Output,
			Autostart:   cfg.Playback.Autostart,
			MaxRetries:  cfg.Reconnect.MaxRetries,
			BackoffBase: cfg.BackoffBase(),
			BackoffCap:  cfg.BackoffCap(),
			StopGrace:   cfg.StopGrace(),
		},
		s.engine,
		src,
		runner,
		store,
		s.bus,
		func(reason string) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.diagRunner.Run(ctx, reason)
		},
		logger,
	)

	s.checker = version.NewChecker(logger)

	s.api = api.New(s.supervisor, s.engine, store, s.diagRunner, cfg.Channel, s.bus, logBuf, logger)

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.startBackgroundWorkers()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.TracingMiddleware("bragi-tv-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The event feed holds connections open; everything else times out.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" || r.URL.Path == "/api/events" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	s.api.Routes(router)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

// HTTPServer returns the configured HTTP server.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// Supervisor exposes the stream supervisor for commands.
func (s *Server) Supervisor() *stream.Supervisor { return s.supervisor }

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("stream supervisor exited")
		}
	}()

	s.checker.Start(ctx)
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.checker.Stop()
	s.bgWG.Wait()

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
