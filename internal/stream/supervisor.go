/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_tv/internal/config"
	"github.com/friendsincode/bragi_tv/internal/events"
	"github.com/friendsincode/bragi_tv/internal/models"
	"github.com/friendsincode/bragi_tv/internal/source"
	"github.com/friendsincode/bragi_tv/internal/telemetry"
)

// ErrBusy indicates the control loop did not accept a command in time.
var ErrBusy = errors.New("stream supervisor busy")

// Playlist is the slice of the playlist engine the supervisor drives.
type Playlist interface {
	Next(ctx context.Context) (models.MediaItem, error)
	ConsumeResumePosition(item models.MediaItem) float64
	JumpTo(index int) error
	Total() int
}

// Resolver re-resolves a listed item into a playable input.
type Resolver interface {
	Resolve(ctx context.Context, item models.MediaItem) (source.Input, error)
}

// StateStore persists playback position and history.
type StateStore interface {
	SaveProgress(ctx context.Context, channel, itemName string, position float64) error
	RecordPlay(ctx context.Context, rec models.PlayRecord) error
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdSkip
)

type command struct {
	kind  cmdKind
	reply chan error
}

// Options bounds the supervisor's retry and shutdown behavior.
type Options struct {
	Channel     string
	Output      config.OutputConfig
	Autostart   bool
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	StopGrace   time.Duration
	// DiagCooldown limits how often failures trigger a diagnosis run.
	DiagCooldown time.Duration
}

// Supervisor owns the transcoder lifecycle: it pulls items from the
// playlist, launches one ffmpeg per item, classifies every exit and
// keeps the broadcast up across transient failures with bounded
// exponential backoff. All state transitions happen on the Run
// goroutine; control surfaces talk to it through a command channel.
type Supervisor struct {
	opts     Options
	playlist Playlist
	resolver Resolver
	runner   Runner
	store    StateStore
	bus      *events.Bus
	diagnose func(reason string)
	logger   zerolog.Logger

	cmds   chan command
	parser progressParser

	// loop-local playback state, touched only by the Run goroutine
	pending     *models.MediaItem
	itemRetries int

	mu        sync.Mutex
	phase     models.Phase
	running   bool
	active    string
	failures  int
	lastError string
	bootedAt  time.Time
	played    int64
	lastDiag  time.Time
}

// New creates a supervisor. diagnose may be nil; when set it is run on
// its own goroutine after failures, rate limited by DiagCooldown.
func New(opts Options, playlist Playlist, resolver Resolver, runner Runner, store StateStore, bus *events.Bus, diagnose func(reason string), logger zerolog.Logger) *Supervisor {
	if opts.DiagCooldown == 0 {
		opts.DiagCooldown = time.Minute
	}
	return &Supervisor{
		opts:     opts,
		playlist: playlist,
		resolver: resolver,
		runner:   runner,
		store:    store,
		bus:      bus,
		diagnose: diagnose,
		logger:   logger.With().Str("component", "stream").Logger(),
		cmds:     make(chan command, 8),
		phase:    models.PhaseIdle,
		bootedAt: time.Now(),
	}
}

// Run executes the supervision loop until the context is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.opts.Autostart {
		s.setRunning(true)
	}
	s.logger.Info().Bool("autostart", s.opts.Autostart).Msg("stream supervisor started")

	for {
		if ctx.Err() != nil {
			s.setPhase(models.PhaseStopped, "")
			return ctx.Err()
		}
		if !s.isRunning() {
			select {
			case <-ctx.Done():
				s.setPhase(models.PhaseStopped, "")
				return ctx.Err()
			case cmd := <-s.cmds:
				switch cmd.kind {
				case cmdStart:
					s.setRunning(true)
					s.logger.Info().Msg("broadcast start requested")
				case cmdStop, cmdSkip:
					// already stopped
				}
				cmd.reply <- nil
			}
			continue
		}
		s.playOnce(ctx)
	}
}

// Start requests the broadcast loop to run. No-op while running.
func (s *Supervisor) Start() error { return s.send(cmdStart) }

// Stop requests a graceful shutdown of the current transcode and
// pauses the loop. Idempotent.
func (s *Supervisor) Stop() error { return s.send(cmdStop) }

// Skip ends the current item without counting it as a failure.
func (s *Supervisor) Skip() error { return s.send(cmdSkip) }

// Jump repositions the playlist cursor and then skips the current
// item so the selected entry plays next.
func (s *Supervisor) Jump(index int) error {
	if err := s.playlist.JumpTo(index); err != nil {
		return err
	}
	return s.send(cmdSkip)
}

// Status returns a copy of the supervisor state.
func (s *Supervisor) Status() models.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.StatusSnapshot{
		Phase:               s.phase,
		Running:             s.running,
		ActiveItemName:      s.active,
		ConsecutiveFailures: s.failures,
		LastError:           s.lastError,
		StartedAt:           s.bootedAt,
		UptimeSeconds:       int64(time.Since(s.bootedAt).Seconds()),
		ItemsPlayed:         s.played,
		PlaylistTotal:       s.playlist.Total(),
		Progress:            s.parser.Snapshot(),
	}
}

func (s *Supervisor) send(kind cmdKind) error {
	cmd := command{kind: kind, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-time.After(5 * time.Second):
		return ErrBusy
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-time.After(30 * time.Second):
		return ErrBusy
	}
}

// playOnce plays one item, or services one failure with backoff.
func (s *Supervisor) playOnce(ctx context.Context) {
	item := s.pending
	if item == nil {
		s.setPhase(models.PhaseStarting, "")
		next, err := s.playlist.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.failure(ctx, "listing", err)
			return
		}
		item = &next
		s.pending = item
		s.itemRetries = 0
		telemetry.PlaylistSize.Set(float64(s.playlist.Total()))
	} else {
		s.setPhase(models.PhaseStarting, item.Name)
	}

	input, err := s.resolver.Resolve(ctx, *item)
	if err != nil {
		if errors.Is(err, source.ErrItemUnresolvable) {
			// The file vanished between listing and play. Skip it,
			// this is not an endpoint problem.
			s.logger.Warn().Err(err).Str("item", item.Name).Msg("item unresolvable, skipping")
			s.recordPlay(ctx, *item, time.Now(), "skipped", err.Error())
			s.pending = nil
			return
		}
		s.failure(ctx, "resolve", err)
		return
	}

	offset := s.playlist.ConsumeResumePosition(*item)
	args := BuildArgs(s.opts.Output, input, offset)

	s.parser.Reset()
	proc, err := s.runner.Start(ctx, args, func(line string) {
		s.parser.ParseLine(line)
	})
	if err != nil {
		s.failure(ctx, "launch", err)
		return
	}

	started := time.Now()
	telemetry.StreamStartTotal.Inc()
	s.setPhase(models.PhaseStreaming, item.Name)
	s.bus.Publish(events.EventNowPlaying, events.Payload{
		"item":   item.Name,
		"source": item.SourceName,
		"offset": offset,
	})
	s.saveProgress(ctx, item.Name, offset)
	s.logger.Info().Str("item", item.Name).Float64("offset", offset).Msg("streaming item")

	outcome := s.supervise(ctx, proc)
	ran := time.Since(started)
	telemetry.RecordStreamExit(outcome, ran)

	detail := ""
	if err := proc.Err(); err != nil {
		detail = err.Error()
	}
	s.recordPlay(ctx, *item, started, outcome, detail)

	switch outcome {
	case "completed":
		s.logger.Info().Str("item", item.Name).Dur("ran", ran).Msg("item completed")
		s.pending = nil
		s.itemRetries = 0
		s.clearFailures()
		s.incPlayed()
		telemetry.ItemsPlayedTotal.Inc()
		s.setPhase(models.PhaseCompleted, item.Name)
	case "skipped":
		s.logger.Info().Str("item", item.Name).Msg("item skipped")
		s.pending = nil
		s.itemRetries = 0
	case "stopped":
		s.logger.Info().Str("item", item.Name).Msg("broadcast stopped")
		s.setRunning(false)
		s.setPhase(models.PhaseStopped, "")
	case "crashed":
		s.itemRetries++
		if s.itemRetries > s.opts.MaxRetries {
			s.logger.Error().Str("item", item.Name).Int("retries", s.itemRetries-1).
				Msg("item keeps failing, moving on")
			s.pending = nil
			s.itemRetries = 0
		}
		s.failure(ctx, "crash", errors.New(detail))
	}
}

// supervise waits for the process to exit while servicing commands and
// periodic progress persistence. It returns the exit classification.
func (s *Supervisor) supervise(ctx context.Context, proc Process) string {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setPhase(models.PhaseStopping, s.activeName())
			s.gracefulStop(proc)
			return "stopped"
		case <-proc.Done():
			if proc.Err() == nil {
				return "completed"
			}
			if ctx.Err() != nil {
				return "stopped"
			}
			return "crashed"
		case <-ticker.C:
			pos := s.parser.Snapshot().PositionSeconds
			if pos > 0 {
				s.saveProgress(ctx, s.activeName(), pos)
			}
		case cmd := <-s.cmds:
			switch cmd.kind {
			case cmdStop:
				s.setPhase(models.PhaseStopping, s.activeName())
				s.gracefulStop(proc)
				s.setRunning(false)
				cmd.reply <- nil
				return "stopped"
			case cmdSkip:
				s.gracefulStop(proc)
				cmd.reply <- nil
				return "skipped"
			case cmdStart:
				cmd.reply <- nil
			}
		}
	}
}

// gracefulStop interrupts the process and escalates to kill after the
// grace period.
func (s *Supervisor) gracefulStop(proc Process) {
	select {
	case <-proc.Done():
		return
	default:
	}

	_ = proc.Interrupt()

	select {
	case <-proc.Done():
	case <-time.After(s.opts.StopGrace):
		s.logger.Warn().Dur("grace", s.opts.StopGrace).Msg("transcoder ignored interrupt, killing")
		_ = proc.Kill()
		<-proc.Done()
	}
}

// failure records one transient failure and sleeps the backoff delay.
// The wait is interruptible by stop commands and context cancellation.
func (s *Supervisor) failure(ctx context.Context, kind string, err error) {
	s.mu.Lock()
	s.failures++
	n := s.failures
	s.lastError = err.Error()
	s.mu.Unlock()

	telemetry.RecordFailure(kind)
	s.bus.Publish(events.EventStreamError, events.Payload{
		"kind":     kind,
		"error":    err.Error(),
		"failures": n,
	})
	s.maybeDiagnose(kind)

	delay := backoffDelay(n, s.opts.BackoffBase, s.opts.BackoffCap)
	telemetry.BackoffSeconds.Set(delay.Seconds())
	s.setPhase(models.PhaseReconnecting, s.activeName())
	s.logger.Warn().Str("kind", kind).Err(err).Int("failures", n).
		Dur("backoff", delay).Msg("stream failure, backing off")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case cmd := <-s.cmds:
			switch cmd.kind {
			case cmdStop:
				s.setRunning(false)
				s.setPhase(models.PhaseStopped, "")
				cmd.reply <- nil
				return
			case cmdSkip:
				// abandon the failing item and the remaining wait
				s.pending = nil
				s.itemRetries = 0
				cmd.reply <- nil
				return
			case cmdStart:
				cmd.reply <- nil
			}
		}
	}
}

// maybeDiagnose kicks off a diagnosis run unless one ran recently.
func (s *Supervisor) maybeDiagnose(reason string) {
	if s.diagnose == nil {
		return
	}
	s.mu.Lock()
	if time.Since(s.lastDiag) < s.opts.DiagCooldown {
		s.mu.Unlock()
		return
	}
	s.lastDiag = time.Now()
	s.mu.Unlock()

	go s.diagnose(reason)
}

func (s *Supervisor) recordPlay(ctx context.Context, item models.MediaItem, started time.Time, outcome, detail string) {
	if s.store == nil {
		return
	}
	rec := models.PlayRecord{
		Channel:    s.opts.Channel,
		ItemName:   item.Name,
		SourceName: item.SourceName,
		StartedAt:  started,
		EndedAt:    time.Now(),
		Outcome:    outcome,
		ExitDetail: detail,
	}
	if err := s.store.RecordPlay(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record play history")
	}
}

func (s *Supervisor) saveProgress(ctx context.Context, name string, pos float64) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveProgress(ctx, s.opts.Channel, name, pos); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist playback position")
	}
}

func (s *Supervisor) setPhase(phase models.Phase, active string) {
	s.mu.Lock()
	changed := s.phase != phase || s.active != active
	s.phase = phase
	s.active = active
	s.mu.Unlock()

	if changed && s.bus != nil {
		s.bus.Publish(events.EventStatus, events.Payload{
			"phase": string(phase),
			"item":  active,
		})
	}
}

func (s *Supervisor) activeName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Supervisor) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Supervisor) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Supervisor) clearFailures() {
	s.mu.Lock()
	s.failures = 0
	s.lastError = ""
	s.mu.Unlock()
}

func (s *Supervisor) incPlayed() {
	s.mu.Lock()
	s.played++
	s.mu.Unlock()
}
