/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package diag probes the failure domains of an unattended broadcast:
// general connectivity, name resolution, the ingest endpoint and the
// media source. It runs on demand and automatically after stream
// failures, and publishes its findings on the event bus.
package diag

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/bragi_tv/internal/events"
)

// Check is the outcome of a single probe.
type Check struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Report is one full diagnosis run.
type Report struct {
	RanAt   time.Time `json:"ran_at"`
	Healthy bool      `json:"healthy"`
	Checks  []Check   `json:"checks"`
}

// SourceChecker is the slice of the source adapter diag needs.
type SourceChecker interface {
	Name() string
	CheckAccess(ctx context.Context) error
}

// Runner executes diagnosis runs against a fixed destination.
type Runner struct {
	destination string
	source      SourceChecker
	bus         *events.Bus
	logger      zerolog.Logger
	dialer      net.Dialer
}

// NewRunner creates a diagnosis runner for the ingest destination URL.
func NewRunner(destination string, source SourceChecker, bus *events.Bus, logger zerolog.Logger) *Runner {
	return &Runner{
		destination: destination,
		source:      source,
		bus:         bus,
		logger:      logger.With().Str("component", "diag").Logger(),
		dialer:      net.Dialer{Timeout: 5 * time.Second},
	}
}

// Run executes all probes and publishes the report.
func (r *Runner) Run(ctx context.Context, reason string) Report {
	report := Report{RanAt: time.Now(), Healthy: true}

	report.add(r.checkInternet(ctx))
	report.add(r.checkDNS(ctx))
	report.add(r.checkIngest(ctx))
	report.add(r.checkSource(ctx))

	level := r.logger.Info()
	if !report.Healthy {
		level = r.logger.Warn()
	}
	level.Str("reason", reason).Bool("healthy", report.Healthy).Msg("diagnosis finished")

	if r.bus != nil {
		r.bus.Publish(events.EventDiagnosis, events.Payload{
			"reason":  reason,
			"healthy": report.Healthy,
			"checks":  report.Checks,
		})
	}
	return report
}

func (rep *Report) add(c Check) {
	rep.Checks = append(rep.Checks, c)
	if !c.OK {
		rep.Healthy = false
	}
}

// checkInternet dials a public resolver to separate "our link is down"
// from "the ingest endpoint is down".
func (r *Runner) checkInternet(ctx context.Context) Check {
	c := Check{ID: "internet", Name: "Internet connectivity"}
	conn, err := r.dialer.DialContext(ctx, "tcp", "8.8.8.8:53")
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	_ = conn.Close()
	c.OK = true
	return c
}

func (r *Runner) checkDNS(ctx context.Context) Check {
	c := Check{ID: "dns", Name: "Ingest host resolution"}
	host, _, err := r.ingestAddr()
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if net.ParseIP(host) != nil {
		c.OK = true
		c.Detail = "destination is a literal address"
		return c
	}
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	c.Detail = fmt.Sprintf("%s resolves to %d address(es)", host, len(addrs))
	return c
}

func (r *Runner) checkIngest(ctx context.Context) Check {
	c := Check{ID: "ingest", Name: "Ingest endpoint reachability"}
	host, port, err := r.ingestAddr()
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	conn, err := r.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	_ = conn.Close()
	c.OK = true
	return c
}

func (r *Runner) checkSource(ctx context.Context) Check {
	c := Check{ID: "source", Name: "Media source access"}
	if r.source == nil {
		c.OK = true
		c.Detail = "no source configured"
		return c
	}
	if err := r.source.CheckAccess(ctx); err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	c.Detail = r.source.Name()
	return c
}

// ingestAddr extracts host and port from the destination URL. RTMP
// defaults to 1935 when the URL carries no explicit port.
func (r *Runner) ingestAddr() (host, port string, err error) {
	u, err := url.Parse(r.destination)
	if err != nil {
		return "", "", fmt.Errorf("parse destination: %w", err)
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("destination %q has no host", r.destination)
	}
	port = u.Port()
	if port == "" {
		switch u.Scheme {
		case "rtmps":
			port = "443"
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			port = "1935"
		}
	}
	return u.Hostname(), port, nil
}
