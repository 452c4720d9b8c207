/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/friendsincode/bragi_tv/internal/models"
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	timeRe     = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	bitrateRe  = regexp.MustCompile(`bitrate=\s*([\d.]+\s*[kmg]?bits/s)`)
	speedRe    = regexp.MustCompile(`speed=\s*([\d.]+x)`)
)

// progressParser accumulates playback telemetry from ffmpeg's stderr.
// ffmpeg prints the input duration once at startup and then rewrites a
// stats line (frame/time/bitrate/speed) as encoding advances.
type progressParser struct {
	mu  sync.Mutex
	cur models.StreamProgress
}

// ParseLine folds one output line into the progress state and reports
// whether the line carried telemetry.
func (p *progressParser) ParseLine(line string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	matched := false

	if m := durationRe.FindStringSubmatch(line); m != nil {
		p.cur.DurationSeconds = clockToSeconds(m[1], m[2], m[3])
		matched = true
	}
	if m := timeRe.FindStringSubmatch(line); m != nil {
		p.cur.PositionSeconds = clockToSeconds(m[1], m[2], m[3])
		if p.cur.DurationSeconds > 0 {
			p.cur.Percent = 100 * p.cur.PositionSeconds / p.cur.DurationSeconds
			if p.cur.Percent > 100 {
				p.cur.Percent = 100
			}
		}
		matched = true
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		p.cur.Bitrate = m[1]
		matched = true
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		p.cur.Speed = m[1]
		matched = true
	}
	return matched
}

// Snapshot returns a copy of the current progress.
func (p *progressParser) Snapshot() models.StreamProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// Reset clears the state for the next item.
func (p *progressParser) Reset() {
	p.mu.Lock()
	p.cur = models.StreamProgress{}
	p.mu.Unlock()
}

func clockToSeconds(h, m, s string) float64 {
	hours, _ := strconv.ParseFloat(h, 64)
	minutes, _ := strconv.ParseFloat(m, 64)
	seconds, _ := strconv.ParseFloat(s, 64)
	return hours*3600 + minutes*60 + seconds
}
