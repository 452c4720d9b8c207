/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
)

// Runner launches a transcode process. It exists so the supervisor can
// be exercised without a real ffmpeg binary.
type Runner interface {
	Start(ctx context.Context, args []string, onLine func(string)) (Process, error)
}

// Process is a handle on one running transcode.
type Process interface {
	// Done closes when the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed, nil on clean exit.
	Err() error
	// Interrupt asks the process to shut down gracefully.
	Interrupt() error
	// Kill terminates the process immediately.
	Kill() error
}

// FFmpegRunner launches the configured ffmpeg binary.
type FFmpegRunner struct {
	Bin    string
	Logger zerolog.Logger
}

type ffmpegProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Start launches ffmpeg and scans its stderr line by line into onLine.
// ffmpeg writes all diagnostics, including the progress stats line, to
// stderr; stdout stays unused.
func (r *FFmpegRunner) Start(ctx context.Context, args []string, onLine func(string)) (Process, error) {
	bin := r.Bin
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = nil

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	r.Logger.Debug().Int("pid", cmd.Process.Pid).Msg("transcoder started")

	p := &ffmpegProcess{cmd: cmd, done: make(chan struct{})}

	go func() {
		scanner := bufio.NewScanner(stderr)
		// The stats line is rewritten with \r, not \n.
		scanner.Split(scanCRorLF)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" && onLine != nil {
				onLine(line)
			}
		}
		p.err = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

func (p *ffmpegProcess) Done() <-chan struct{} { return p.done }

func (p *ffmpegProcess) Err() error { return p.err }

func (p *ffmpegProcess) Interrupt() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *ffmpegProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// scanCRorLF is a bufio.SplitFunc treating both \r and \n as line ends.
func scanCRorLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
