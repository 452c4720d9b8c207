/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package stream runs the ffmpeg transcode to the broadcast endpoint
// and supervises its lifecycle.
package stream

import (
	"fmt"
	"strings"

	"github.com/friendsincode/bragi_tv/internal/config"
	"github.com/friendsincode/bragi_tv/internal/source"
)

// BuildArgs assembles the ffmpeg argument list for one item. The
// encoding profile is fixed per process so the remote endpoint sees a
// continuous, uniform stream across item boundaries. offsetSeconds > 0
// seeks into the input before encoding starts.
func BuildArgs(out config.OutputConfig, in source.Input, offsetSeconds float64) []string {
	args := []string{"-hide_banner", "-loglevel", "info"}

	if auth, ok := in.Headers["Authorization"]; ok {
		args = append(args, "-headers", "Authorization: "+auth+"\r\n")
	}
	if in.Remote {
		// Remote reads stall on flaky links; bail out instead of
		// hanging the whole pipeline.
		args = append(args, "-rw_timeout", "15000000")
	}

	if offsetSeconds > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.2f", offsetSeconds))
	}

	args = append(args, "-re", "-i", in.URL)

	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		out.Width, out.Height, out.Width, out.Height,
	)

	args = append(args,
		"-vf", scale,
		"-c:v", out.VideoCodec,
		"-preset", out.Preset,
		"-b:v", out.VideoBitrate,
		"-maxrate", out.VideoBitrate,
		"-bufsize", doubleBitrate(out.VideoBitrate),
		"-r", fmt.Sprintf("%d", out.FPS),
		"-g", fmt.Sprintf("%d", out.FPS*2),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", out.AudioBitrate,
		"-ar", fmt.Sprintf("%d", out.AudioSampleRate),
		"-ac", fmt.Sprintf("%d", out.AudioChannels),
		"-flvflags", "no_duration_filesize",
		"-f", "flv",
		DestinationURL(out),
	)
	return args
}

// DestinationURL joins the ingest URL and the stream key.
func DestinationURL(out config.OutputConfig) string {
	base := strings.TrimRight(out.DestinationURL, "/")
	if out.StreamKey == "" {
		return base
	}
	return base + "/" + out.StreamKey
}

// doubleBitrate derives the rate-control buffer from the target
// bitrate, e.g. "2500k" -> "5000k". Unparseable values pass through.
func doubleBitrate(bitrate string) string {
	trimmed := strings.ToLower(strings.TrimSpace(bitrate))
	unit := ""
	for _, suffix := range []string{"k", "m"} {
		if strings.HasSuffix(trimmed, suffix) {
			unit = suffix
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}
	var n int
	if _, err := fmt.Sscanf(trimmed, "%d", &n); err != nil || n <= 0 {
		return bitrate
	}
	return fmt.Sprintf("%d%s", n*2, unit)
}
