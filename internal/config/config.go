/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceType selects the media source backend.
type SourceType string

const (
	SourceLocal  SourceType = "local"
	SourceWebDAV SourceType = "webdav"
)

// DatabaseBackend selection for the playback state store.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// SourceConfig describes where media files live.
type SourceConfig struct {
	Type SourceType `yaml:"type"`
	// Path is the local root directory, or the remote directory for
	// WebDAV sources.
	Path       string   `yaml:"path"`
	Endpoint   string   `yaml:"endpoint"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Extensions []string `yaml:"extensions"`
	Recursive  bool     `yaml:"recursive"`
	// ListingTTLSeconds bounds how long a remote listing is reused
	// before the directory is scanned again.
	ListingTTLSeconds int `yaml:"listing_ttl_seconds"`
}

// PlaybackConfig controls the playlist engine.
type PlaybackConfig struct {
	Mode      string `yaml:"mode"` // sequential | shuffled
	Autostart bool   `yaml:"autostart"`
	// Resume continues from the persisted position after a restart.
	Resume bool `yaml:"resume"`
}

// OutputConfig is the fixed encoding profile applied to every item.
type OutputConfig struct {
	DestinationURL  string `yaml:"destination_url"`
	StreamKey       string `yaml:"stream_key"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	FPS             int    `yaml:"fps"`
	VideoBitrate    string `yaml:"video_bitrate"`
	VideoCodec      string `yaml:"video_codec"`
	Preset          string `yaml:"preset"`
	AudioBitrate    string `yaml:"audio_bitrate"`
	AudioSampleRate int    `yaml:"audio_sample_rate"`
	AudioChannels   int    `yaml:"audio_channels"`
}

// ReconnectConfig bounds the supervisor's retry behavior.
type ReconnectConfig struct {
	MaxRetries         int `yaml:"max_retries"`
	BackoffBaseSeconds int `yaml:"backoff_base_seconds"`
	BackoffCapSeconds  int `yaml:"backoff_cap_seconds"`
	StopGraceSeconds   int `yaml:"stop_grace_seconds"`
}

// DatabaseConfig selects the playback state store backend.
type DatabaseConfig struct {
	Backend DatabaseBackend `yaml:"backend"`
	DSN     string          `yaml:"dsn"`
}

// TracingConfig controls the OTLP trace exporter.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Config covers process level configuration, read from a YAML file
// with BRAGI_* environment overrides.
type Config struct {
	Environment string          `yaml:"environment"`
	HTTPBind    string          `yaml:"http_bind"`
	HTTPPort    int             `yaml:"http_port"`
	FFmpegBin   string          `yaml:"ffmpeg_bin"`
	Channel     string          `yaml:"channel"`
	Source      SourceConfig    `yaml:"source"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Output      OutputConfig    `yaml:"output"`
	Reconnect   ReconnectConfig `yaml:"reconnect"`
	Database    DatabaseConfig  `yaml:"database"`
	Tracing     TracingConfig   `yaml:"tracing"`
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. Validation failure is fatal:
// no core component is constructed from an invalid configuration.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment: "production",
		HTTPBind:    "0.0.0.0",
		HTTPPort:    8080,
		FFmpegBin:   "ffmpeg",
		Channel:     "main",
		Source: SourceConfig{
			Type:              SourceLocal,
			Extensions:        []string{".mp4", ".mkv", ".flv"},
			Recursive:         true,
			ListingTTLSeconds: 300,
		},
		Playback: PlaybackConfig{
			Mode:      "sequential",
			Autostart: true,
			Resume:    true,
		},
		Output: OutputConfig{
			Width:           1920,
			Height:          1080,
			FPS:             30,
			VideoBitrate:    "3000k",
			VideoCodec:      "libx264",
			Preset:          "veryfast",
			AudioBitrate:    "192k",
			AudioSampleRate: 44100,
			AudioChannels:   2,
		},
		Reconnect: ReconnectConfig{
			MaxRetries:         3,
			BackoffBaseSeconds: 5,
			BackoffCapSeconds:  60,
			StopGraceSeconds:   5,
		},
		Database: DatabaseConfig{
			Backend: DatabaseSQLite,
			DSN:     "bragi.db",
		},
		Tracing: TracingConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("BRAGI_ENV", cfg.Environment)
	cfg.HTTPBind = getEnv("BRAGI_HTTP_BIND", cfg.HTTPBind)
	cfg.HTTPPort = getEnvInt("BRAGI_HTTP_PORT", cfg.HTTPPort)
	cfg.FFmpegBin = getEnv("BRAGI_FFMPEG_BIN", cfg.FFmpegBin)
	cfg.Channel = getEnv("BRAGI_CHANNEL", cfg.Channel)

	cfg.Source.Endpoint = getEnv("BRAGI_SOURCE_ENDPOINT", cfg.Source.Endpoint)
	cfg.Source.Username = getEnv("BRAGI_SOURCE_USERNAME", cfg.Source.Username)
	cfg.Source.Password = getEnv("BRAGI_SOURCE_PASSWORD", cfg.Source.Password)

	cfg.Output.DestinationURL = getEnv("BRAGI_OUTPUT_DESTINATION_URL", cfg.Output.DestinationURL)
	cfg.Output.StreamKey = getEnv("BRAGI_OUTPUT_STREAM_KEY", cfg.Output.StreamKey)

	cfg.Database.Backend = DatabaseBackend(getEnv("BRAGI_DB_BACKEND", string(cfg.Database.Backend)))
	cfg.Database.DSN = getEnv("BRAGI_DB_DSN", cfg.Database.DSN)

	cfg.Tracing.Enabled = getEnvBool("BRAGI_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.OTLPEndpoint = getEnv("BRAGI_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceLocal:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path must be set for local sources")
		}
	case SourceWebDAV:
		if c.Source.Endpoint == "" {
			return fmt.Errorf("source.endpoint must be set for webdav sources")
		}
	default:
		return fmt.Errorf("unsupported source type %q", c.Source.Type)
	}

	if c.Playback.Mode != "sequential" && c.Playback.Mode != "shuffled" {
		return fmt.Errorf("unsupported playback mode %q", c.Playback.Mode)
	}

	if c.Output.DestinationURL == "" {
		return fmt.Errorf("output.destination_url must be set")
	}
	if strings.Contains(c.Output.StreamKey, "xxx") {
		return fmt.Errorf("output.stream_key is not configured")
	}

	if c.Reconnect.MaxRetries < 0 {
		return fmt.Errorf("reconnect.max_retries must be >= 0")
	}
	if c.Reconnect.BackoffBaseSeconds <= 0 {
		return fmt.Errorf("reconnect.backoff_base_seconds must be > 0")
	}
	if c.Reconnect.BackoffCapSeconds < c.Reconnect.BackoffBaseSeconds {
		return fmt.Errorf("reconnect.backoff_cap_seconds must be >= backoff_base_seconds")
	}

	if c.Database.Backend != DatabasePostgres && c.Database.Backend != DatabaseMySQL && c.Database.Backend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.Database.Backend)
	}

	return nil
}

// ListingTTL returns the remote listing cache TTL.
func (c *Config) ListingTTL() time.Duration {
	return time.Duration(c.Source.ListingTTLSeconds) * time.Second
}

// BackoffBase returns the reconnect backoff base delay.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Reconnect.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the reconnect backoff ceiling.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.Reconnect.BackoffCapSeconds) * time.Second
}

// StopGrace returns how long a child process is given to exit
// voluntarily before it is killed.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Reconnect.StopGraceSeconds) * time.Second
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}
