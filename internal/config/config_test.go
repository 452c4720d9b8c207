package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalLocal = `
source:
  type: local
  path: /media
output:
  destination_url: rtmp://live.example.com/app/
  stream_key: abc123
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalLocal))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Playback.Mode != "sequential" {
		t.Errorf("playback mode = %q, want sequential", cfg.Playback.Mode)
	}
	if cfg.Reconnect.BackoffBaseSeconds != 5 || cfg.Reconnect.BackoffCapSeconds != 60 {
		t.Errorf("unexpected backoff defaults: %+v", cfg.Reconnect)
	}
	if cfg.Database.Backend != DatabaseSQLite {
		t.Errorf("database backend = %q, want sqlite", cfg.Database.Backend)
	}
	if len(cfg.Source.Extensions) == 0 {
		t.Error("expected default extensions")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BRAGI_OUTPUT_STREAM_KEY", "fromenv")
	t.Setenv("BRAGI_ENV", "development")

	cfg, err := Load(writeConfig(t, minimalLocal))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Output.StreamKey != "fromenv" {
		t.Errorf("stream key = %q, want fromenv", cfg.Output.StreamKey)
	}
	if cfg.Environment != "development" {
		t.Errorf("environment = %q, want development", cfg.Environment)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing local path", `
source:
  type: local
output:
  destination_url: rtmp://x/
  stream_key: k
`},
		{"missing webdav endpoint", `
source:
  type: webdav
  path: /videos
output:
  destination_url: rtmp://x/
  stream_key: k
`},
		{"unknown source type", `
source:
  type: ftp
  path: /videos
output:
  destination_url: rtmp://x/
  stream_key: k
`},
		{"placeholder stream key", `
source:
  type: local
  path: /media
output:
  destination_url: rtmp://x/
  stream_key: xxxPLACEHOLDERxxx
`},
		{"missing destination", `
source:
  type: local
  path: /media
output:
  stream_key: k
`},
		{"bad playback mode", `
source:
  type: local
  path: /media
playback:
  mode: roulette
output:
  destination_url: rtmp://x/
  stream_key: k
`},
		{"cap below base", `
source:
  type: local
  path: /media
output:
  destination_url: rtmp://x/
  stream_key: k
reconnect:
  backoff_base_seconds: 30
  backoff_cap_seconds: 10
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("expected load to fail")
			}
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
