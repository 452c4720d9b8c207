/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/bragi_tv/internal/config"
	"github.com/friendsincode/bragi_tv/internal/logbuffer"
	"github.com/friendsincode/bragi_tv/internal/logging"
	"github.com/friendsincode/bragi_tv/internal/server"
	"github.com/friendsincode/bragi_tv/internal/telemetry"
	"github.com/friendsincode/bragi_tv/internal/version"
)

var (
	cfgPath string
	cfg     *config.Config
	logBuf  *logbuffer.Buffer
	logger  zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bragitv",
	Short: "Bragi TV - unattended 24/7 video broadcast",
	Long:  "Bragi TV streams a local or WebDAV media library to an RTMP endpoint around the clock, restarting the stream on failures without operator attention.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broadcast and the control API",
	RunE:  runServe,
}

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Probe connectivity, the ingest endpoint and the media source",
	RunE:  runDiag,
}

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Media source commands",
}

var mediaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the playable items the configured source yields",
	RunE:  runMediaList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "bragi.yaml", "path to the configuration file")
	mediaCmd.AddCommand(mediaListCmd)
	rootCmd.AddCommand(serveCmd, diagCmd, mediaCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuf = logbuffer.New(2000)
	logger = logging.SetupWithWriter(cfg.Environment, logbuffer.NewWriter(logBuf, nil))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Str("channel", cfg.Channel).Msg("Bragi TV starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "bragi-tv",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		Enabled:        cfg.Tracing.Enabled,
		SampleRate:     cfg.Tracing.SampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logBuf, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Bragi TV stopped")
	return nil
}
