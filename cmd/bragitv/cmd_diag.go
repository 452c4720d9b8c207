/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/bragi_tv/internal/diag"
	"github.com/friendsincode/bragi_tv/internal/source"
)

// runDiag probes the environment and prints a human readable report.
// Exit status reflects overall health so it works from cron and shell.
func runDiag(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	src, err := source.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runner := diag.NewRunner(cfg.Output.DestinationURL, src, nil, logger)
	report := runner.Run(ctx, "cli")

	for _, check := range report.Checks {
		mark := "ok"
		if !check.OK {
			mark = "FAIL"
		}
		line := fmt.Sprintf("[%s] %s", mark, check.Name)
		if check.Detail != "" {
			line += ": " + check.Detail
		}
		fmt.Println(line)
	}

	if !report.Healthy {
		return fmt.Errorf("diagnosis found problems")
	}
	fmt.Println("all checks passed")
	return nil
}
