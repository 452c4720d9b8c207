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

	"github.com/friendsincode/bragi_tv/internal/source"
)

// runMediaList prints the items the configured source currently
// yields, in listing order, so operators can verify extensions and
// credentials before going live.
func runMediaList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	src, err := source.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	items, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("list media: %w", err)
	}

	for i, item := range items {
		size := ""
		if item.SizeBytes > 0 {
			size = fmt.Sprintf("  (%.1f MiB)", float64(item.SizeBytes)/(1024*1024))
		}
		fmt.Printf("%3d  %s%s\n", i, item.Name, size)
	}
	fmt.Printf("\n%d item(s) from %s\n", len(items), src.Name())
	return nil
}
