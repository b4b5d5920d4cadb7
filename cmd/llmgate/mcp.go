package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmgate/pkg/config"
	"github.com/pario-ai/llmgate/pkg/logging"
	"github.com/pario-ai/llmgate/pkg/mcp"
	"github.com/pario-ai/llmgate/pkg/tracker"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the inference history to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.History.DBPath == "" {
				return errors.New("history is disabled: set history.db_path or LLMGATE_HISTORY_DB")
			}

			tr, err := tracker.New(cfg.History.DBPath, 0)
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer func() { _ = tr.Close() }()

			// stdout carries the protocol; logs go to stderr.
			logger := logging.New(cfg.LogLevel, cfg.Environment)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return mcp.New(tr, version, logger).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
