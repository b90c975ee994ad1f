// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     cmd
// Description: CLI command for the interactive log viewer
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/msto63/kflogs/internal/api"
	"github.com/msto63/kflogs/internal/config"
	"github.com/msto63/kflogs/internal/logging"
	"github.com/msto63/kflogs/internal/stream"
	"github.com/msto63/kflogs/internal/tui/logviewer"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:     "view <job-id>",
	Aliases: []string{"logs", "logviewer"},
	Short:   "Open the interactive log viewer for a job",
	Long: `Open the interactive log viewer for one job run.

The viewer loads the collected history and, while the job is running,
appends lines streamed over the websocket:

  - History followed by live lines
  - Auto-Scroll to the newest line
  - Reload with a fresh connection

Shortcuts:
  r           Reload
  a           Toggle auto-scroll
  g / G       Jump to top / bottom
  PgUp/PgDn   Scroll
  q / Ctrl+C  Quit`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	jobID, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, "kflogs-view", true)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return logviewer.Run(ctx, newSession(cfg, jobID, logger), jobID)
}

// newSession wires a session to the configured backend
func newSession(cfg *config.Config, jobID int, logger *logging.Logger) *stream.Session {
	dialer := stream.NewWebsocketDialer(cfg.WS.HandshakeTimeout.Duration)
	dialer.ReadLimit = cfg.WS.ReadLimit

	return stream.NewSession(stream.SessionConfig{
		JobID:        jobID,
		Source:       api.NewClient(cfg.APIBaseURL(), api.WithHTTPClient(&http.Client{Timeout: cfg.Server.Timeout.Duration})),
		Dialer:       dialer,
		Endpoint:     cfg.WebsocketURL,
		ReadyTimeout: cfg.WS.ReadyTimeout.Duration,
		Logger:       logger,
	})
}

func parseJobID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}
