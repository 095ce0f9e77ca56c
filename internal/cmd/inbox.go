package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atikulmunna/loglens/internal/pipeline"
	"github.com/atikulmunna/loglens/internal/server"
	"github.com/atikulmunna/loglens/internal/watcher"
)

var inboxFlags struct {
	match  string
	settle time.Duration
	addr   string
}

var inboxCmd = &cobra.Command{
	Use:   "inbox [dirs...]",
	Short: "Analyze log files as they are dropped into directories",
	Long: `Watch one or more directories (or glob patterns) and analyze every
matching file once it has stopped changing for the settle period. Files that
already exist when the command starts are not analyzed.

Examples:
  loglens inbox /srv/incoming
  loglens inbox "/data/**/inbox" --match "*.log" --settle 5s --addr :8080`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInbox,
}

func init() {
	inboxCmd.Flags().StringVar(&inboxFlags.match, "match", "*.log", "file name pattern to analyze")
	inboxCmd.Flags().DurationVar(&inboxFlags.settle, "settle", 0, "quiet period before a file is analyzed (default from inbox.settle)")
	inboxCmd.Flags().StringVar(&inboxFlags.addr, "addr", "", "also serve the HTTP API on this address")

	rootCmd.AddCommand(inboxCmd)
}

func runInbox(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("settle") {
		cfg.Inbox.Settle = inboxFlags.settle
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(args, inboxFlags.match, cfg.Inbox.Settle, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	reg, m, h, err := newInstrumentation()
	if err != nil {
		return err
	}
	defer h.Close()

	r := &runner{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		observer: h.Publish,
		scoped:   true,
		restart:  true,
	}

	serveErr := make(chan error, 1)
	if inboxFlags.addr != "" {
		go func() {
			serveErr <- server.New(r, h, reg, cfg.Server.Uploads, logger).Run(ctx, inboxFlags.addr)
		}()
	}

	for _, d := range w.Dirs() {
		logger.Info("watching inbox", "dir", d, "match", inboxFlags.match)
	}
	go w.Start(ctx)

	for {
		select {
		case err := <-serveErr:
			return err
		case path, ok := <-w.Ready:
			if !ok {
				return nil
			}
			if _, err := r.Analyze(ctx, path); err != nil {
				if errors.Is(err, pipeline.ErrInterrupted) || errors.Is(err, context.Canceled) {
					return nil
				}
				logger.Error("analysis failed", "source", path, "err", err)
			}
		}
	}
}
