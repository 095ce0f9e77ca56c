package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/atikulmunna/loglens/internal/hub"
	"github.com/atikulmunna/loglens/internal/metrics"
	"github.com/atikulmunna/loglens/internal/server"
)

var serveFlags struct {
	addr    string
	uploads string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload API, stats, metrics and progress stream",
	Long: `Serve an HTTP API that analyzes uploaded log files.

Endpoints:
  POST /api/analyze   multipart upload in field "logfile"
  GET  /api/stats     last analysis and the state of every run
  GET  /metrics       Prometheus metrics
  GET  /ws            WebSocket stream of run progress
  GET  /healthz       liveness`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().StringVar(&serveFlags.uploads, "uploads", "", "directory for uploaded files (default from server.uploads)")

	rootCmd.AddCommand(serveCmd)
}

// newInstrumentation builds the registry, pipeline metrics and progress hub
// shared by the long-running commands.
func newInstrumentation() (*prometheus.Registry, *metrics.Pipeline, *hub.Hub, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m, err := metrics.New(reg)
	if err != nil {
		return nil, nil, nil, err
	}
	return reg, m, hub.New(logger), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveFlags.addr
	}
	if cmd.Flags().Changed("uploads") {
		cfg.Server.Uploads = serveFlags.uploads
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(r, h, reg, cfg.Server.Uploads, logger).Run(ctx, cfg.Server.Addr)
}
