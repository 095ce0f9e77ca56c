package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atikulmunna/loglens/internal/checkpoint"
	"github.com/atikulmunna/loglens/internal/output"
	"github.com/atikulmunna/loglens/internal/pipeline"
	"github.com/atikulmunna/loglens/internal/source"
)

var analyzeFlags struct {
	format     string
	checkpoint string
	interval   uint64
	outDir     string
	reportDir  string
	output     string
	topN       int
	noReport   bool
	reset      bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [paths...]",
	Short: "Analyze log files, resuming from the last checkpoint",
	Long: `Analyze one or more log files (or glob patterns). Each line is parsed,
routed to the output files and aggregated; a checkpoint is saved every
--interval lines and when the run is interrupted or fails, so running the
same command again continues where it stopped.

Examples:
  loglens analyze app.log
  loglens analyze access.log --format access --output json
  loglens analyze "/var/log/**/*.log" --out-dir parsed`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.format, "format", "f", "", "log format: text, access")
	f.StringVar(&analyzeFlags.checkpoint, "checkpoint", "", "checkpoint file (single source only)")
	f.Uint64Var(&analyzeFlags.interval, "interval", 0, "lines between checkpoints")
	f.StringVar(&analyzeFlags.outDir, "out-dir", "", "directory for routed output files")
	f.StringVar(&analyzeFlags.reportDir, "report-dir", "", "directory for report artifacts")
	f.StringVarP(&analyzeFlags.output, "output", "o", "text", "summary format: text, json, yaml")
	f.IntVar(&analyzeFlags.topN, "top", 0, "number of top error messages to keep")
	f.BoolVar(&analyzeFlags.noReport, "no-report", false, "skip writing report artifacts")
	f.BoolVar(&analyzeFlags.reset, "reset", false, "discard saved checkpoints and start from the first line")

	rootCmd.AddCommand(analyzeCmd)
}

// applyAnalyzeFlags overrides configuration values with the flags that were set.
func applyAnalyzeFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Format = analyzeFlags.format
	}
	if flags.Changed("checkpoint") {
		cfg.Checkpoint.Path = analyzeFlags.checkpoint
	}
	if flags.Changed("interval") {
		cfg.Checkpoint.Interval = analyzeFlags.interval
	}
	if flags.Changed("out-dir") {
		cfg.Outputs.Dir = analyzeFlags.outDir
	}
	if flags.Changed("report-dir") {
		cfg.Report.Dir = analyzeFlags.reportDir
	}
	if flags.Changed("top") {
		cfg.Report.TopN = analyzeFlags.topN
	}
	return cfg.Validate()
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := applyAnalyzeFlags(cmd); err != nil {
		return err
	}

	renderer, err := output.New(analyzeFlags.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	paths, err := source.Expand(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files matched the given patterns: %v", args)
	}
	if len(paths) > 1 && cfg.Checkpoint.Path != "" {
		logger.Warn("ignoring pinned checkpoint for multiple sources", "checkpoint", cfg.Checkpoint.Path)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner{
		cfg:      cfg,
		logger:   logger,
		noReport: analyzeFlags.noReport,
		scoped:   len(paths) > 1,
	}

	for _, path := range paths {
		if analyzeFlags.reset {
			if err := checkpoint.NewStore(r.scope(path).CheckpointFor(path, r.scoped)).Clear(); err != nil {
				return err
			}
		}

		a, err := r.Analyze(ctx, path)
		if err != nil {
			return explain(cmd, path, err)
		}
		if err := renderer.Render(*a); err != nil {
			return err
		}
	}
	return nil
}

// explain adds a resume hint to errors of runs that saved a checkpoint.
func explain(cmd *cobra.Command, path string, err error) error {
	var runErr *pipeline.RunError
	if !errors.As(err, &runErr) {
		return err
	}

	switch runErr.State {
	case pipeline.StateInterrupted, pipeline.StateFaulted:
		fmt.Fprintf(cmd.ErrOrStderr(), "%s stopped before line %d; run the same command again to resume.\n",
			path, runErr.Index)
	}
	return err
}
