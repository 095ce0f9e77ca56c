package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/atikulmunna/loglens/internal/checkpoint"
	"github.com/atikulmunna/loglens/internal/config"
	"github.com/atikulmunna/loglens/internal/metrics"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/pipeline"
	"github.com/atikulmunna/loglens/internal/report"
)

// runner analyzes sources with the loaded configuration. It serves the
// analyze and inbox commands and the HTTP upload API.
type runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Pipeline
	observer func(model.Progress)
	noReport bool

	// scoped gives every source its own checkpoint, outputs and reports
	// under a per-source directory.
	scoped bool

	// restart discards any checkpoint and scoped outputs left for a source
	// so that it is analyzed from its first line.
	restart bool

	mu     sync.Mutex
	active map[*pipeline.Pipeline]struct{}
}

// scope returns the configuration for source.
func (r *runner) scope(source string) *config.Config {
	if !r.scoped {
		return r.cfg
	}
	id := checkpoint.SourceID(source)
	c := *r.cfg
	c.Outputs.Dir = filepath.Join(c.Outputs.Dir, id)
	c.Report.Dir = filepath.Join(c.Report.Dir, id)
	return &c
}

// Analyze runs the pipeline over path to completion and writes the reports.
func (r *runner) Analyze(ctx context.Context, path string) (*model.Analysis, error) {
	c := r.scope(path)

	opts := []pipeline.Option{pipeline.WithLogger(r.logger), pipeline.WithMetrics(r.metrics)}
	if r.observer != nil {
		opts = append(opts, pipeline.WithObserver(r.observer))
	}

	pc := c.Pipeline(path, r.scoped)
	if r.restart {
		if err := r.discard(c, pc.CheckpointPath); err != nil {
			return nil, err
		}
	}

	p, err := pipeline.New(pc, opts...)
	if err != nil {
		return nil, err
	}

	r.track(p, true)
	res, err := p.Run(ctx, path)
	r.track(p, false)
	if err != nil {
		return nil, err
	}

	a := res.Analysis()
	r.logger.Info("analysis complete",
		"source", path,
		"records", humanize.Comma(a.Summary.TotalRecords),
		"failed", humanize.Comma(a.Summary.TotalFailed))

	if r.noReport {
		return &a, nil
	}
	reports, err := report.Write(c.Report.Dir, a)
	if err != nil {
		return nil, fmt.Errorf("write reports for %s: %w", path, err)
	}
	a.Reports = reports
	return &a, nil
}

// discard removes the checkpoint and, for scoped sources, the outputs of an
// earlier run.
func (r *runner) discard(c *config.Config, checkpointPath string) error {
	if err := checkpoint.NewStore(checkpointPath).Clear(); err != nil {
		return err
	}
	if !r.scoped {
		return nil
	}
	if err := os.RemoveAll(c.Outputs.Dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove outputs %s: %w", c.Outputs.Dir, err)
	}
	return nil
}

func (r *runner) track(p *pipeline.Pipeline, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		r.active = make(map[*pipeline.Pipeline]struct{})
	}
	if running {
		r.active[p] = struct{}{}
	} else {
		delete(r.active, p)
	}
}

// Running returns the totals of every analysis in progress, by source.
func (r *runner) Running() []model.Summary {
	r.mu.Lock()
	out := make([]model.Summary, 0, len(r.active))
	for p := range r.active {
		out = append(out, p.Snapshot())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
