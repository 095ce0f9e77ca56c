// Package pipeline runs a resumable analysis of one log file: lines are read
// in order from the last checkpoint, parsed, aggregated and fanned out to the
// configured destinations while progress is checkpointed at a fixed cadence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/atikulmunna/loglens/internal/aggregator"
	"github.com/atikulmunna/loglens/internal/checkpoint"
	"github.com/atikulmunna/loglens/internal/metrics"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/parser"
	"github.com/atikulmunna/loglens/internal/sink"
	"github.com/atikulmunna/loglens/internal/source"
)

// DefaultInterval is the number of lines between periodic checkpoints.
const DefaultInterval = 50000

// Config describes one log source's run.
type Config struct {
	Format         model.Format
	CheckpointPath string
	// Interval is the checkpoint cadence in lines; zero means DefaultInterval.
	Interval uint64
	// Lock takes an advisory lock on the checkpoint for the run's duration.
	Lock  bool
	Sinks sink.Config
	TopN  int
	// MaxInvalid caps the ParseErrors kept in the Result; zero keeps all.
	// Every failed line still reaches the corrupted-lines destination.
	MaxInvalid int
}

// Result is the outcome of a run. On early termination it holds the totals
// observed so far.
type Result struct {
	State          State
	Summary        model.Summary
	Invalid        []model.ParseError
	InvalidDropped int64
	// Next is the index the following run starts from; zero once completed.
	Next uint64
}

// Analysis converts the result for reporting collaborators.
func (r *Result) Analysis() model.Analysis {
	invalid := r.Invalid
	if invalid == nil {
		invalid = []model.ParseError{}
	}
	return model.Analysis{
		Summary:        r.Summary,
		Invalid:        invalid,
		InvalidDropped: r.InvalidDropped,
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger; the default discards.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithObserver is called synchronously on the run's goroutine when a run
// starts, after every checkpoint, and when it stops.
func WithObserver(fn func(model.Progress)) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// WithParser replaces the parser selected by Config.Format.
func WithParser(ps parser.Parser) Option {
	return func(p *Pipeline) { p.parser = ps }
}

// Pipeline owns the checkpoint and destinations of one log source.
type Pipeline struct {
	cfg      Config
	parser   parser.Parser
	store    *checkpoint.Store
	logger   *slog.Logger
	metrics  *metrics.Pipeline
	observer func(model.Progress)

	busy atomic.Bool

	mu     sync.RWMutex
	state  State
	agg    *aggregator.Aggregator
	source string
	start  uint64
}

// New validates cfg and builds a Pipeline.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.CheckpointPath == "" {
		return nil, errors.New("pipeline: checkpoint path is required")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Format == "" {
		cfg.Format = model.FormatText
	}

	p := &Pipeline{
		cfg:    cfg,
		store:  checkpoint.NewStore(cfg.CheckpointPath),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.parser == nil {
		ps, err := parser.New(cfg.Format)
		if err != nil {
			return nil, err
		}
		p.parser = ps
	}
	return p, nil
}

// State returns the lifecycle state of the latest run.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Snapshot returns the running totals of the latest run. It is safe to call
// while Run is in progress.
func (p *Pipeline) Snapshot() model.Summary {
	p.mu.RLock()
	agg, src, start := p.agg, p.source, p.start
	p.mu.RUnlock()
	if agg == nil {
		agg = aggregator.New(p.cfg.Format, p.cfg.TopN)
	}
	s := agg.Snapshot()
	s.Source = src
	s.StartIndex = start
	return s
}

// run is the mutable state of a single Run call.
type run struct {
	source   string
	start    uint64
	next     uint64
	inRecord bool
	agg      *aggregator.Aggregator
	fan      *sink.Fanout
	invalid  []model.ParseError
	dropped  int64
}

// Run processes path from its checkpoint to the end. Source and checkpoint
// errors are returned before any line is read. If the run stops early the
// checkpoint is kept, and the partial Result is returned with a *RunError.
func (p *Pipeline) Run(ctx context.Context, path string) (*Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer p.busy.Store(false)

	src, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if p.cfg.Lock {
		unlock, err := p.store.Lock()
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := unlock(); err != nil {
				p.logger.Warn("release checkpoint lock", "checkpoint", p.store.Path(), "err", err)
			}
		}()
	}

	r, err := p.begin(path)
	if err != nil {
		return nil, err
	}

	return p.finish(r, p.process(ctx, src, r))
}

// begin loads the checkpoint, rewinds the destinations to it and opens them.
func (p *Pipeline) begin(path string) (*run, error) {
	ckpt, err := p.store.Load()
	if err != nil {
		return nil, err
	}

	fresh := ckpt.LastIndex == 0
	offsets, ok, err := p.store.LoadOffsets()
	switch {
	case err != nil:
		p.logger.Warn("ignoring unreadable sink offsets; duplicates possible", "checkpoint", p.store.Path(), "err", err)
	case ok && offsets.Index == ckpt.LastIndex:
		if err := sink.Rewind(offsets.Sizes); err != nil {
			p.logger.Warn("destinations not fully rewound; duplicates possible", "err", err)
		}
		fresh = false
	case ok:
		p.logger.Warn("sink offsets do not match checkpoint; duplicates possible",
			"checkpoint", ckpt.LastIndex, "offsets", offsets.Index)
	}

	fan, err := sink.Open(p.cfg.Sinks, fresh)
	if err != nil {
		return nil, err
	}

	r := &run{
		source: path,
		start:  ckpt.LastIndex,
		next:   ckpt.LastIndex,
		agg:    aggregator.New(p.cfg.Format, p.cfg.TopN),
		fan:    fan,
	}

	p.mu.Lock()
	p.state = StateRunning
	p.agg = r.agg
	p.source = path
	p.start = r.start
	p.mu.Unlock()

	if r.start > 0 {
		p.logger.Info("resuming", "path", path, "index", r.start)
	} else {
		p.logger.Info("starting", "path", path)
	}
	p.emit(r, StateRunning)
	return r, nil
}

// process reads lines from r.start until the input ends, ctx is cancelled or
// a line cannot be written.
func (p *Pipeline) process(ctx context.Context, src *source.Source, r *run) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, v)
		}
	}()

	return src.Scan(r.start, func(raw model.RawLine) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.fan.Mark()
		r.inRecord = true
		if err := p.handle(r, raw); err != nil {
			return err
		}
		r.inRecord = false
		r.next = raw.Index + 1

		if r.next%p.cfg.Interval == 0 {
			if err := p.checkpoint(r, r.fan.Offsets()); err != nil {
				return err
			}
			p.emit(r, StateRunning)
		}
		return nil
	})
}

func (p *Pipeline) handle(r *run, raw model.RawLine) error {
	rec, err := p.parser.Parse(raw)
	if err != nil {
		var pe *model.ParseError
		if !errors.As(err, &pe) {
			return fmt.Errorf("parse line %d: %w", raw.Index, err)
		}
		r.agg.ObserveFailure()
		p.metrics.Line(metrics.ResultFailed)
		if p.cfg.MaxInvalid > 0 && len(r.invalid) >= p.cfg.MaxInvalid {
			r.dropped++
		} else {
			r.invalid = append(r.invalid, *pe)
		}
		return r.fan.OnFailure(raw, pe)
	}

	r.agg.Observe(rec)
	p.metrics.Line(metrics.ResultParsed)
	return r.fan.OnSuccess(raw, rec)
}

// checkpoint makes the destinations durable, then records their sizes and
// r.next. The sidecar goes first so a crash in between leaves a mismatch that
// the next run detects.
func (p *Pipeline) checkpoint(r *run, offsets map[string]int64) error {
	if err := r.fan.Sync(); err != nil {
		return err
	}
	if err := p.store.SaveOffsets(checkpoint.Offsets{Index: r.next, Sizes: offsets}); err != nil {
		return fmt.Errorf("save sink offsets: %w", err)
	}
	if err := p.store.Save(checkpoint.Checkpoint{LastIndex: r.next}); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	p.metrics.Checkpoint(r.next)
	s := r.agg.Snapshot()
	p.logger.Info("checkpoint saved",
		"checkpoint", p.store.Path(),
		"index", humanize.Comma(int64(r.next)),
		"records", humanize.Comma(s.TotalRecords),
		"failed", humanize.Comma(s.TotalFailed),
	)
	return nil
}

// finish moves the run to its terminal state.
func (p *Pipeline) finish(r *run, err error) (*Result, error) {
	if err == nil {
		if cerr := r.fan.Close(); cerr != nil {
			// Lines since the last checkpoint may not be on disk, so the
			// previous checkpoint stays authoritative.
			return p.stop(r, StateFaulted, cerr)
		}
		if cerr := p.store.Clear(); cerr != nil {
			return p.stop(r, StateFaulted, fmt.Errorf("clear checkpoint: %w", cerr))
		}

		res := p.result(r, StateCompleted)
		res.Next = 0
		p.setState(StateCompleted)
		p.metrics.Run(StateCompleted.String())
		p.logger.Info("run completed",
			"path", r.source,
			"records", humanize.Comma(res.Summary.TotalRecords),
			"failed", humanize.Comma(res.Summary.TotalFailed),
		)
		p.emit(r, StateCompleted)
		return res, nil
	}

	state := StateFaulted
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		state = StateInterrupted
		err = fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	offsets := r.fan.Offsets()
	if r.inRecord {
		offsets = r.fan.MarkedOffsets()
	}
	if perr := p.checkpoint(r, offsets); perr != nil {
		p.logger.Error("checkpoint not saved; previous checkpoint kept", "checkpoint", p.store.Path(), "err", perr)
		err = errors.Join(err, perr)
	}
	if cerr := r.fan.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return p.stop(r, state, err)
}

// stop records an early termination.
func (p *Pipeline) stop(r *run, state State, err error) (*Result, error) {
	r.fan.Close()
	p.setState(state)
	p.metrics.Run(state.String())
	if state == StateInterrupted {
		p.logger.Warn("run interrupted", "path", r.source, "index", r.next)
	} else {
		p.logger.Error("run faulted", "path", r.source, "index", r.next, "err", err)
	}
	p.emit(r, state)
	return p.result(r, state), &RunError{State: state, Index: r.next, Err: err}
}

func (p *Pipeline) result(r *run, state State) *Result {
	s := r.agg.Snapshot()
	s.Source = r.source
	s.StartIndex = r.start
	return &Result{
		State:          state,
		Summary:        s,
		Invalid:        r.invalid,
		InvalidDropped: r.dropped,
		Next:           r.next,
	}
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) emit(r *run, state State) {
	if p.observer == nil {
		return
	}
	s := r.agg.Snapshot()
	p.observer(model.Progress{
		Time:    time.Now(),
		Source:  r.source,
		State:   state.String(),
		Index:   r.next,
		Records: s.TotalRecords,
		Failed:  s.TotalFailed,
	})
}
