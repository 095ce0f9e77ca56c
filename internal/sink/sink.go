// Package sink routes parsed lines to the run's output files.
package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/atikulmunna/loglens/internal/model"
)

// Header is the first row of the tabular output on a fresh run.
var Header = []string{"index", "date_or_timestamp", "level_or_status", "message_or_endpoint"}

const writeBufferSize = 32 * 1024

// ErrDuplicateCategory is returned by Open when two category keys differ only
// in case but name different files.
var ErrDuplicateCategory = errors.New("duplicate category")

// File is the handle a destination writes through.
type File interface {
	io.Writer
	Sync() error
	Close() error
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Config names the destination files. Empty paths are disabled.
type Config struct {
	Corrupted string
	Table     string
	Cleaned   string
	// Categories maps a route key (a level such as "ERROR" or a status class
	// such as "5XX") to a file receiving those lines. Keys are matched
	// case-insensitively.
	Categories map[string]string
	// Open opens a destination; nil means OpenFile.
	Open func(path string) (File, error)
}

// Paths returns every configured destination path, sorted and deduplicated.
func (c Config) Paths() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(c.Corrupted)
	add(c.Table)
	add(c.Cleaned)
	for _, p := range c.Categories {
		add(p)
	}
	sort.Strings(out)
	return out
}

// destination is one append-only output file. size counts every byte handed
// to it, buffered or not. A failed write keeps the unwritten bytes pending so
// a later flush can retry them.
type destination struct {
	path   string
	file   File
	buf    []byte
	size   int64
	marked int64
}

func (d *destination) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	d.size += int64(len(p))
	return len(p), d.maybeFlush()
}

func (d *destination) writeLine(s string) error {
	d.buf = append(d.buf, s...)
	d.buf = append(d.buf, '\n')
	d.size += int64(len(s)) + 1
	return d.maybeFlush()
}

func (d *destination) maybeFlush() error {
	if len(d.buf) < writeBufferSize {
		return nil
	}
	return d.flush()
}

func (d *destination) flush() error {
	for len(d.buf) > 0 {
		n, err := d.file.Write(d.buf)
		d.buf = d.buf[:copy(d.buf, d.buf[n:])]
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

// Fanout writes each line to the destinations selected by its content.
// Files are opened once in append mode and kept open until Close.
type Fanout struct {
	dests      []*destination
	corrupted  *destination
	cleaned    *destination
	table      *destination
	csv        *csv.Writer
	categories map[string]*destination
	closed     bool
}

// Open opens every configured destination. When header is true a header row
// is written to the tabular output.
func Open(cfg Config, header bool) (*Fanout, error) {
	f := &Fanout{categories: make(map[string]*destination)}
	byPath := make(map[string]*destination)

	openFile := cfg.Open
	if openFile == nil {
		openFile = OpenFile
	}

	keys := make(map[string]string, len(cfg.Categories))
	for key, path := range cfg.Categories {
		upper := strings.ToUpper(key)
		if prev, ok := keys[upper]; ok && prev != path {
			return nil, fmt.Errorf("%w: %q maps to both %s and %s", ErrDuplicateCategory, upper, prev, path)
		}
		keys[upper] = path
	}

	open := func(path string) (*destination, error) {
		if path == "" {
			return nil, nil
		}
		if d, ok := byPath[path]; ok {
			return d, nil
		}
		d, err := openDestination(path, openFile)
		if err != nil {
			return nil, err
		}
		byPath[path] = d
		f.dests = append(f.dests, d)
		return d, nil
	}

	var err error
	if f.corrupted, err = open(cfg.Corrupted); err != nil {
		f.Close()
		return nil, err
	}
	if f.cleaned, err = open(cfg.Cleaned); err != nil {
		f.Close()
		return nil, err
	}
	if f.table, err = open(cfg.Table); err != nil {
		f.Close()
		return nil, err
	}
	for key, path := range keys {
		d, err := open(path)
		if err != nil {
			f.Close()
			return nil, err
		}
		f.categories[key] = d
	}

	if f.table != nil {
		f.csv = csv.NewWriter(f.table)
		if header {
			if err := f.writeRow(Header); err != nil {
				f.Close()
				return nil, err
			}
		}
	}
	f.Mark()

	return f, nil
}

func openDestination(path string, openFile func(string) (File, error)) (*destination, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", path, err)
	}
	file, err := openFile(path)
	if err != nil {
		return nil, fmt.Errorf("open destination %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat destination %s: %w", path, err)
	}
	return &destination{
		path: path,
		file: file,
		buf:  make([]byte, 0, writeBufferSize),
		size: info.Size(),
	}, nil
}

// OnSuccess writes a parsed line to the tabular, category and cleaned outputs.
func (f *Fanout) OnSuccess(raw model.RawLine, rec model.Record) error {
	if f.csv != nil {
		ts, subject := rec.Columns()
		row := []string{strconv.FormatUint(raw.Index, 10), ts, rec.Category(), subject}
		if err := f.writeRow(row); err != nil {
			return err
		}
	}
	if d, ok := f.categories[strings.ToUpper(rec.Route())]; ok {
		if err := d.writeLine(raw.Text); err != nil {
			return fmt.Errorf("write %s: %w", d.path, err)
		}
	}
	if f.cleaned != nil {
		if err := f.cleaned.writeLine(raw.Text); err != nil {
			return fmt.Errorf("write %s: %w", f.cleaned.path, err)
		}
	}
	return nil
}

// OnFailure writes "{index}: {text}" to the corrupted-lines output.
func (f *Fanout) OnFailure(raw model.RawLine, _ *model.ParseError) error {
	if f.corrupted == nil {
		return nil
	}
	if err := f.corrupted.writeLine(strconv.FormatUint(raw.Index, 10) + ": " + raw.Text); err != nil {
		return fmt.Errorf("write %s: %w", f.corrupted.path, err)
	}
	return nil
}

// writeRow pushes a row through the csv encoder into the table buffer so the
// destination size stays exact after every row.
func (f *Fanout) writeRow(row []string) error {
	if err := f.csv.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", f.table.path, err)
	}
	f.csv.Flush()
	if err := f.csv.Error(); err != nil {
		return fmt.Errorf("write %s: %w", f.table.path, err)
	}
	return nil
}

// Mark remembers the current sizes; MarkedOffsets returns them.
func (f *Fanout) Mark() {
	for _, d := range f.dests {
		d.marked = d.size
	}
}

// Offsets returns the size every destination has once buffers are flushed.
func (f *Fanout) Offsets() map[string]int64 {
	out := make(map[string]int64, len(f.dests))
	for _, d := range f.dests {
		out[d.path] = d.size
	}
	return out
}

// MarkedOffsets returns the sizes recorded by the last Mark.
func (f *Fanout) MarkedOffsets() map[string]int64 {
	out := make(map[string]int64, len(f.dests))
	for _, d := range f.dests {
		out[d.path] = d.marked
	}
	return out
}

// Flush writes buffered data to the files.
func (f *Fanout) Flush() error {
	var errs []error
	for _, d := range f.dests {
		if err := d.flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", d.path, err))
		}
	}
	return errors.Join(errs...)
}

// Sync flushes and then commits every file to stable storage.
func (f *Fanout) Sync() error {
	if err := f.Flush(); err != nil {
		return err
	}
	var errs []error
	for _, d := range f.dests {
		if err := d.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", d.path, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes every destination. It is safe to call more than once.
func (f *Fanout) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	errs := []error{f.Flush()}
	for _, d := range f.dests {
		if err := d.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", d.path, err))
		}
	}
	return errors.Join(errs...)
}
