// Package source reads log files line by line without loading them into memory.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/atikulmunna/loglens/internal/model"
)

// readBufferSize is the bufio buffer used while scanning.
const readBufferSize = 64 * 1024

// ErrSourceNotFound is returned by Open when the path does not exist.
var ErrSourceNotFound = errors.New("source not found")

// Source is an open log file.
type Source struct {
	path string
	file *os.File
}

// Open opens path for scanning.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open %s: is a directory", path)
	}

	return &Source{path: path, file: f}, nil
}

// Close releases the file handle.
func (s *Source) Close() error {
	return s.file.Close()
}

// Scan calls fn for every line whose index is at least skip, in file order.
// Each call starts again from the beginning of the file, so repeated scans of
// an unmodified file yield the same lines. Invalid UTF-8 is replaced with
// U+FFFD. A non-nil error from fn stops the scan and is returned as is.
func (s *Source) Scan(skip uint64, fn func(model.RawLine) error) error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", s.path, err)
	}

	r := bufio.NewReaderSize(s.file, readBufferSize)
	var index uint64
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			if index >= skip {
				if ferr := fn(model.RawLine{Index: index, Text: clean(line)}); ferr != nil {
					return ferr
				}
			}
			index++
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read %s: %w", s.path, err)
		}
	}
}

// clean strips the line terminator and replaces invalid byte sequences.
func clean(line string) string {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return strings.ToValidUTF8(line, "�")
}

// Expand resolves glob patterns (including "**") to regular files.
// A pattern without glob metacharacters is returned unchanged so that a
// missing file still surfaces as ErrSourceNotFound from Open.
func Expand(patterns []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			if !seen[pattern] {
				seen[pattern] = true
				out = append(out, pattern)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
