// Package report writes the artifacts of a finished analysis to a directory.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/atikulmunna/loglens/internal/model"
)

// Artifact file names.
const (
	SummaryFile = "summary_report.json"
	ErrorFile   = "error_report.json"
	CountsFile  = "status_code_report.csv"
	FullFile    = "full_report.json"
	TextFile    = "report.txt"
)

// Write renders a into dir and returns the written files keyed by artifact name.
func Write(dir string, a model.Analysis) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	invalid := a.Invalid
	if invalid == nil {
		invalid = []model.ParseError{}
	}

	files := map[string]string{
		"summary_report": filepath.Join(dir, SummaryFile),
		"error_report":   filepath.Join(dir, ErrorFile),
		"status_csv":     filepath.Join(dir, CountsFile),
		"full_report":    filepath.Join(dir, FullFile),
		"text_report":    filepath.Join(dir, TextFile),
	}

	steps := []struct {
		path  string
		write func(string) error
	}{
		{files["summary_report"], func(p string) error { return writeJSON(p, a.Summary) }},
		{files["error_report"], func(p string) error {
			return writeJSON(p, map[string]any{"invalid_lines": invalid, "invalid_dropped": a.InvalidDropped})
		}},
		{files["status_csv"], func(p string) error { return writeCounts(p, a.Summary) }},
		{files["full_report"], func(p string) error {
			return writeJSON(p, map[string]any{"summary": a.Summary, "invalid_lines": invalid})
		}},
		{files["text_report"], func(p string) error { return os.WriteFile(p, []byte(Text(a.Summary)), 0o644) }},
	}
	for _, s := range steps {
		if err := s.write(s.path); err != nil {
			return nil, fmt.Errorf("write %s: %w", s.path, err)
		}
	}
	return files, nil
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// writeCounts writes the category counts, highest first.
func writeCounts(path string, s model.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := "level"
	if s.Format == model.FormatAccess {
		header = "status_code"
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{header, "count"}); err != nil {
		return err
	}
	for _, key := range sortedKeys(s.Categories) {
		if err := w.Write([]string{key, strconv.FormatInt(s.Categories[key], 10)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// Text renders the plain-text report.
func Text(s model.Summary) string {
	var b strings.Builder
	b.WriteString("LOG ANALYSIS REPORT\n")
	b.WriteString(strings.Repeat("=", 35) + "\n\n")
	fmt.Fprintf(&b, "Source: %s\n", s.Source)
	fmt.Fprintf(&b, "Records: %s\n", humanize.Comma(s.TotalRecords))
	fmt.Fprintf(&b, "Corrupted Lines Count: %s\n", humanize.Comma(s.TotalFailed))
	if s.Format == model.FormatAccess {
		fmt.Fprintf(&b, "Total Bytes: %s (%s)\n", humanize.Comma(s.TotalBytes), humanize.Bytes(uint64(s.TotalBytes)))
	}
	b.WriteString("\n")

	counts := table.NewWriter()
	counts.SetStyle(table.StyleDefault)
	counts.SetTitle("Counts")
	for _, key := range sortedKeys(s.Categories) {
		counts.AppendRow(table.Row{key, s.Categories[key]})
	}
	b.WriteString(counts.Render())
	b.WriteString("\n\n")

	writeTop(&b, fmt.Sprintf("Top %d ERROR Messages", len(s.TopErrors)), s.TopErrors)
	if s.Format == model.FormatAccess {
		writeTop(&b, "Top Endpoints", s.TopEndpoints)
		writeTop(&b, "Top IPs", s.TopIPs)
	}
	return b.String()
}

func writeTop(b *strings.Builder, title string, items []model.Frequency) {
	b.WriteString(title + ":\n")
	b.WriteString(strings.Repeat("-", 35) + "\n")
	for _, f := range items {
		fmt.Fprintf(b, "%d times -> %s\n", f.Count, f.Key)
	}
	b.WriteString("\n")
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
