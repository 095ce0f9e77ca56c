package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/atikulmunna/loglens/internal/model"
)

// invalidShown is how many invalid lines the text renderer lists.
const invalidShown = 15

// ErrUnknownFormat is returned by New for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Renderer writes an Analysis to an output stream.
type Renderer interface {
	Render(a model.Analysis) error
}

// New returns the renderer for "text", "json" or "yaml".
func New(format string, w io.Writer) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return NewTextRenderer(w), nil
	case "json":
		return NewJSONRenderer(w), nil
	case "yaml", "yml":
		return NewYAMLRenderer(w), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal tables)
// ---------------------------------------------------------------------------

var (
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("220")) // yellow
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleTitle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true) // cyan
)

// TextRenderer prints a summary as tables with severity-based colors.
type TextRenderer struct {
	w io.Writer
}

func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Render(a model.Analysis) error {
	s := a.Summary
	var b strings.Builder

	fmt.Fprintln(&b, styleTitle.Render("Log analysis: "+s.Source))
	fmt.Fprintf(&b, "format %s, from line %s\n", s.Format, humanize.Comma(int64(s.StartIndex)))
	fmt.Fprintf(&b, "records: %s  corrupted: %s", humanize.Comma(s.TotalRecords), humanize.Comma(s.TotalFailed))
	if s.Format == model.FormatAccess {
		fmt.Fprintf(&b, "  bytes: %s", humanize.Bytes(uint64(s.TotalBytes)))
	}
	fmt.Fprint(&b, "\n\n")

	b.WriteString(categoryTable(s).Render())
	b.WriteString("\n")

	errTitle := "Top ERROR messages"
	if s.Format == model.FormatAccess {
		errTitle = "Top failing requests (5xx)"
	}
	b.WriteString(frequencyTable(errTitle, "Message", s.TopErrors).Render())
	b.WriteString("\n")

	if s.Format == model.FormatAccess {
		b.WriteString(frequencyTable("Top endpoints", "Endpoint", s.TopEndpoints).Render())
		b.WriteString("\n")
		b.WriteString(frequencyTable("Top IPs", "IP", s.TopIPs).Render())
		b.WriteString("\n")
	}

	if len(a.Invalid) > 0 {
		b.WriteString(invalidTable(a).Render())
		b.WriteString("\n")
	}

	for name, path := range sortedReports(a.Reports) {
		fmt.Fprintf(&b, "report %s: %s\n", name, path)
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

func categoryTable(s model.Summary) table.Writer {
	keys := make([]string, 0, len(s.Categories))
	for k := range s.Categories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := s.Categories[keys[i]], s.Categories[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})

	header := "Level"
	if s.Format == model.FormatAccess {
		header = "Status"
	}

	tbl := newTable("Counts")
	tbl.AppendHeader(table.Row{header, "Count"})
	for _, k := range keys {
		tbl.AppendRow(table.Row{styleCategory(k), humanize.Comma(s.Categories[k])})
	}
	return tbl
}

func frequencyTable(title, column string, items []model.Frequency) table.Writer {
	tbl := newTable(title)
	tbl.AppendHeader(table.Row{"#", column, "Count"})
	for i, f := range items {
		tbl.AppendRow(table.Row{i + 1, f.Key, humanize.Comma(f.Count)})
	}
	return tbl
}

func invalidTable(a model.Analysis) table.Writer {
	tbl := newTable("Invalid lines")
	tbl.AppendHeader(table.Row{"Line", "Error", "Preview"})
	for i, pe := range a.Invalid {
		if i == invalidShown {
			break
		}
		tbl.AppendRow(table.Row{pe.Index, pe.Reason, pe.Preview})
	}
	if hidden := int64(max(len(a.Invalid)-invalidShown, 0)) + a.InvalidDropped; hidden > 0 {
		tbl.AppendFooter(table.Row{"", "", fmt.Sprintf("%s more", humanize.Comma(hidden))})
	}
	return tbl
}

func newTable(title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(title)
	return tbl
}

// styleCategory colors a level or status code by severity.
func styleCategory(key string) string {
	switch strings.ToUpper(key) {
	case "ERROR", "FATAL", "CRITICAL":
		return styleError.Render(key)
	case "WARN", "WARNING":
		return styleWarn.Render(key)
	}
	if len(key) == 3 {
		switch key[0] {
		case '5':
			return styleError.Render(key)
		case '4':
			return styleWarn.Render(key)
		}
	}
	return styleInfo.Render(key)
}

// sortedReports yields report names in a stable order.
func sortedReports(reports map[string]string) func(func(string, string) bool) {
	return func(yield func(string, string) bool) {
		names := make([]string, 0, len(reports))
		for name := range reports {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !yield(name, reports[name]) {
				return
			}
		}
	}
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints the analysis as an indented JSON document.
type JSONRenderer struct {
	enc *json.Encoder
}

func NewJSONRenderer(w io.Writer) *JSONRenderer {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSONRenderer{enc: enc}
}

func (r *JSONRenderer) Render(a model.Analysis) error {
	return r.enc.Encode(a)
}

// ---------------------------------------------------------------------------
// YAML Renderer
// ---------------------------------------------------------------------------

// YAMLRenderer prints the analysis as a YAML document.
type YAMLRenderer struct {
	w io.Writer
}

func NewYAMLRenderer(w io.Writer) *YAMLRenderer {
	return &YAMLRenderer{w: w}
}

func (r *YAMLRenderer) Render(a model.Analysis) error {
	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(a); err != nil {
		return err
	}
	return enc.Close()
}
