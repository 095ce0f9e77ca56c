package model

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Format selects the grammar lines of a source file are parsed with.
type Format string

const (
	FormatText   Format = "text"   // "DATE LEVEL message"
	FormatAccess Format = "access" // Apache/Nginx Common Log Format
)

// PreviewLen bounds the raw text carried by a ParseError.
const PreviewLen = 120

// RawLine is a single line read from a source file.
// Index is the 0-based line number; Text has its line terminator stripped.
type RawLine struct {
	Index uint64 `json:"index"`
	Text  string `json:"text"`
}

// Record is a fully parsed line.
type Record interface {
	// Category is the key records are counted by: the level for free-text
	// lines, the status code for access lines.
	Category() string
	// Route selects the per-category destination a line is copied to.
	Route() string
	// Columns returns the timestamp and subject cells of the tabular output.
	Columns() (timestamp, subject string)
}

// TextRecord is a free-text line such as "2026-01-19 ERROR disk failure".
type TextRecord struct {
	Date    string `json:"date"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (r TextRecord) Category() string          { return r.Level }
func (r TextRecord) Route() string             { return r.Level }
func (r TextRecord) Columns() (string, string) { return r.Date, r.Message }

// AccessRecord is a web access log request.
type AccessRecord struct {
	IP        string `json:"ip"`
	Timestamp string `json:"timestamp"`
	Method    string `json:"method"`
	Endpoint  string `json:"endpoint"`
	Protocol  string `json:"protocol"`
	Status    int    `json:"status"`
	Size      int64  `json:"size"`
}

func (r AccessRecord) Category() string          { return strconv.Itoa(r.Status) }
func (r AccessRecord) Columns() (string, string) { return r.Timestamp, r.Endpoint }

// Route returns the status class, e.g. "5xx".
func (r AccessRecord) Route() string { return fmt.Sprintf("%dxx", r.Status/100) }

// ParseError describes why a line could not become a Record.
type ParseError struct {
	Index   uint64 `json:"line_no" yaml:"line_no"`
	Reason  string `json:"error" yaml:"error"`
	Preview string `json:"preview" yaml:"preview"`
}

// NewParseError builds a ParseError for raw with a bounded preview.
func NewParseError(raw RawLine, reason string) *ParseError {
	return &ParseError{
		Index:   raw.Index,
		Reason:  reason,
		Preview: truncateRunes(raw.Text, PreviewLen),
	}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Index, e.Reason)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
