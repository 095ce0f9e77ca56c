package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/atikulmunna/loglens/internal/model"
)

// Failure reasons reported in ParseError.Reason.
const (
	ReasonCorrupted = "Corrupted log format"
	ReasonInvalid   = "Invalid log format"
)

// ErrUnknownFormat is returned by New for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown log format")

// Parser converts a raw log line into a structured Record.
// Malformed input is reported as a *model.ParseError, never as a panic.
type Parser interface {
	Parse(raw model.RawLine) (model.Record, error)
	Format() model.Format
}

// New returns the parser for the given format.
func New(format model.Format) (Parser, error) {
	switch format {
	case model.FormatText, "":
		return NewTextParser(), nil
	case model.FormatAccess:
		return NewAccessParser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ---------------------------------------------------------------------------
// Text Parser
// ---------------------------------------------------------------------------

// TextParser handles "DATE LEVEL message" lines.
type TextParser struct{}

func NewTextParser() *TextParser { return &TextParser{} }

func (p *TextParser) Format() model.Format { return model.FormatText }

func (p *TextParser) Parse(raw model.RawLine) (model.Record, error) {
	date, rest, ok := nextField(strings.TrimSpace(raw.Text))
	if !ok {
		return nil, model.NewParseError(raw, ReasonCorrupted)
	}
	level, message, ok := nextField(rest)
	if !ok || message == "" {
		return nil, model.NewParseError(raw, ReasonCorrupted)
	}

	return model.TextRecord{Date: date, Level: level, Message: message}, nil
}

// nextField splits s at the first run of whitespace.
func nextField(s string) (field, rest string, ok bool) {
	i := strings.IndexFunc(s, isSpace)
	if i <= 0 {
		return s, "", s != ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], isSpace), true
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

// ---------------------------------------------------------------------------
// Access Parser (Common Log Format)
// ---------------------------------------------------------------------------

// AccessParser handles Apache/Nginx Common Log Format lines.
// Format: ip ident authuser [date] "METHOD ENDPOINT PROTOCOL" status size
type AccessParser struct {
	re *regexp.Regexp
}

func NewAccessParser() *AccessParser {
	return &AccessParser{
		re: regexp.MustCompile(`^(\S+)\s+\S+\s+\S+\s+\[([^\]]+)\]\s+"(\S+)\s+(\S+)\s+([^"]+)"\s+([1-5]\d{2})\s+(-|\d+)\s*$`),
	}
}

func (p *AccessParser) Format() model.Format { return model.FormatAccess }

func (p *AccessParser) Parse(raw model.RawLine) (model.Record, error) {
	matches := p.re.FindStringSubmatch(raw.Text)
	if matches == nil {
		return nil, model.NewParseError(raw, ReasonInvalid)
	}

	// The pattern guarantees three digits.
	status, _ := strconv.Atoi(matches[6])

	var size int64
	if matches[7] != "-" {
		n, err := strconv.ParseInt(matches[7], 10, 64)
		if err != nil {
			return nil, model.NewParseError(raw, ReasonInvalid)
		}
		size = n
	}

	return model.AccessRecord{
		IP:        matches[1],
		Timestamp: matches[2],
		Method:    matches[3],
		Endpoint:  matches[4],
		Protocol:  strings.TrimSpace(matches[5]),
		Status:    status,
		Size:      size,
	}, nil
}
