package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/loglens/internal/model"
)

func TestWrite(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports")
	a := model.Analysis{
		Summary: model.Summary{
			Source:       "access.log",
			Format:       model.FormatAccess,
			TotalRecords: 4,
			TotalFailed:  1,
			TotalBytes:   1536,
			Categories:   map[string]int64{"200": 3, "404": 1},
			TopErrors:    []model.Frequency{},
			TopEndpoints: []model.Frequency{{Key: "/home", Count: 4}},
			TopIPs:       []model.Frequency{{Key: "127.0.0.1", Count: 4}},
		},
		Invalid: []model.ParseError{{Index: 2, Reason: "Invalid log format", Preview: "oops"}},
	}

	files, err := Write(dir, a)
	require.NoError(t, err)
	require.Len(t, files, 5)
	for _, path := range files {
		assert.FileExists(t, path)
	}

	raw, err := os.ReadFile(files["status_csv"])
	require.NoError(t, err)
	assert.Equal(t, "status_code,count\n200,3\n404,1\n", string(raw))

	raw, err = os.ReadFile(files["error_report"])
	require.NoError(t, err)
	var errs struct {
		Invalid []model.ParseError `json:"invalid_lines"`
	}
	require.NoError(t, json.Unmarshal(raw, &errs))
	assert.Equal(t, a.Invalid, errs.Invalid)

	raw, err = os.ReadFile(files["full_report"])
	require.NoError(t, err)
	var full struct {
		Summary model.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &full))
	assert.Equal(t, a.Summary, full.Summary)

	raw, err = os.ReadFile(files["text_report"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Corrupted Lines Count: 1")
	assert.Contains(t, string(raw), "4 times -> /home")
	assert.Contains(t, string(raw), "1.5 kB")
}

func TestWriteTextFormatCounts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files, err := Write(dir, model.Analysis{Summary: model.Summary{
		Format:     model.FormatText,
		Categories: map[string]int64{"INFO": 2, "ERROR": 2, "WARNING": 5},
		TopErrors:  []model.Frequency{{Key: "disk full", Count: 2}},
	}})
	require.NoError(t, err)

	raw, err := os.ReadFile(files["status_csv"])
	require.NoError(t, err)
	assert.Equal(t, "level,count\nWARNING,5\nERROR,2\nINFO,2\n", string(raw))

	raw, err = os.ReadFile(files["error_report"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"invalid_lines": []`)

	raw, err = os.ReadFile(files["text_report"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Top 1 ERROR Messages:\n")
	assert.NotContains(t, string(raw), "Top 10")
}
