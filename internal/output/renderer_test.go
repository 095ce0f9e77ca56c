package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/atikulmunna/loglens/internal/model"
)

func sampleAnalysis() model.Analysis {
	return model.Analysis{
		Summary: model.Summary{
			Source:       "/var/log/access.log",
			Format:       model.FormatAccess,
			TotalRecords: 3,
			TotalFailed:  1,
			TotalBytes:   2048,
			Categories:   map[string]int64{"200": 2, "503": 1},
			TopErrors:    []model.Frequency{{Key: "GET /api", Count: 1}},
			TopEndpoints: []model.Frequency{{Key: "/home", Count: 2}, {Key: "/api", Count: 1}},
			TopIPs:       []model.Frequency{{Key: "10.0.0.1", Count: 3}},
		},
		Invalid: []model.ParseError{{Index: 4, Reason: "Invalid log format", Preview: "garbage"}},
		Reports: map[string]string{"summary_report": "reports/summary_report.json"},
	}
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONRenderer(&buf).Render(sampleAnalysis()))

	var got model.Analysis
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got), buf.String())
	assert.Equal(t, int64(3), got.Summary.TotalRecords)
	assert.Equal(t, "garbage", got.Invalid[0].Preview)
	assert.Contains(t, buf.String(), `"counts_by_category"`)
	assert.Contains(t, buf.String(), `"line_no": 4`)
}

func TestYAMLRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewYAMLRenderer(&buf).Render(sampleAnalysis()))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got), buf.String())
	summary, ok := got["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, summary["total_records"])
	assert.Contains(t, buf.String(), "top_endpoints:")
}

func TestTextRenderer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextRenderer(&buf).Render(sampleAnalysis()))

	out := buf.String()
	for _, want := range []string{
		"/var/log/access.log",
		"2.0 kB",
		"Top endpoints",
		"/home",
		"10.0.0.1",
		"Invalid log format",
		"reports/summary_report.json",
	} {
		assert.Contains(t, out, want)
	}
}

func TestTextRendererTextFormatOmitsAccessTables(t *testing.T) {
	a := model.Analysis{Summary: model.Summary{
		Format:     model.FormatText,
		Categories: map[string]int64{"ERROR": 1},
		TopErrors:  []model.Frequency{{Key: "disk full", Count: 1}},
	}}

	var buf bytes.Buffer
	require.NoError(t, NewTextRenderer(&buf).Render(a))
	assert.Contains(t, buf.String(), "Top ERROR messages")
	assert.NotContains(t, buf.String(), "Top endpoints")
	assert.NotContains(t, buf.String(), "bytes:")
}

func TestNew(t *testing.T) {
	for _, f := range []string{"", "text", "JSON", "yaml"} {
		_, err := New(f, &bytes.Buffer{})
		require.NoError(t, err, f)
	}
	_, err := New("xml", &bytes.Buffer{})
	require.ErrorIs(t, err, ErrUnknownFormat)
}
