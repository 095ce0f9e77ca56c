package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/loglens/internal/checkpoint"
	"github.com/atikulmunna/loglens/internal/hub"
	"github.com/atikulmunna/loglens/internal/metrics"
	"github.com/atikulmunna/loglens/internal/model"
)

type fakeAnalyzer struct {
	paths []string
	err   error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, path string) (*model.Analysis, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}

	invalid := make([]model.ParseError, 20)
	for i := range invalid {
		invalid[i] = model.ParseError{Index: uint64(i), Reason: "Invalid log format", Preview: "bad"}
	}
	return &model.Analysis{
		Summary: model.Summary{Source: path, Format: model.FormatText, TotalRecords: 3, TotalFailed: 20,
			Categories: map[string]int64{"INFO": 3}},
		Invalid: invalid,
		Reports: map[string]string{"summary_report": "reports/summary_report.json"},
	}, nil
}

func upload(t *testing.T, h http.Handler, field, name, body string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeUpload(t *testing.T) {
	t.Parallel()

	uploads := filepath.Join(t.TempDir(), "uploads")
	fa := &fakeAnalyzer{}
	s := New(fa, nil, nil, uploads, nil)

	rec := upload(t, s.Handler(), "logfile", "../../etc/app.log", "2024-01-01 INFO ok\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, fa.paths, 1)
	assert.Equal(t, uploads, filepath.Dir(fa.paths[0]))
	assert.True(t, strings.HasSuffix(fa.paths[0], "-app.log"), fa.paths[0])
	raw, err := os.ReadFile(fa.paths[0])
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 INFO ok\n", string(raw))

	var resp struct {
		Summary model.Summary      `json:"summary"`
		Invalid []model.ParseError `json:"invalid_lines"`
		Reports map[string]string  `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Summary.TotalRecords)
	assert.Len(t, resp.Invalid, invalidPreview)
	assert.Contains(t, resp.Reports, "summary_report")

	stats := httptest.NewRecorder()
	s.Handler().ServeHTTP(stats, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, stats.Code)
	assert.Contains(t, stats.Body.String(), `"total_records":3`)
}

func TestAnalyzeRejectsMissingFile(t *testing.T) {
	t.Parallel()

	s := New(&fakeAnalyzer{}, nil, nil, t.TempDir(), nil)

	rec := upload(t, s.Handler(), "other", "app.log", "x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No file uploaded")
}

func TestAnalyzeRejectsDotNames(t *testing.T) {
	t.Parallel()

	fa := &fakeAnalyzer{}
	s := New(fa, nil, nil, filepath.Join(t.TempDir(), "uploads"), nil)

	for _, name := range []string{".", ".."} {
		rec := upload(t, s.Handler(), "logfile", name, "x")
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, rec.Body.String(), "No selected file", name)
	}
	assert.Empty(t, fa.paths)
}

func TestAnalyzeSameNameUploadsKeptApart(t *testing.T) {
	t.Parallel()

	uploads := t.TempDir()
	fa := &fakeAnalyzer{}
	s := New(fa, nil, nil, uploads, nil)

	require.Equal(t, http.StatusOK, upload(t, s.Handler(), "logfile", "app.log", "first\n").Code)
	require.Equal(t, http.StatusOK, upload(t, s.Handler(), "logfile", "app.log", "second\n").Code)

	require.Len(t, fa.paths, 2)
	assert.NotEqual(t, fa.paths[0], fa.paths[1])

	first, err := os.ReadFile(fa.paths[0])
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(first))
	second, err := os.ReadFile(fa.paths[1])
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(second))
}

type monitoringAnalyzer struct {
	fakeAnalyzer
}

func (m *monitoringAnalyzer) Running() []model.Summary {
	return []model.Summary{{Source: "big.log", TotalRecords: 42}}
}

func TestStatsIncludesRunningAnalyses(t *testing.T) {
	t.Parallel()

	s := New(&monitoringAnalyzer{}, hub.New(nil), nil, t.TempDir(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Running []model.Summary `json:"running"`
		Dropped int64           `json:"dropped_events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Running, 1)
	assert.Equal(t, "big.log", resp.Running[0].Source)
	assert.Equal(t, int64(42), resp.Running[0].TotalRecords)
}

func TestAnalyzeErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("open: %w", checkpoint.ErrLocked), http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		s := New(&fakeAnalyzer{err: tt.err}, nil, nil, t.TempDir(), nil)
		rec := upload(t, s.Handler(), "logfile", "app.log", "x")
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	m.Line(metrics.ResultParsed)

	s := New(&fakeAnalyzer{}, nil, reg, t.TempDir(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "loglens_lines_total")
}

func TestWebSocketStreamsProgress(t *testing.T) {
	t.Parallel()

	h := hub.New(nil)
	defer h.Close()
	h.Publish(model.Progress{Source: "a.log", State: "running", Index: 10})

	ts := httptest.NewServer(New(&fakeAnalyzer{}, h, nil, t.TempDir(), nil).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ev model.Progress
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "a.log", ev.Source)
	assert.Equal(t, uint64(10), ev.Index)

	h.Publish(model.Progress{Source: "a.log", State: "completed"})
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "completed", ev.State)
}
