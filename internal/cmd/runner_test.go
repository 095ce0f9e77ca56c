package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/loglens/internal/config"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/pipeline"
)

func testRunner(t *testing.T, restart bool) (*runner, string) {
	t.Helper()

	dir := t.TempDir()
	c := config.Default()
	c.Checkpoint.Dir = filepath.Join(dir, "state")
	c.Checkpoint.Interval = 2
	c.Outputs.Dir = filepath.Join(dir, "out")
	c.Report.Dir = filepath.Join(dir, "reports")

	return &runner{
		cfg:      c,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		noReport: true,
		scoped:   true,
		restart:  restart,
	}, dir
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

// interruptAt runs path with r and cancels the run once it reports index.
func interruptAt(t *testing.T, r *runner, path string, index uint64) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.observer = func(ev model.Progress) {
		if ev.Index == index {
			cancel()
		}
	}
	defer func() { r.observer = nil }()

	_, err := r.Analyze(ctx, path)
	require.ErrorIs(t, err, pipeline.ErrInterrupted)
}

func TestRunnerRestartIgnoresStaleCheckpoint(t *testing.T) {
	t.Parallel()

	r, dir := testRunner(t, true)
	path := filepath.Join(dir, "app.log")

	writeLines(t, path,
		"2024-01-01 INFO a", "2024-01-01 INFO b", "2024-01-01 INFO c", "2024-01-01 INFO d")
	interruptAt(t, r, path, 2)

	// Same name, different content.
	writeLines(t, path, "2024-02-01 ERROR x", "2024-02-01 ERROR y", "2024-02-01 INFO z")
	a, err := r.Analyze(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), a.Summary.StartIndex)
	assert.Equal(t, int64(3), a.Summary.TotalRecords)

	csv, err := os.ReadFile(filepath.Join(r.scope(path).Outputs.Dir, "logs_output.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(csv), "index,"))
	assert.NotContains(t, string(csv), "2024-01-01")
	assert.Equal(t, 4, strings.Count(string(csv), "\n"))
}

func TestRunnerResumesWithoutRestart(t *testing.T) {
	t.Parallel()

	r, dir := testRunner(t, false)
	path := filepath.Join(dir, "app.log")

	writeLines(t, path,
		"2024-01-01 INFO a", "2024-01-01 INFO b", "2024-01-01 INFO c", "2024-01-01 INFO d")
	interruptAt(t, r, path, 2)

	a, err := r.Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), a.Summary.StartIndex)
	assert.Equal(t, int64(2), a.Summary.TotalRecords)
}

func TestRunnerRunning(t *testing.T) {
	t.Parallel()

	r, dir := testRunner(t, false)
	path := filepath.Join(dir, "app.log")
	writeLines(t, path, "2024-01-01 INFO a", "2024-01-01 ERROR b", "2024-01-01 INFO c")

	var during []model.Summary
	r.observer = func(ev model.Progress) {
		if ev.Index == 2 {
			during = r.Running()
		}
	}

	_, err := r.Analyze(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, during, 1)
	assert.Equal(t, path, during[0].Source)
	assert.Equal(t, int64(2), during[0].TotalRecords)
	assert.Empty(t, r.Running())
}
