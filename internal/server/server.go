// Package server exposes analyses over HTTP: uploads, stats, metrics and a
// WebSocket progress stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atikulmunna/loglens/internal/checkpoint"
	"github.com/atikulmunna/loglens/internal/hub"
	"github.com/atikulmunna/loglens/internal/metrics"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/pipeline"
)

// invalidPreview is the number of invalid lines returned by the upload API.
const invalidPreview = 15

const shutdownTimeout = 5 * time.Second

// Analyzer runs a full analysis of the file at path.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*model.Analysis, error)
}

// Monitor is implemented by analyzers that can report the running totals of
// analyses still in progress.
type Monitor interface {
	Running() []model.Summary
}

// Server holds the Gin engine and dependencies for the HTTP API.
type Server struct {
	engine   *gin.Engine
	hub      *hub.Hub
	analyzer Analyzer
	gatherer prometheus.Gatherer
	uploads  string
	logger   *slog.Logger

	mu   sync.RWMutex
	last *model.Analysis
}

// New creates the HTTP API. Uploaded files are stored under uploads.
func New(a Analyzer, h *hub.Hub, g prometheus.Gatherer, uploads string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Disable automatic redirects that cause 301 issues.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine:   engine,
		hub:      h,
		analyzer: a,
		gatherer: g,
		uploads:  uploads,
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.engine.POST("/api/analyze", s.handleAnalyze)
	s.engine.GET("/api/stats", s.handleStats)

	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics.Handler(s.gatherer)))
	}

	// WebSocket.
	s.engine.GET("/ws", s.handleWebSocket)

	// pprof profiling endpoints.
	s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	s.engine.GET("/debug/pprof/allocs", gin.WrapH(pprof.Handler("allocs")))
	s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
	s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

func (s *Server) handleAnalyze(c *gin.Context) {
	file, err := c.FormFile("logfile")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	name := filepath.Base(file.Filename)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
		return
	}

	path, err := s.reserve(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := c.SaveUploadedFile(file, path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("analyzing upload", "file", name, "bytes", file.Size)
	a, err := s.analyzer.Analyze(c.Request.Context(), path)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.last = a
	s.mu.Unlock()

	invalid := a.Invalid
	if len(invalid) > invalidPreview {
		invalid = invalid[:invalidPreview]
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":       a.Summary,
		"invalid_lines": invalid,
		"reports":       a.Reports,
	})
}

// reserve creates an empty, uniquely named file for an upload so that two
// uploads with the same name never share a file or a checkpoint.
func (s *Server) reserve(name string) (string, error) {
	if err := os.MkdirAll(s.uploads, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(s.uploads, "*-"+name)
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (s *Server) handleStats(c *gin.Context) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	resp := gin.H{"last": last}
	if m, ok := s.analyzer.(Monitor); ok {
		resp["running"] = m.Running()
	}
	if s.hub != nil {
		resp["runs"] = s.hub.Latest()
		resp["dropped_events"] = s.hub.Dropped()
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checkpoint.ErrLocked), errors.Is(err, pipeline.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrInterrupted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
