// Package config loads loglens settings from file, environment and defaults.
package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/atikulmunna/loglens/internal/checkpoint"
	"github.com/atikulmunna/loglens/internal/model"
	"github.com/atikulmunna/loglens/internal/pipeline"
	"github.com/atikulmunna/loglens/internal/sink"
)

// Defaults.
const (
	DefaultFormat             = string(model.FormatText)
	DefaultCheckpointDir      = ".loglens"
	DefaultCheckpointInterval = pipeline.DefaultInterval
	DefaultCheckpointLock     = true
	DefaultOutputsDir         = "."
	DefaultCorrupted          = "corrupted.log"
	DefaultCSV                = "logs_output.csv"
	DefaultCleaned            = "cleaned_logs.log"
	DefaultReportDir          = "reports"
	DefaultTopN               = 10
	DefaultMaxInvalid         = 10000
	DefaultServerAddr         = ":8080"
	DefaultUploadsDir         = "uploads"
	DefaultInboxSettle        = 2 * time.Second
	DefaultLogLevel           = "info"
)

// Sentinel validation errors.
var (
	ErrInvalidFormat   = errors.New("format must be text or access")
	ErrInvalidInterval = errors.New("checkpoint.interval must be positive")
	ErrInvalidTopN     = errors.New("report.top_n must be positive")
	ErrInvalidMax      = errors.New("report.max_invalid must not be negative")
	ErrInvalidSettle   = errors.New("inbox.settle must be positive")
	ErrInvalidLogLevel = errors.New("log.level must be debug, info, warn or error")
)

// Config is the top-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Format     string           `mapstructure:"format"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Outputs    OutputsConfig    `mapstructure:"outputs"`
	Report     ReportConfig     `mapstructure:"report"`
	Server     ServerConfig     `mapstructure:"server"`
	Inbox      InboxConfig      `mapstructure:"inbox"`
	Log        LogConfig        `mapstructure:"log"`
}

// CheckpointConfig controls resume state.
type CheckpointConfig struct {
	// Path pins the checkpoint file. When empty, one file per source is
	// derived under Dir.
	Path     string `mapstructure:"path"`
	Dir      string `mapstructure:"dir"`
	Interval uint64 `mapstructure:"interval"`
	Lock     bool   `mapstructure:"lock"`
}

// OutputsConfig names the destination files, relative to Dir.
type OutputsConfig struct {
	Dir       string `mapstructure:"dir"`
	Corrupted string `mapstructure:"corrupted"`
	CSV       string `mapstructure:"csv"`
	Cleaned   string `mapstructure:"cleaned"`
	// Categories maps a level or status class to a file. Keys are
	// case-insensitive.
	Categories map[string]string `mapstructure:"categories"`
}

// ReportConfig controls report artifacts.
type ReportConfig struct {
	Dir        string `mapstructure:"dir"`
	TopN       int    `mapstructure:"top_n"`
	MaxInvalid int    `mapstructure:"max_invalid"`
}

// ServerConfig holds the HTTP adapter settings.
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	Uploads string `mapstructure:"uploads"`
}

// InboxConfig holds the directory watcher settings.
type InboxConfig struct {
	Settle time.Duration `mapstructure:"settle"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch model.Format(c.Format) {
	case model.FormatText, model.FormatAccess:
	default:
		return ErrInvalidFormat
	}

	if c.Checkpoint.Interval == 0 {
		return ErrInvalidInterval
	}

	if c.Report.TopN <= 0 {
		return ErrInvalidTopN
	}

	if c.Report.MaxInvalid < 0 {
		return ErrInvalidMax
	}

	if c.Inbox.Settle <= 0 {
		return ErrInvalidSettle
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}

	return nil
}

// Sinks resolves the destination paths against Outputs.Dir.
func (c *Config) Sinks() sink.Config {
	join := func(name string) string {
		if name == "" || filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(c.Outputs.Dir, name)
	}

	cats := make(map[string]string, len(c.Outputs.Categories))
	for k, v := range c.Outputs.Categories {
		cats[k] = join(v)
	}

	return sink.Config{
		Corrupted:  join(c.Outputs.Corrupted),
		Table:      join(c.Outputs.CSV),
		Cleaned:    join(c.Outputs.Cleaned),
		Categories: cats,
	}
}

// CheckpointFor returns the checkpoint file for source. A pinned path is only
// honoured when shared is false; several sources never share one checkpoint.
func (c *Config) CheckpointFor(source string, shared bool) string {
	if c.Checkpoint.Path != "" && !shared {
		return c.Checkpoint.Path
	}
	return checkpoint.PathFor(c.Checkpoint.Dir, source)
}

// Pipeline builds the run configuration for source.
func (c *Config) Pipeline(source string, shared bool) pipeline.Config {
	return pipeline.Config{
		Format:         model.Format(c.Format),
		CheckpointPath: c.CheckpointFor(source, shared),
		Interval:       c.Checkpoint.Interval,
		Lock:           c.Checkpoint.Lock,
		Sinks:          c.Sinks(),
		TopN:           c.Report.TopN,
		MaxInvalid:     c.Report.MaxInvalid,
	}
}
