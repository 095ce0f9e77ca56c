package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".loglens"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for loglens settings.
const envPrefix = "LOGLENS"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	viperCfg := viper.New()
	applyDefaults(viperCfg)

	var cfg Config
	// Defaults always decode.
	_ = viperCfg.Unmarshal(&cfg)

	return &cfg
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("format", DefaultFormat)

	viperCfg.SetDefault("checkpoint.path", "")
	viperCfg.SetDefault("checkpoint.dir", DefaultCheckpointDir)
	viperCfg.SetDefault("checkpoint.interval", DefaultCheckpointInterval)
	viperCfg.SetDefault("checkpoint.lock", DefaultCheckpointLock)

	viperCfg.SetDefault("outputs.dir", DefaultOutputsDir)
	viperCfg.SetDefault("outputs.corrupted", DefaultCorrupted)
	viperCfg.SetDefault("outputs.csv", DefaultCSV)
	viperCfg.SetDefault("outputs.cleaned", DefaultCleaned)
	viperCfg.SetDefault("outputs.categories", map[string]string{
		"error":   "errors.log",
		"warning": "warnings.log",
		"info":    "info.log",
	})

	viperCfg.SetDefault("report.dir", DefaultReportDir)
	viperCfg.SetDefault("report.top_n", DefaultTopN)
	viperCfg.SetDefault("report.max_invalid", DefaultMaxInvalid)

	viperCfg.SetDefault("server.addr", DefaultServerAddr)
	viperCfg.SetDefault("server.uploads", DefaultUploadsDir)

	viperCfg.SetDefault("inbox.settle", DefaultInboxSettle)

	viperCfg.SetDefault("log.level", DefaultLogLevel)
}
