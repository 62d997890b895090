// Package config loads jobforge configuration from file, environment, and
// defaults (in ascending precedence: defaults < file < env).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "JOBFORGE"

// Config is the full process configuration.
type Config struct {
	// DataDir is the root for durable job and state storage.
	DataDir string `mapstructure:"data_dir"`

	Server  ServerConfig  `mapstructure:"server"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// SubmitRate caps job submissions per second. Zero means unlimited.
	SubmitRate float64 `mapstructure:"submit_rate"`
}

// JobsConfig configures the orchestration core.
type JobsConfig struct {
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	TerminateGrace    time.Duration `mapstructure:"terminate_grace"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// LoggingConfig configures the zap loggers.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// JobsDir is where per-job workspaces and records live.
func (c *Config) JobsDir() string {
	return filepath.Join(c.DataDir, "jobs")
}

// StateDir is where reconciled per-field state backing files live.
func (c *Config) StateDir() string {
	return filepath.Join(c.DataDir, "state")
}

// Load reads configuration. path optionally names an explicit config file;
// when empty, jobforge.yaml is searched in the working directory and under
// the user config dir.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("jobforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "jobforge"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No config file is fine; defaults plus env apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required")
	}
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.submit_rate", 0.0)

	v.SetDefault("jobs.max_concurrent", 3)
	v.SetDefault("jobs.terminate_grace", 10*time.Second)
	v.SetDefault("jobs.heartbeat_interval", 30*time.Second)

	v.SetDefault("logging.level", "info")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jobforge"
	}
	return filepath.Join(home, ".jobforge")
}
