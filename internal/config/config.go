// Package config handles global configuration loading using viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/otus/internal/topology"
)

// ErrSchema marks a Load failure rooted in the document's content — a bad
// field value, not the file itself — letting callers like cmd/otus map it
// to the EX_CONFIG (78) exit code instead of the generic 1 used for
// unreadable files.
var ErrSchema = errors.New("config: schema validation failed")

// Config is the top-level static configuration: the ambient process
// settings (logging, metrics, data directory) plus the pipeline topology
// itself, decoded from one YAML document.
type Config struct {
	Log             LogConfig       `mapstructure:"log"`
	Metrics         MetricsConfig   `mapstructure:"metrics"`
	DataDir         string          `mapstructure:"data_dir"`
	ShutdownTimeout string          `mapstructure:"shutdown_timeout"`
	Topology        topology.Config `mapstructure:",squash"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string         `mapstructure:"level"`  // debug / info / warn / error
	Format  string         `mapstructure:"format"` // json / text
	Outputs []OutputConfig `mapstructure:"outputs"`
}

// OutputConfig configures one structured log output destination.
type OutputConfig struct {
	Type string `mapstructure:"type"` // "stdout" | "file" | "loki"

	// file
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`

	// loki
	Endpoint      string            `mapstructure:"endpoint"`
	Labels        map[string]string `mapstructure:"labels"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval string            `mapstructure:"flush_interval"`
}

// MetricsConfig contains Prometheus metrics server settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// Load reads path (YAML) via viper, applies defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", ErrSchema, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9091")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("data_dir", "/var/lib/otus")
	v.SetDefault("shutdown_timeout", "30s")
}

// Validate checks the ambient settings this package owns; topology.Config's
// own shape is validated separately when internal/topology builds the
// graph (a configuration error there is reported as a Configuration-
// category error, not rejected twice).
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json/text)", c.Log.Format)
	}
	return nil
}
