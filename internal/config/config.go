// Package config loads pipeline configuration from an optional file plus
// PRICELOAD_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Database struct {
	// URL is a postgres connection string.
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type Ingest struct {
	// Workers bounds how many institution loads run concurrently.
	Workers int `mapstructure:"workers"`
	// RowBuffer bounds how far the extractor may read ahead of the writer.
	RowBuffer int `mapstructure:"row_buffer"`
	// FlushRows is the staged-row threshold that triggers a bulk flush.
	FlushRows int `mapstructure:"flush_rows"`

	ResolveRetries       uint64        `mapstructure:"resolve_retries"`
	ResolveRetryInterval time.Duration `mapstructure:"resolve_retry_interval"`

	// MaxRowFailureRatio aborts a load whose skipped-row share exceeds it,
	// once at least MinRowsBeforeAbort rows have been seen.
	MaxRowFailureRatio float64 `mapstructure:"max_row_failure_ratio"`
	MinRowsBeforeAbort int64   `mapstructure:"min_rows_before_abort"`
}

type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	Ingest   Ingest   `mapstructure:"ingest"`
	Logging  Logging  `mapstructure:"logging"`
}

func Default() *Config {
	return &Config{
		Database: Database{
			URL:      "postgres://postgres@localhost:5432/hospital_pricing?sslmode=disable",
			MaxConns: 10,
			MinConns: 2,
		},
		Ingest: Ingest{
			Workers:              4,
			RowBuffer:            256,
			FlushRows:            5000,
			ResolveRetries:       5,
			ResolveRetryInterval: 50 * time.Millisecond,
			MaxRowFailureRatio:   0.5,
			MinRowsBeforeAbort:   100,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config file at path (optional, "" skips it), applies env
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("database.url", def.Database.URL)
	v.SetDefault("database.max_conns", def.Database.MaxConns)
	v.SetDefault("database.min_conns", def.Database.MinConns)
	v.SetDefault("ingest.workers", def.Ingest.Workers)
	v.SetDefault("ingest.row_buffer", def.Ingest.RowBuffer)
	v.SetDefault("ingest.flush_rows", def.Ingest.FlushRows)
	v.SetDefault("ingest.resolve_retries", def.Ingest.ResolveRetries)
	v.SetDefault("ingest.resolve_retry_interval", def.Ingest.ResolveRetryInterval)
	v.SetDefault("ingest.max_row_failure_ratio", def.Ingest.MaxRowFailureRatio)
	v.SetDefault("ingest.min_rows_before_abort", def.Ingest.MinRowsBeforeAbort)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)

	v.SetEnvPrefix("PRICELOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1")
	}
	// Each in-flight load pins one pool connection for its transaction while
	// the resolver acquires a second one per cache miss. Workers at or above
	// the pool cap can therefore deadlock waiting on each other.
	if int32(c.Ingest.Workers) >= c.Database.MaxConns {
		return fmt.Errorf("ingest.workers (%d) must be below database.max_conns (%d)",
			c.Ingest.Workers, c.Database.MaxConns)
	}
	if c.Ingest.RowBuffer < 1 {
		return fmt.Errorf("ingest.row_buffer must be at least 1")
	}
	if c.Ingest.FlushRows < 1 {
		return fmt.Errorf("ingest.flush_rows must be at least 1")
	}
	if c.Ingest.MaxRowFailureRatio < 0 || c.Ingest.MaxRowFailureRatio > 1 {
		return fmt.Errorf("ingest.max_row_failure_ratio must be in [0, 1]")
	}
	return nil
}
