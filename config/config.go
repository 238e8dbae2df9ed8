package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SAMPLER_INTERVAL.
const EnvPrefix = "SAMPLER"

// Config holds every configurable value of the sampler. The zero-config
// defaults reproduce the classic two-hour, five-second run.
type Config struct {
	// Schedule
	Duration  time.Duration // total sampling time, e.g. 2h
	Interval  time.Duration // time between ticks, e.g. 5s
	CPUWindow time.Duration // CPU measurement window per tick

	// Host
	DiskPath string // mount path whose usage is reported

	// Persistence
	OutputPath    string // CSV file, truncated on every run
	DBPath        string // optional SQLite mirror, "" disables it
	NormStatsPath string // optional normalization stats YAML, "" disables it

	LogLevel string // debug|info|warn|error
}

// Load reads configuration from (in decreasing priority):
//  1. environment variables (e.g. SAMPLER_INTERVAL=10s)
//  2. a yaml file (./configs/config.yaml) if it exists.
//  3. the built-in defaults.
//
// It returns a fully populated *Config or an error.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // ignore error - file is optional
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("Duration", 7200*time.Second)
	v.SetDefault("Interval", 5*time.Second)
	v.SetDefault("CPUWindow", time.Second)
	v.SetDefault("DiskPath", "/")
	v.SetDefault("OutputPath", "system_performance_data.csv")
	v.SetDefault("DBPath", "")
	v.SetDefault("NormStatsPath", "")
	v.SetDefault("LogLevel", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that would make a run meaningless.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("Interval must be positive, got %s", c.Interval)
	}
	if c.Duration < 0 {
		return fmt.Errorf("Duration must not be negative, got %s", c.Duration)
	}
	if c.CPUWindow < 0 {
		return fmt.Errorf("CPUWindow must not be negative, got %s", c.CPUWindow)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("OutputPath must not be empty")
	}
	if c.DiskPath == "" {
		return fmt.Errorf("DiskPath must not be empty")
	}
	return nil
}
