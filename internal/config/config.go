// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package config loads the optional ambient YAML tuning file shared by
// chatserver, rudpserver, and rudpclient. The wire protocols and CLI
// positional arguments are never configured here — only logging, stats,
// pacing, tracing, and metrics.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Logging controls the shared slog setup.
type Logging struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // default: "json"
	File   string `yaml:"file"`   // default: "" (stdout only)
}

// Trace controls the optional compressed per-session/per-connection trace
// log used for post-hoc debugging. It is diagnostic only and never read
// back by the running process.
type Trace struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Path    string `yaml:"path"`    // required if Enabled
	Codec   string `yaml:"codec"`   // "gzip" (default) or "zstd"
}

// Pacing bounds outbound bytes/sec on the RUDP sender's window writes and
// the chat loop's per-connection writes. Zero means unlimited.
type Pacing struct {
	BytesPerSecond int `yaml:"bytes_per_second"` // default: 0 (unlimited)
	Burst          int `yaml:"burst"`            // default: BytesPerSecond
}

// Metrics controls the opt-in Prometheus HTTP endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Listen  string `yaml:"listen"`  // default: "127.0.0.1:9646"
}

// HostStats controls periodic CPU/mem/disk sampling, logged as its own line
// on its own interval, separate from the stats reporter.
type HostStats struct {
	Enabled  bool          `yaml:"enabled"`  // default: false (opt-in, like Trace and Metrics)
	Path     string        `yaml:"path"`     // disk path to sample, default: "."
	Interval time.Duration `yaml:"interval"` // default: 15s
}

// Config is the ambient tuning shared by all three binaries. Absence of a
// --config flag, or an empty file, yields Default().
type Config struct {
	Logging       Logging       `yaml:"logging"`
	StatsInterval time.Duration `yaml:"stats_interval"` // default: 15s
	Trace         Trace         `yaml:"trace"`
	Pacing        Pacing        `yaml:"pacing"`
	Metrics       Metrics       `yaml:"metrics"`
	HostStats     HostStats     `yaml:"host_stats"`
	Schedule      Schedule      `yaml:"schedule"`
}

// Schedule controls housekeeping: the cron spec for trace-log rotation, and
// the staleness threshold (also the sweep interval) of the chat router's
// ingress-buffer sweep, which runs on the router's own ticker.
type Schedule struct {
	TraceRotationCron string        `yaml:"trace_rotation_cron"` // default: "@hourly"
	IngressStaleAfter time.Duration `yaml:"ingress_stale_after"` // default: 0 (sweep disabled)
}

// UnmarshalYAML decodes Config with its three time.Duration fields accepted
// as human-readable strings ("15s", "5m"), which yaml.v3 does not do for
// time.Duration on its own since it only knows the field's underlying int64
// kind. Every other field decodes through the normal struct tags via a
// mirrored aux layout.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Logging       Logging `yaml:"logging"`
		StatsInterval string  `yaml:"stats_interval"`
		Trace         Trace   `yaml:"trace"`
		Pacing        Pacing  `yaml:"pacing"`
		Metrics       Metrics `yaml:"metrics"`
		HostStats     struct {
			Enabled  bool   `yaml:"enabled"`
			Path     string `yaml:"path"`
			Interval string `yaml:"interval"`
		} `yaml:"host_stats"`
		Schedule struct {
			TraceRotationCron string `yaml:"trace_rotation_cron"`
			IngressStaleAfter string `yaml:"ingress_stale_after"`
		} `yaml:"schedule"`
	}

	if err := value.Decode(&aux); err != nil {
		return err
	}

	c.Logging = aux.Logging
	c.Trace = aux.Trace
	c.Pacing = aux.Pacing
	c.Metrics = aux.Metrics
	c.HostStats.Enabled = aux.HostStats.Enabled
	c.HostStats.Path = aux.HostStats.Path
	c.Schedule.TraceRotationCron = aux.Schedule.TraceRotationCron

	if aux.StatsInterval != "" {
		d, err := time.ParseDuration(aux.StatsInterval)
		if err != nil {
			return fmt.Errorf("parsing stats_interval: %w", err)
		}
		c.StatsInterval = d
	}
	if aux.HostStats.Interval != "" {
		d, err := time.ParseDuration(aux.HostStats.Interval)
		if err != nil {
			return fmt.Errorf("parsing host_stats.interval: %w", err)
		}
		c.HostStats.Interval = d
	}
	if aux.Schedule.IngressStaleAfter != "" {
		d, err := time.ParseDuration(aux.Schedule.IngressStaleAfter)
		if err != nil {
			return fmt.Errorf("parsing schedule.ingress_stale_after: %w", err)
		}
		c.Schedule.IngressStaleAfter = d
	}
	return nil
}

// Default returns the ambient config used when no --config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates an ambient YAML config file. An empty path
// returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = 15 * time.Second
	}
	if c.Trace.Codec == "" {
		c.Trace.Codec = "gzip"
	}
	if c.Pacing.BytesPerSecond > 0 && c.Pacing.Burst <= 0 {
		c.Pacing.Burst = c.Pacing.BytesPerSecond
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9646"
	}
	if c.HostStats.Path == "" {
		c.HostStats.Path = "."
	}
	if c.HostStats.Interval <= 0 {
		c.HostStats.Interval = 15 * time.Second
	}
	if c.Schedule.TraceRotationCron == "" {
		c.Schedule.TraceRotationCron = "@hourly"
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Trace.Codec) {
	case "gzip", "zstd":
	default:
		return fmt.Errorf("trace.codec must be gzip or zstd, got %q", c.Trace.Codec)
	}
	if c.Trace.Enabled && c.Trace.Path == "" {
		return fmt.Errorf("trace.path is required when trace.enabled is true")
	}
	if c.Pacing.BytesPerSecond < 0 {
		return fmt.Errorf("pacing.bytes_per_second must be >= 0")
	}
	return nil
}
