// Package config loads queue settings from an optional YAML file and
// ASYNCQUEUE_* environment variables.
package config

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Swind/go-async-queue/core"
)

// Config holds everything needed to build a queue and its surroundings.
// Counts of 0 mean unbounded.
type Config struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// QueueConfig mirrors core.Options.
type QueueConfig struct {
	Name                      string        `mapstructure:"name"`
	Concurrency               int           `mapstructure:"concurrency" validate:"gte=0"`
	IntervalCap               int           `mapstructure:"interval_cap" validate:"gte=0"`
	Interval                  time.Duration `mapstructure:"interval" validate:"gte=0"`
	CarryoverConcurrencyCount bool          `mapstructure:"carryover_concurrency_count"`
	AutoStart                 bool          `mapstructure:"auto_start"`
	Timeout                   time.Duration `mapstructure:"timeout" validate:"gte=0"`
	ThrowOnTimeout            bool          `mapstructure:"throw_on_timeout"`
	HistoryCapacity           int           `mapstructure:"history_capacity" validate:"gte=0"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Listen       string        `mapstructure:"listen" validate:"omitempty,hostname_port"`
	Namespace    string        `mapstructure:"namespace"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	defaults := core.DefaultOptions()
	return Config{
		Queue: QueueConfig{
			Name:            "asyncqueue",
			AutoStart:       defaults.AutoStart,
			HistoryCapacity: defaults.HistoryCapacity,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Listen:       "127.0.0.1:9090",
			Namespace:    "asyncqueue",
			PollInterval: time.Second,
		},
	}
}

// QueueOptions converts the queue section into core.Options. Handlers are
// left unset so core fills in its defaults.
func (c QueueConfig) QueueOptions() core.Options {
	opts := core.DefaultOptions()
	opts.Name = c.Name
	if c.Concurrency > 0 {
		opts.Concurrency = c.Concurrency
	}
	if c.IntervalCap > 0 {
		opts.IntervalCap = c.IntervalCap
	}
	opts.Interval = c.Interval
	opts.CarryoverConcurrencyCount = c.CarryoverConcurrencyCount
	opts.AutoStart = c.AutoStart
	opts.Timeout = c.Timeout
	opts.ThrowOnTimeout = c.ThrowOnTimeout
	if c.HistoryCapacity > 0 {
		opts.HistoryCapacity = c.HistoryCapacity
	}
	return opts
}

// NewLogger builds a zap logger for the log section.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
