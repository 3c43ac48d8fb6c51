package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/Swind/go-async-queue/core"
)

// EnvPrefix prefixes every environment override, e.g.
// ASYNCQUEUE_QUEUE_CONCURRENCY=4.
const EnvPrefix = "ASYNCQUEUE"

// Load reads configuration from path (optional, YAML) and the environment.
// Environment variables take precedence over values from the file, which
// take precedence over Default().
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOptions is Load followed by QueueOptions and core validation.
func LoadOptions(path string) (core.Options, error) {
	cfg, err := Load(path)
	if err != nil {
		return core.Options{}, err
	}
	opts := cfg.Queue.QueueOptions()
	if err := opts.Validate(); err != nil {
		return core.Options{}, err
	}
	return opts, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("queue.name", d.Queue.Name)
	v.SetDefault("queue.concurrency", d.Queue.Concurrency)
	v.SetDefault("queue.interval_cap", d.Queue.IntervalCap)
	v.SetDefault("queue.interval", d.Queue.Interval)
	v.SetDefault("queue.carryover_concurrency_count", d.Queue.CarryoverConcurrencyCount)
	v.SetDefault("queue.auto_start", d.Queue.AutoStart)
	v.SetDefault("queue.timeout", d.Queue.Timeout)
	v.SetDefault("queue.throw_on_timeout", d.Queue.ThrowOnTimeout)
	v.SetDefault("queue.history_capacity", d.Queue.HistoryCapacity)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.poll_interval", d.Metrics.PollInterval)
}

// document is the YAML shape written by Dump. Durations are rendered with
// time.Duration.String so the output can be fed back to Load.
type document struct {
	Queue struct {
		Name                      string `yaml:"name"`
		Concurrency               int    `yaml:"concurrency"`
		IntervalCap               int    `yaml:"interval_cap"`
		Interval                  string `yaml:"interval"`
		CarryoverConcurrencyCount bool   `yaml:"carryover_concurrency_count"`
		AutoStart                 bool   `yaml:"auto_start"`
		Timeout                   string `yaml:"timeout"`
		ThrowOnTimeout            bool   `yaml:"throw_on_timeout"`
		HistoryCapacity           int    `yaml:"history_capacity"`
	} `yaml:"queue"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Metrics struct {
		Enabled      bool   `yaml:"enabled"`
		Listen       string `yaml:"listen"`
		Namespace    string `yaml:"namespace"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"metrics"`
}

// Dump writes cfg as YAML.
func Dump(w io.Writer, cfg *Config) error {
	var doc document
	doc.Queue.Name = cfg.Queue.Name
	doc.Queue.Concurrency = cfg.Queue.Concurrency
	doc.Queue.IntervalCap = cfg.Queue.IntervalCap
	doc.Queue.Interval = cfg.Queue.Interval.String()
	doc.Queue.CarryoverConcurrencyCount = cfg.Queue.CarryoverConcurrencyCount
	doc.Queue.AutoStart = cfg.Queue.AutoStart
	doc.Queue.Timeout = cfg.Queue.Timeout.String()
	doc.Queue.ThrowOnTimeout = cfg.Queue.ThrowOnTimeout
	doc.Queue.HistoryCapacity = cfg.Queue.HistoryCapacity
	doc.Log.Level = cfg.Log.Level
	doc.Log.Development = cfg.Log.Development
	doc.Metrics.Enabled = cfg.Metrics.Enabled
	doc.Metrics.Listen = cfg.Metrics.Listen
	doc.Metrics.Namespace = cfg.Metrics.Namespace
	doc.Metrics.PollInterval = cfg.Metrics.PollInterval.String()

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = w.Write(out)
	return err
}
