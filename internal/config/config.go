// Package config loads and exposes application configuration (TOML).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/memohai/streambind/internal/binding"
	"github.com/memohai/streambind/internal/channel"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultNamespace      = ""
	DefaultPollIntervalMS = 1000
	DefaultQueueCapacity  = 256
	DefaultBinder         = "local"
	DefaultBrokerURL      = "ws://127.0.0.1:8082/ws"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log     LogConfig     `toml:"log"`
	Binding BindingConfig `toml:"binding"`
	Binder  BinderConfig  `toml:"binder"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// BindingConfig holds the channel namespace, bridge and queue tuning, and
// the declared slots.
type BindingConfig struct {
	Namespace      string       `toml:"namespace"`
	PollIntervalMS int          `toml:"poll_interval_ms"`
	QueueCapacity  int          `toml:"queue_capacity"`
	Inputs         []SlotConfig `toml:"inputs"`
	Outputs        []SlotConfig `toml:"outputs"`
}

// SlotConfig declares one channel slot.
type SlotConfig struct {
	Name        string `toml:"name"`
	Discipline  string `toml:"discipline"`
	ContentType string `toml:"content_type"`
}

// BinderConfig selects the transport binder ("local" or "ws") and its
// broker URL.
type BinderConfig struct {
	Kind      string `toml:"kind"`
	BrokerURL string `toml:"broker_url"`
}

// PollInterval returns the pull→push bridge interval as a duration.
func (c BindingConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Declarations converts the configured slots to binding declarations.
func (c BindingConfig) Declarations() ([]binding.Declaration, error) {
	decls := make([]binding.Declaration, 0, len(c.Inputs)+len(c.Outputs))
	for _, slot := range c.Inputs {
		disc, err := channel.ParseDiscipline(slot.Discipline)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", slot.Name, err)
		}
		decls = append(decls, binding.Input(slot.Name, disc, slot.ContentType))
	}
	for _, slot := range c.Outputs {
		disc, err := channel.ParseDiscipline(slot.Discipline)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", slot.Name, err)
		}
		decls = append(decls, binding.Output(slot.Name, disc, slot.ContentType))
	}
	return decls, nil
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Binding: BindingConfig{
			Namespace:      DefaultNamespace,
			PollIntervalMS: DefaultPollIntervalMS,
			QueueCapacity:  DefaultQueueCapacity,
		},
		Binder: BinderConfig{
			Kind:      DefaultBinder,
			BrokerURL: DefaultBrokerURL,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
