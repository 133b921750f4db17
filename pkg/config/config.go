// Package config holds the daemon configuration: defaults, yaml file
// loading, .env support, environment overrides, and validation.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jjgarcianorway/anna/pkg/probe"
)

// Duration wraps time.Duration so yaml files can say "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings and raw nanosecond ints.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.ShortTag() == "!!int" {
		var n int64
		if err := value.Decode(&n); err == nil {
			*d = Duration(n)
			return nil
		}
	}
	var s string
	if err := value.Decode(&s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(dur)
		return nil
	}
	return fmt.Errorf("invalid duration value %q", value.Value)
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the umbrella configuration object returned by Load and
// passed by reference into the daemon's components.
type Config struct {
	// Socket is the unix socket path for the NDJSON RPC.
	Socket string `yaml:"socket"`

	// HTTPAddr is the localhost address of the health/status surface.
	// Empty disables it.
	HTTPAddr string `yaml:"http_addr"`

	LLM   LLMConfig   `yaml:"llm"`
	Queue QueueConfig `yaml:"queue"`

	// RequestDeadline bounds one question end to end.
	RequestDeadline Duration `yaml:"request_deadline"`

	// ProbeParallelism is the bound on concurrent probe children (K).
	ProbeParallelism int64 `yaml:"probe_parallelism"`

	// FactStorePath is the sqlite file for the cached fact store.
	// Empty disables caching.
	FactStorePath string `yaml:"fact_store_path"`

	// LogLevel is debug, info, warn or error. LogFormat is text or json.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LLMConfig points at the OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// QueueConfig sizes the request worker pool.
type QueueConfig struct {
	WorkerCount int `yaml:"worker_count"`
	QueueDepth  int `yaml:"queue_depth"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Socket:   "/run/anna/annad.sock",
		HTTPAddr: "127.0.0.1:7865",
		LLM: LLMConfig{
			BaseURL: "http://127.0.0.1:11434/v1",
			APIKey:  "local",
			Model:   "llama3.2:3b",
		},
		Queue: QueueConfig{
			WorkerCount: 2,
			QueueDepth:  16,
		},
		RequestDeadline:  Duration(30 * time.Second),
		ProbeParallelism: probe.DefaultParallelism,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}
