package config

import (
	"fmt"
	"time"
)

// Bounds the validator enforces. The request deadline may be set
// anywhere from a 5 s floor up to the deep-diagnostic ceiling.
const (
	MinRequestDeadline = 5 * time.Second
	MaxRequestDeadline = 60 * time.Second
)

// Validate checks the configuration and returns an actionable error
// for the first problem found.
func (c *Config) Validate() error {
	if c.Socket == "" {
		return fmt.Errorf("socket path must not be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if c.Queue.WorkerCount < 1 {
		return fmt.Errorf("queue.worker_count must be >= 1, got %d", c.Queue.WorkerCount)
	}
	if c.Queue.QueueDepth < 1 {
		return fmt.Errorf("queue.queue_depth must be >= 1, got %d", c.Queue.QueueDepth)
	}
	if c.RequestDeadline.Std() < MinRequestDeadline || c.RequestDeadline.Std() > MaxRequestDeadline {
		return fmt.Errorf("request_deadline must be between %s and %s, got %s",
			MinRequestDeadline, MaxRequestDeadline, c.RequestDeadline.Std())
	}
	if c.ProbeParallelism < 1 {
		return fmt.Errorf("probe_parallelism must be >= 1, got %d", c.ProbeParallelism)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
