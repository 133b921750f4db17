package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration: defaults, then the yaml file (if
// present), then environment overrides, then validation. configDir ""
// skips file loading entirely.
func Load(configDir string) (*Config, error) {
	cfg := Defaults()

	if configDir != "" {
		envPath := filepath.Join(configDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			slog.Info("Loaded environment file", "path", envPath)
		}

		path := filepath.Join(configDir, "annad.yaml")
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			slog.Info("Loaded configuration file", "path", path)
		case os.IsNotExist(err):
			slog.Info("No configuration file, using defaults", "path", path)
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps ANNA_* environment variables over the file
// values, so deployments can tweak without editing yaml.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANNA_SOCKET"); v != "" {
		cfg.Socket = v
	}
	if v := os.Getenv("ANNA_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("ANNA_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("ANNA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ANNA_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ANNA_FACT_STORE"); v != "" {
		cfg.FactStorePath = v
	}
	if v := os.Getenv("ANNA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ANNA_REQUEST_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestDeadline = Duration(d)
		}
	}
	if v := os.Getenv("ANNA_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.WorkerCount = n
		}
	}
}
