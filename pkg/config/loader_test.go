package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigDir(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/run/anna/annad.sock", cfg.Socket)
	assert.Equal(t, 30*time.Second, cfg.RequestDeadline.Std())
	assert.Equal(t, 2, cfg.Queue.WorkerCount)
}

func TestLoadYamlFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
socket: /tmp/test-annad.sock
request_deadline: 45s
llm:
  model: qwen2.5:7b
queue:
  worker_count: 4
  queue_depth: 32
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "annad.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test-annad.sock", cfg.Socket)
	assert.Equal(t, 45*time.Second, cfg.RequestDeadline.Std())
	assert.Equal(t, "qwen2.5:7b", cfg.LLM.Model)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	// Untouched values keep their defaults.
	assert.Equal(t, "127.0.0.1:7865", cfg.HTTPAddr)
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
request_deadline: 45s
llm:
  model: file-model
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "annad.yaml"), []byte(yaml), 0o644))
	t.Setenv("ANNA_LLM_MODEL", "env-model")
	t.Setenv("ANNA_REQUEST_DEADLINE", "20s")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, 20*time.Second, cfg.RequestDeadline.Std())
}

func TestLoadRejectsBadYaml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "annad.yaml"), []byte("socket: [unterminated"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty socket", func(c *Config) { c.Socket = "" }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"zero workers", func(c *Config) { c.Queue.WorkerCount = 0 }},
		{"zero depth", func(c *Config) { c.Queue.QueueDepth = 0 }},
		{"deadline too short", func(c *Config) { c.RequestDeadline = Duration(time.Second) }},
		{"deadline too long", func(c *Config) { c.RequestDeadline = Duration(5 * time.Minute) }},
		{"zero parallelism", func(c *Config) { c.ProbeParallelism = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}
