package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"HTTP_ADDR", "LOG_LEVEL", "DATABASE_URL", "AGENT_API_URL", "AGENT_API_TIMEOUT",
	"AGENT_API_RATE_LIMIT", "SYNC_INTERVAL", "SYNC_INITIAL_DELAY", "SYNC_WORKERS",
	"SYNC_FANOUT_TIMEOUT", "SYNC_ENABLED", "ENCRYPTION_KEY",
}

// clearEnv blanks every recognised variable; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENT_API_URL", "http://gateway:8080/api")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Sync.Interval != 5*time.Minute || cfg.Sync.InitialDelay != time.Minute {
		t.Fatalf("unexpected sync timing: %+v", cfg.Sync)
	}
	if cfg.Sync.Workers != 5 || cfg.Sync.FanoutTimeout != 10*time.Minute || !cfg.Sync.Enabled {
		t.Fatalf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.AgentAPI.Timeout != 30*time.Second || cfg.AgentAPI.RateLimit != 0 {
		t.Fatalf("unexpected api defaults: %+v", cfg.AgentAPI)
	}
	if cfg.HTTP.Addr != ":8081" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected http/logging defaults: %+v %+v", cfg.HTTP, cfg.Logging)
	}
}

func TestLoad_FileThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	p := writeTestConfig(t, "agent_api:\n"+
		"  url: \"http://from-file\"\n"+
		"  timeout: 10s\n"+
		"  rate_limit: 4\n"+
		"sync:\n"+
		"  interval: 2m\n"+
		"  workers: 8\n"+
		"secrets:\n"+
		"  encryption_key: \"file-key\"\n")

	t.Setenv("AGENT_API_URL", "http://from-env")
	t.Setenv("SYNC_WORKERS", "3")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.AgentAPI.URL != "http://from-env" {
		t.Fatalf("expected env url override, got %q", cfg.AgentAPI.URL)
	}
	if cfg.Sync.Workers != 3 {
		t.Fatalf("expected env workers override, got %d", cfg.Sync.Workers)
	}
	if cfg.Sync.Interval != 2*time.Minute || cfg.AgentAPI.Timeout != 10*time.Second || cfg.AgentAPI.RateLimit != 4 {
		t.Fatalf("expected file values, got %+v %+v", cfg.Sync, cfg.AgentAPI)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Sync.FanoutTimeout != 10*time.Minute {
		t.Fatalf("expected default fan-out timeout, got %v", cfg.Sync.FanoutTimeout)
	}
	if cfg.Secrets.EncryptionKey != "file-key" {
		t.Fatalf("expected encryption key from file, got %q", cfg.Secrets.EncryptionKey)
	}
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENT_API_URL", "http://gateway")
	t.Setenv("SYNC_INTERVAL", "soon")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "SYNC_INTERVAL") {
		t.Fatalf("expected SYNC_INTERVAL parse error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.AgentAPI.URL = "http://gateway"
		return c
	}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.AgentAPI.URL = " " }, wantErr: "agent_api.url"},
		{name: "zero workers", mutate: func(c *Config) { c.Sync.Workers = 0 }, wantErr: "sync.workers"},
		{name: "zero fanout timeout", mutate: func(c *Config) { c.Sync.FanoutTimeout = 0 }, wantErr: "sync.fanout_timeout"},
		{name: "zero interval", mutate: func(c *Config) { c.Sync.Interval = 0 }, wantErr: "sync.interval"},
		{name: "zero api timeout", mutate: func(c *Config) { c.AgentAPI.Timeout = 0 }, wantErr: "agent_api.timeout"},
		{name: "negative rate", mutate: func(c *Config) { c.AgentAPI.RateLimit = -1 }, wantErr: "agent_api.rate_limit"},
		{name: "disabled sync skips sync checks", mutate: func(c *Config) {
			c.Sync.Enabled = false
			c.AgentAPI.URL = ""
			c.Sync.Workers = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
