package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	AgentAPI AgentAPIConfig `yaml:"agent_api"`
	Sync     SyncConfig     `yaml:"sync"`
	Secrets  SecretsConfig  `yaml:"secrets"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type AgentAPIConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit is requests per second; zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

type SyncConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	Workers       int           `yaml:"workers"`
	FanoutTimeout time.Duration `yaml:"fanout_timeout"`
}

type SecretsConfig struct {
	// EncryptionKey decrypts stored per-host agent passwords. Empty disables credential use.
	EncryptionKey string `yaml:"encryption_key"`
}

func Default() *Config {
	return &Config{
		HTTP:    HTTPConfig{Addr: ":8081"},
		Logging: LoggingConfig{Level: "info"},
		AgentAPI: AgentAPIConfig{
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Enabled:       true,
			Interval:      5 * time.Minute,
			InitialDelay:  time.Minute,
			Workers:       5,
			FanoutTimeout: 10 * time.Minute,
		},
	}
}

// Load reads the optional YAML file at path over the defaults, then applies
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays non-empty environment variables onto c.
func (c *Config) ApplyEnvOverrides() error {
	setString("HTTP_ADDR", &c.HTTP.Addr)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("DATABASE_URL", &c.Database.URL)
	setString("AGENT_API_URL", &c.AgentAPI.URL)
	setString("ENCRYPTION_KEY", &c.Secrets.EncryptionKey)

	var errs []error
	errs = append(errs,
		setDuration("AGENT_API_TIMEOUT", &c.AgentAPI.Timeout),
		setFloat("AGENT_API_RATE_LIMIT", &c.AgentAPI.RateLimit),
		setDuration("SYNC_INTERVAL", &c.Sync.Interval),
		setDuration("SYNC_INITIAL_DELAY", &c.Sync.InitialDelay),
		setInt("SYNC_WORKERS", &c.Sync.Workers),
		setDuration("SYNC_FANOUT_TIMEOUT", &c.Sync.FanoutTimeout),
		setBool("SYNC_ENABLED", &c.Sync.Enabled),
	)
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	if c.AgentAPI.Timeout <= 0 {
		return errors.New("agent_api.timeout must be > 0")
	}
	if c.AgentAPI.RateLimit < 0 {
		return errors.New("agent_api.rate_limit must be >= 0")
	}
	if c.Sync.InitialDelay < 0 {
		return errors.New("sync.initial_delay must be >= 0")
	}
	if !c.Sync.Enabled {
		return nil
	}
	if strings.TrimSpace(c.AgentAPI.URL) == "" {
		return errors.New("agent_api.url is required when sync is enabled")
	}
	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be > 0")
	}
	if c.Sync.Workers <= 0 {
		return errors.New("sync.workers must be > 0")
	}
	if c.Sync.FanoutTimeout <= 0 {
		return errors.New("sync.fanout_timeout must be > 0")
	}
	return nil
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func setString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setDuration(key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(key string, dst *float64) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
