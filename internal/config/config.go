package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"
	DefaultAssetsURL   = "https://resources.download.minecraft.net"
	DefaultDoHEndpoint = "https://cloudflare-dns.com/dns-query"

	// MaxConcurrency bounds the admission gate.
	MaxConcurrency = 1024
)

// Config holds everything the download engine needs for one run. It is
// built once at startup and passed down; nothing re-reads it mid-run.
type Config struct {
	Root               string        `yaml:"root"`
	ManifestURL        string        `yaml:"manifest_url"`
	AssetsURL          string        `yaml:"assets_url"`
	Concurrency        int           `yaml:"concurrency"`
	InitialConcurrency int           `yaml:"initial_concurrency"`
	Attempts           int           `yaml:"attempts"`
	Backoff            time.Duration `yaml:"backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	Timeout            time.Duration `yaml:"timeout"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	VerifyAfterWrite   bool          `yaml:"verify_after_write"`

	// Mirror is an optional blob bucket URL (s3://, gs://, file://, mem://)
	// served in place of the HTTP origins.
	Mirror string `yaml:"mirror"`

	DoH         bool   `yaml:"doh"`
	DoHEndpoint string `yaml:"doh_endpoint"`

	AllowSnapshot bool `yaml:"allow_snapshot"`
	AllowBeta     bool `yaml:"allow_beta"`
	AllowAlpha    bool `yaml:"allow_alpha"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Root:               ".minecraft",
		ManifestURL:        DefaultManifestURL,
		AssetsURL:          DefaultAssetsURL,
		Concurrency:        64,
		InitialConcurrency: 4,
		Attempts:           1,
		Backoff:            time.Second,
		MaxBackoff:         30 * time.Second,
		Timeout:            3 * time.Minute,
		ConnectTimeout:     time.Minute,
		VerifyAfterWrite:   true,
		DoHEndpoint:        DefaultDoHEndpoint,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// yamlConfig mirrors Config with string durations and pointer booleans so
// an absent key keeps its default.
type yamlConfig struct {
	Root               string `yaml:"root"`
	ManifestURL        string `yaml:"manifest_url"`
	AssetsURL          string `yaml:"assets_url"`
	Concurrency        int    `yaml:"concurrency"`
	InitialConcurrency int    `yaml:"initial_concurrency"`
	Attempts           int    `yaml:"attempts"`
	Backoff            string `yaml:"backoff"`
	MaxBackoff         string `yaml:"max_backoff"`
	Timeout            string `yaml:"timeout"`
	ConnectTimeout     string `yaml:"connect_timeout"`
	VerifyAfterWrite   *bool  `yaml:"verify_after_write"`
	Mirror             string `yaml:"mirror"`
	DoH                bool   `yaml:"doh"`
	DoHEndpoint        string `yaml:"doh_endpoint"`
	AllowSnapshot      bool   `yaml:"allow_snapshot"`
	AllowBeta          bool   `yaml:"allow_beta"`
	AllowAlpha         bool   `yaml:"allow_alpha"`
	LogLevel           string `yaml:"log_level"`
	LogFormat          string `yaml:"log_format"`
}

// LoadFromFile loads configuration from a YAML file on top of Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of Default().
func Parse(data []byte) (Config, error) {
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	setString(&cfg.Root, yc.Root)
	setString(&cfg.ManifestURL, yc.ManifestURL)
	setString(&cfg.AssetsURL, yc.AssetsURL)
	setString(&cfg.Mirror, yc.Mirror)
	setString(&cfg.DoHEndpoint, yc.DoHEndpoint)
	setString(&cfg.LogLevel, yc.LogLevel)
	setString(&cfg.LogFormat, yc.LogFormat)
	if yc.Concurrency != 0 {
		cfg.Concurrency = yc.Concurrency
	}
	if yc.InitialConcurrency != 0 {
		cfg.InitialConcurrency = yc.InitialConcurrency
	}
	if yc.Attempts != 0 {
		cfg.Attempts = yc.Attempts
	}
	if yc.VerifyAfterWrite != nil {
		cfg.VerifyAfterWrite = *yc.VerifyAfterWrite
	}
	cfg.DoH = yc.DoH
	cfg.AllowSnapshot = yc.AllowSnapshot
	cfg.AllowBeta = yc.AllowBeta
	cfg.AllowAlpha = yc.AllowAlpha

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"backoff", yc.Backoff, &cfg.Backoff},
		{"max_backoff", yc.MaxBackoff, &cfg.MaxBackoff},
		{"timeout", yc.Timeout, &cfg.Timeout},
		{"connect_timeout", yc.ConnectTimeout, &cfg.ConnectTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the MCFETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("MCFETCH_ROOT"); v != "" {
		c.Root = v
	}
	if v := os.Getenv("MCFETCH_MANIFEST_URL"); v != "" {
		c.ManifestURL = v
	}
	if v := os.Getenv("MCFETCH_ASSETS_URL"); v != "" {
		c.AssetsURL = v
	}
	if v := os.Getenv("MCFETCH_MIRROR"); v != "" {
		c.Mirror = v
	}
	if v := os.Getenv("MCFETCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MCFETCH_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("MCFETCH_INITIAL_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MCFETCH_INITIAL_CONCURRENCY: %w", err)
		}
		c.InitialConcurrency = n
	}
	if v := os.Getenv("MCFETCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MCFETCH_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("MCFETCH_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MCFETCH_ATTEMPTS: %w", err)
		}
		c.Attempts = n
	}
	if v := os.Getenv("MCFETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse MCFETCH_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("MCFETCH_VERIFY_AFTER_WRITE"); v != "" {
		c.VerifyAfterWrite = v == "true" || v == "1"
	}
	if v := os.Getenv("MCFETCH_DOH"); v != "" {
		c.DoH = v == "true" || v == "1"
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("config: root is required")
	}
	if err := validURL("manifest_url", c.ManifestURL); err != nil {
		return err
	}
	if err := validURL("assets_url", c.AssetsURL); err != nil {
		return err
	}
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return fmt.Errorf("config: concurrency must be 1-%d, got %d", MaxConcurrency, c.Concurrency)
	}
	if c.InitialConcurrency < 1 {
		return errors.New("config: initial_concurrency must be positive")
	}
	if c.Attempts < 1 {
		return errors.New("config: attempts must be positive")
	}
	if c.Backoff < 0 || c.MaxBackoff < 0 || c.Timeout < 0 || c.ConnectTimeout < 0 {
		return errors.New("config: durations must not be negative")
	}
	if c.DoH {
		if err := validURL("doh_endpoint", c.DoHEndpoint); err != nil {
			return err
		}
	}
	return nil
}

func validURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("config: %s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: %s must be http or https, got %q", key, raw)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored. Booleans can only be switched on;
// VerifyAfterWrite is not merged since its default is true.
func (c Config) Merge(override Config) Config {
	setString(&c.Root, override.Root)
	setString(&c.ManifestURL, override.ManifestURL)
	setString(&c.AssetsURL, override.AssetsURL)
	setString(&c.Mirror, override.Mirror)
	setString(&c.DoHEndpoint, override.DoHEndpoint)
	setString(&c.LogLevel, override.LogLevel)
	setString(&c.LogFormat, override.LogFormat)
	if override.Concurrency != 0 {
		c.Concurrency = override.Concurrency
	}
	if override.InitialConcurrency != 0 {
		c.InitialConcurrency = override.InitialConcurrency
	}
	if override.Attempts != 0 {
		c.Attempts = override.Attempts
	}
	if override.Backoff != 0 {
		c.Backoff = override.Backoff
	}
	if override.MaxBackoff != 0 {
		c.MaxBackoff = override.MaxBackoff
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.ConnectTimeout != 0 {
		c.ConnectTimeout = override.ConnectTimeout
	}
	if override.DoH {
		c.DoH = true
	}
	if override.AllowSnapshot {
		c.AllowSnapshot = true
	}
	if override.AllowBeta {
		c.AllowBeta = true
	}
	if override.AllowAlpha {
		c.AllowAlpha = true
	}
	return c
}
