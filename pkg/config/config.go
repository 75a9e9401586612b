/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/estatehub/portal-sync/pkg/constants"
	"github.com/estatehub/portal-sync/pkg/logging"
	"github.com/estatehub/portal-sync/pkg/pollctl"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when PORTALSYNC_CONFIG is not set.
const DefaultPath = "config.yaml"

type BackendConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	RatePerSec float64       `yaml:"rate_per_sec"`
	Burst      int           `yaml:"burst"`
	MaxRetries int           `yaml:"max_retries"`
}

type PollingConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"backoff_multiplier"`
	PauseOnHidden   *bool         `yaml:"pause_on_hidden"`
	UseBackoff      *bool         `yaml:"use_backoff"`
	Comparator      string        `yaml:"comparator"`
}

type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxSnapshots  int           `yaml:"max_snapshots"`
	MaxViews      int           `yaml:"max_views"`
}

type ServerConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
}

type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Polling  PollingConfig  `yaml:"polling"`
	Sessions SessionConfig  `yaml:"sessions"`
	Server   ServerConfig   `yaml:"server"`
	Logging  logging.Config `yaml:"logging"`
}

// Load reads configuration from the YAML file named by PORTALSYNC_CONFIG
// (default config.yaml) if it exists, then applies environment overrides
// and defaults. Environment variables override YAML file settings.
func Load() (*Config, error) {
	return LoadFile(getEnv("PORTALSYNC_CONFIG", ""))
}

// LoadFile is Load with an explicit file path. An empty path means
// config.yaml, which may be absent; any other path must exist.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	required := path != ""
	if !required {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		cfg, err = LoadConfigFromYAML(path)
		if err != nil {
			return nil, err
		}
	} else if required {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromYAML loads configuration from a YAML file.
func LoadConfigFromYAML(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	// Backend
	if v := getEnv("BACKEND_BASE_URL", ""); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := getEnv("BACKEND_TOKEN", ""); v != "" {
		cfg.Backend.Token = v
	}
	if err := getDuration("BACKEND_TIMEOUT", &cfg.Backend.Timeout); err != nil {
		return err
	}
	if err := getFloat("BACKEND_RATE_PER_SEC", &cfg.Backend.RatePerSec); err != nil {
		return err
	}
	if err := getInt("BACKEND_BURST", &cfg.Backend.Burst); err != nil {
		return err
	}
	if err := getInt("BACKEND_MAX_RETRIES", &cfg.Backend.MaxRetries); err != nil {
		return err
	}

	// Polling
	if err := getDuration("POLL_INITIAL_INTERVAL", &cfg.Polling.InitialInterval); err != nil {
		return err
	}
	if err := getDuration("POLL_MAX_INTERVAL", &cfg.Polling.MaxInterval); err != nil {
		return err
	}
	if err := getFloat("POLL_BACKOFF_MULTIPLIER", &cfg.Polling.Multiplier); err != nil {
		return err
	}
	if err := getBool("POLL_PAUSE_ON_HIDDEN", &cfg.Polling.PauseOnHidden); err != nil {
		return err
	}
	if err := getBool("POLL_USE_BACKOFF", &cfg.Polling.UseBackoff); err != nil {
		return err
	}
	if v := getEnv("POLL_COMPARATOR", ""); v != "" {
		cfg.Polling.Comparator = v
	}

	// Sessions
	if err := getDuration("SESSION_IDLE_TIMEOUT", &cfg.Sessions.IdleTimeout); err != nil {
		return err
	}
	if err := getDuration("SESSION_TTL", &cfg.Sessions.TTL); err != nil {
		return err
	}
	if err := getDuration("SESSION_SWEEP_INTERVAL", &cfg.Sessions.SweepInterval); err != nil {
		return err
	}
	if err := getInt("SNAPSHOT_CACHE_SIZE", &cfg.Sessions.MaxSnapshots); err != nil {
		return err
	}
	if err := getInt("SESSION_MAX_VIEWS", &cfg.Sessions.MaxViews); err != nil {
		return err
	}

	// Server
	if v := getEnv("HTTP_ADDR", ""); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if err := getInt("HTTP_SHUTDOWN_TIMEOUT_SEC", &cfg.Server.ShutdownTimeoutSec); err != nil {
		return err
	}

	// Logging
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		if cfg.Logging == (logging.Config{}) {
			cfg.Logging = logging.DefaultConfig
		}
		cfg.Logging.Level = v
	}
	return nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = constants.DefaultRequestTimeout
	}
	if c.Backend.RatePerSec == 0 {
		c.Backend.RatePerSec = constants.DefaultRatePerSec
	}
	if c.Backend.Burst == 0 {
		c.Backend.Burst = constants.DefaultBurst
	}
	if c.Backend.MaxRetries == 0 {
		c.Backend.MaxRetries = constants.DefaultMaxRetries
	}

	if c.Polling.InitialInterval == 0 {
		c.Polling.InitialInterval = constants.DefaultInitialInterval
	}
	if c.Polling.MaxInterval == 0 {
		c.Polling.MaxInterval = constants.DefaultMaxInterval
		if c.Polling.MaxInterval < c.Polling.InitialInterval {
			c.Polling.MaxInterval = c.Polling.InitialInterval
		}
	}
	if c.Polling.Multiplier == 0 {
		c.Polling.Multiplier = constants.DefaultMultiplier
	}
	if c.Polling.PauseOnHidden == nil {
		c.Polling.PauseOnHidden = boolPtr(true)
	}
	if c.Polling.UseBackoff == nil {
		c.Polling.UseBackoff = boolPtr(true)
	}
	if c.Polling.Comparator == "" {
		c.Polling.Comparator = constants.DefaultComparator
	}

	if c.Sessions.IdleTimeout == 0 {
		c.Sessions.IdleTimeout = constants.DefaultIdleTimeout
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = constants.DefaultSessionTTL
	}
	if c.Sessions.SweepInterval == 0 {
		c.Sessions.SweepInterval = constants.DefaultSweepInterval
	}
	if c.Sessions.MaxSnapshots == 0 {
		c.Sessions.MaxSnapshots = constants.DefaultMaxSnapshots
	}
	if c.Sessions.MaxViews == 0 {
		c.Sessions.MaxViews = constants.MaxViewsPerSession
	}

	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.ShutdownTimeoutSec <= 0 {
		c.Server.ShutdownTimeoutSec = 10
	}

	if c.Logging == (logging.Config{}) {
		c.Logging = logging.DefaultConfig
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("backend base url must be an absolute http(s) url")
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("backend timeout must be positive")
	}
	if c.Backend.RatePerSec <= 0 {
		return errors.New("backend rate must be positive")
	}
	if c.Backend.Burst <= 0 {
		return errors.New("backend burst must be greater than 0")
	}
	if c.Backend.MaxRetries < 0 {
		return errors.New("backend max retries must not be negative")
	}

	if _, err := c.Polling.Policy(); err != nil {
		return err
	}

	if c.Sessions.IdleTimeout <= 0 {
		return errors.New("session idle timeout must be positive")
	}
	if c.Sessions.TTL < c.Sessions.IdleTimeout {
		return errors.New("session ttl must not be shorter than idle timeout")
	}
	if c.Sessions.SweepInterval <= 0 {
		return errors.New("session sweep interval must be positive")
	}
	if c.Sessions.MaxSnapshots <= 0 {
		return errors.New("snapshot cache size must be greater than 0")
	}
	if c.Sessions.MaxViews <= 0 {
		return errors.New("max views per session must be greater than 0")
	}

	if c.Server.HTTPAddr == "" {
		return errors.New("http address is required")
	}
	return nil
}

// Policy converts the polling section into a controller policy.
func (p PollingConfig) Policy() (pollctl.Policy, error) {
	hasChanged, err := pollctl.ComparatorByName(p.Comparator)
	if err != nil {
		return pollctl.Policy{}, err
	}

	policy := pollctl.Policy{
		InitialInterval: p.InitialInterval,
		MaxInterval:     p.MaxInterval,
		Multiplier:      p.Multiplier,
		PauseOnHidden:   p.PauseOnHidden == nil || *p.PauseOnHidden,
		UseBackoff:      p.UseBackoff == nil || *p.UseBackoff,
		HasChanged:      hasChanged,
	}
	if err := policy.Validate(); err != nil {
		return pollctl.Policy{}, err
	}
	return policy, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// getInt, getFloat, getBool and getDuration overwrite *dst when key is set.
// Malformed values are errors.
func getInt(key string, dst *int) error {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func getFloat(key string, dst *float64) error {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid %s: %q is not a finite number", key, v)
	}
	*dst = f
	return nil
}

func getBool(key string, dst **bool) error {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = &b
	return nil
}

func getDuration(key string, dst *time.Duration) error {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
