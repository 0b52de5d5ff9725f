// Package config handles TOML-based configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	// CacheDir receives downloaded video files.
	CacheDir string `toml:"cache_dir"`

	// DataDir holds the subscription store and the download-job database.
	DataDir string `toml:"data_dir"`

	// Cron is the update-check schedule in standard five-field cron syntax.
	Cron string `toml:"cron"`

	// TargetDelaySeconds spaces checks across subscribed targets.
	TargetDelaySeconds int `toml:"target_delay_seconds"`

	// DestinationDelaySeconds spaces deliveries to one target's destinations.
	DestinationDelaySeconds int `toml:"destination_delay_seconds"`

	HTTPTimeoutSeconds    int `toml:"http_timeout_seconds"`
	BrowserTimeoutSeconds int `toml:"browser_timeout_seconds"`
	BrowserSessions       int `toml:"browser_sessions"`
	SettleSeconds         int `toml:"settle_seconds"`

	// WebhookURL, when set, routes deliveries to an HTTP endpoint instead of
	// the log sink.
	WebhookURL string `toml:"webhook_url"`

	// ChromePath overrides browser binary discovery.
	ChromePath string `toml:"chrome_path"`

	Debug bool `toml:"debug"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		CacheDir:                "~/.cache/tapfeed",
		DataDir:                 "",
		Cron:                    "1-56/5 * * * *",
		TargetDelaySeconds:      5,
		DestinationDelaySeconds: 2,
		HTTPTimeoutSeconds:      10,
		BrowserTimeoutSeconds:   40,
		BrowserSessions:         1,
		SettleSeconds:           2,
		Debug:                   false,
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tapfeed"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tapfeed"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", c.Cron, err)
	}
	if c.HTTPTimeoutSeconds < 1 {
		return fmt.Errorf("http_timeout_seconds must be at least 1")
	}
	if c.BrowserTimeoutSeconds < 1 {
		return fmt.Errorf("browser_timeout_seconds must be at least 1")
	}
	if c.BrowserSessions < 1 {
		return fmt.Errorf("browser_sessions must be at least 1")
	}
	if c.TargetDelaySeconds < 0 || c.DestinationDelaySeconds < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http") {
		return fmt.Errorf("webhook_url must be an HTTP(S) URL")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir cannot be empty")
	}
	return nil
}

// ExpandCacheDir resolves ~ in the cache directory path.
func (c *Config) ExpandCacheDir() (string, error) {
	return expand(c.CacheDir)
}

// ExpandDataDir resolves the data directory, defaulting to the XDG data home.
func (c *Config) ExpandDataDir() (string, error) {
	if c.DataDir != "" {
		return expand(c.DataDir)
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "tapfeed"), nil
}

// StorePath returns the subscription store file location.
func (c *Config) StorePath() (string, error) {
	dir, err := c.ExpandDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "subscriptions.json"), nil
}

// JobsPath returns the download-job database location.
func (c *Config) JobsPath() (string, error) {
	dir, err := c.ExpandDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "jobs.db"), nil
}

func expand(dir string) (string, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}
