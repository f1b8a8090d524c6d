package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the notification watcher needs to run
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Site    SiteConfig    `yaml:"site"`
	Log     LogConfig     `yaml:"log"`
	Stream  StreamConfig  `yaml:"stream"`
}

// BrowserConfig controls how the browser process is launched
type BrowserConfig struct {
	Bin         string `yaml:"bin"`
	Headless    bool   `yaml:"headless"`
	UserDataDir string `yaml:"user_data_dir"`
	NoSandbox   bool   `yaml:"no_sandbox"`
	Stealth     bool   `yaml:"stealth"`
}

// SiteConfig describes the pages and selectors of the watched site
type SiteConfig struct {
	LoginURL          string        `yaml:"login_url"`
	NotificationsURL  string        `yaml:"notifications_url"`
	ContainerSelector string        `yaml:"container_selector"`
	ItemSelector      string        `yaml:"item_selector"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StreamConfig enables the websocket relay of log lines when Listen is set
type StreamConfig struct {
	Listen string `yaml:"listen"`
}

const (
	DefaultLoginURL          = "https://x.com/i/flow/login"
	DefaultNotificationsURL  = "https://x.com/notifications"
	DefaultContainerSelector = `div[aria-label="Timeline: Notifications"]`
	DefaultItemSelector      = `[data-testid="cellInnerDiv"]`
)

// Load reads the YAML file at path, expands environment references in it and
// applies defaults and environment overrides. An empty path yields the
// defaults; a path that does not exist is an error.
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadOptional is Load, except that a missing file also yields the defaults.
// It is meant for the default config location.
func LoadOptional(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, optional bool) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case optional && errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.setDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Browser.UserDataDir == "" {
		c.Browser.UserDataDir = "./user_data"
	}
	if c.Site.LoginURL == "" {
		c.Site.LoginURL = DefaultLoginURL
	}
	if c.Site.NotificationsURL == "" {
		c.Site.NotificationsURL = DefaultNotificationsURL
	}
	if c.Site.ContainerSelector == "" {
		c.Site.ContainerSelector = DefaultContainerSelector
	}
	if c.Site.ItemSelector == "" {
		c.Site.ItemSelector = DefaultItemSelector
	}
	if c.Site.WaitTimeout == 0 {
		c.Site.WaitTimeout = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnv() error {
	// CHROME_BIN is set by the Docker image
	c.Browser.Bin = getEnvOrDefault("CHROME_BIN", c.Browser.Bin)
	c.Site.LoginURL = getEnvOrDefault("NOTIWATCH_LOGIN_URL", c.Site.LoginURL)
	c.Site.NotificationsURL = getEnvOrDefault("NOTIWATCH_URL", c.Site.NotificationsURL)
	c.Site.ContainerSelector = getEnvOrDefault("NOTIWATCH_CONTAINER", c.Site.ContainerSelector)
	c.Site.ItemSelector = getEnvOrDefault("NOTIWATCH_ITEM", c.Site.ItemSelector)
	c.Stream.Listen = getEnvOrDefault("NOTIWATCH_LISTEN", c.Stream.Listen)
	c.Log.Level = getEnvOrDefault("NOTIWATCH_LOG_LEVEL", c.Log.Level)

	if v := os.Getenv("NOTIWATCH_HEADLESS"); v != "" {
		headless, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid NOTIWATCH_HEADLESS %q: %w", v, err)
		}
		c.Browser.Headless = headless
	}
	return nil
}

// Validate reports the first missing required setting
func (c *Config) Validate() error {
	switch {
	case c.Site.LoginURL == "":
		return errors.New("login url is required")
	case c.Site.NotificationsURL == "":
		return errors.New("notifications url is required")
	case c.Site.ContainerSelector == "":
		return errors.New("container selector is required")
	case c.Site.ItemSelector == "":
		return errors.New("item selector is required")
	case c.Site.WaitTimeout < 0:
		return fmt.Errorf("wait timeout must not be negative, got %s", c.Site.WaitTimeout)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
