package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines runtime settings for gridvnc.
type Config struct {
	GridURL     string `yaml:"gridUrl"`
	VNCPassword string `yaml:"vncPassword"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`
	StaticDir   string `yaml:"staticDir"`

	Grid    GridConfig    `yaml:"grid"`
	Relay   RelayConfig   `yaml:"relay"`
	Gateway GatewayConfig `yaml:"gateway"`
}

type GridConfig struct {
	Timeout string `yaml:"timeout"`
}

type RelayConfig struct {
	DialTimeout    string   `yaml:"dialTimeout"`
	MaxSessions    int      `yaml:"maxSessions"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type GatewayConfig struct {
	AllowedAddrs []string `yaml:"allowedAddrs"`
}

// Default returns the configuration used when no file or env is present.
func Default() *Config {
	return &Config{
		GridURL:     "http://localhost:4444",
		VNCPassword: "secret",
		Host:        "0.0.0.0",
		Port:        5000,
		LogLevel:    "info",
		LogFormat:   "json",
		StaticDir:   "static",
		Grid:        GridConfig{Timeout: "10s"},
		Relay:       RelayConfig{DialTimeout: "10s"},
	}
}

// Load reads configuration from a YAML file and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SELENIUM_GRID_URL"); v != "" {
		c.GridURL = v
	}
	if v := os.Getenv("GRID_URL"); v != "" {
		c.GridURL = v
	}
	if v := os.Getenv("VNC_PASSWORD"); v != "" {
		c.VNCPassword = v
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT: %w", err)
		}
		c.Port = port
	}
	if v := os.Getenv("DEBUG"); v != "" {
		c.Debug = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("GRIDVNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GRIDVNC_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Relay.AllowedOrigins = splitList(v)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.GridURL)
	if err != nil {
		return fmt.Errorf("invalid gridUrl %q: %w", c.GridURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid gridUrl %q: want absolute http(s) URL", c.GridURL)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := time.ParseDuration(c.Grid.Timeout); err != nil {
		return fmt.Errorf("invalid grid.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Relay.DialTimeout); err != nil {
		return fmt.Errorf("invalid relay.dialTimeout: %w", err)
	}
	if c.Relay.MaxSessions < 0 {
		return fmt.Errorf("invalid relay.maxSessions %d", c.Relay.MaxSessions)
	}
	return nil
}

// Addr is the listen address built from Host and Port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) GridTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Grid.Timeout)
	return d
}

func (c *Config) DialTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Relay.DialTimeout)
	return d
}

// DefaultPath returns the default location for the config file.
func DefaultPath() string {
	if path := os.Getenv("GRIDVNC_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gridvnc", "config.yaml")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
