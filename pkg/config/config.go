package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/greg-hellings/portal/pkg/export"
)

// Default values applied by ApplyDefaults.
const (
	DefaultAddr           = ":5173"
	DefaultBackendURL     = "http://localhost:8080"
	DefaultBackendTimeout = "5m"
	DefaultExportLayout   = "extended"
)

// Environment variables that override file values.
const (
	EnvAddr           = "PORTAL_ADDR"
	EnvBackendURL     = "PORTAL_BACKEND_URL"
	EnvBackendTimeout = "PORTAL_BACKEND_TIMEOUT"
	EnvExportLayout   = "PORTAL_EXPORT_LAYOUT"
)

// Config represents the top-level configuration file structure
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Selection SelectionConfig `yaml:"selection" toml:"selection"`
	Export    ExportConfig    `yaml:"export" toml:"export"`
	Providers ProvidersConfig `yaml:"providers" toml:"providers"`
}

// ServerConfig configures the portal HTTP server
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// BackendConfig points at the assessment service
type BackendConfig struct {
	BaseURL string `yaml:"baseURL" toml:"baseURL"`
	Timeout string `yaml:"timeout" toml:"timeout"`
}

// SelectionConfig controls the repository/service pickers
type SelectionConfig struct {
	// AutoSelectFirstService is a pointer so an omitted key can default to true.
	AutoSelectFirstService *bool `yaml:"autoSelectFirstService" toml:"autoSelectFirstService"`
}

// ExportConfig controls the xlsx export
type ExportConfig struct {
	Layout string `yaml:"layout" toml:"layout"`
}

// ProvidersConfig tunes repository URL classification and API endpoints for
// the verify command
type ProvidersConfig struct {
	GitLabHosts   []string `yaml:"gitlabHosts" toml:"gitlabHosts"`
	GitHubBaseURL string   `yaml:"githubBaseURL" toml:"githubBaseURL"`
	GitLabBaseURL string   `yaml:"gitlabBaseURL" toml:"gitlabBaseURL"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		// defaults are always valid
		panic(err)
	}
	return cfg
}

// Load reads filename (when non-empty), loads a .env file from the working
// directory if one exists, applies environment overrides and defaults.
func Load(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if filename != "" {
		var err error
		cfg, err = parseFile(filename)
		if err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads a YAML or TOML configuration file and returns the parsed
// Config with defaults applied. Environment variables are not consulted.
func LoadFromFile(filename string) (*Config, error) {
	cfg, err := parseFile(filename)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

func parseFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", filepath.Ext(filename))
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv(EnvBackendTimeout); v != "" {
		c.Backend.Timeout = v
	}
	if v := os.Getenv(EnvExportLayout); v != "" {
		c.Export.Layout = v
	}
}

// ApplyDefaults fills unset fields and validates the result
func (c *Config) ApplyDefaults() error {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBackendURL
	}
	if c.Backend.Timeout == "" {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Selection.AutoSelectFirstService == nil {
		enabled := true
		c.Selection.AutoSelectFirstService = &enabled
	}
	if c.Export.Layout == "" {
		c.Export.Layout = DefaultExportLayout
	}

	// Validate
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.baseURL must be an absolute URL, got %q", c.Backend.BaseURL)
	}
	if _, err := c.BackendTimeout(); err != nil {
		return err
	}
	layout, err := export.ParseLayout(c.Export.Layout)
	if err != nil {
		return fmt.Errorf("export.layout: %w", err)
	}
	c.Export.Layout = string(layout)
	for i, h := range c.Providers.GitLabHosts {
		if strings.TrimSpace(h) == "" {
			return fmt.Errorf("providers.gitlabHosts entry at index %d is empty", i)
		}
	}
	return nil
}

// BackendTimeout parses backend.timeout
func (c *Config) BackendTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil {
		return 0, fmt.Errorf("backend.timeout is not a valid duration: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("backend.timeout must not be negative, got %s", c.Backend.Timeout)
	}
	return d, nil
}

// ExportLayout returns the validated export layout
func (c *Config) ExportLayout() export.Layout {
	layout, err := export.ParseLayout(c.Export.Layout)
	if err != nil {
		return export.LayoutExtended
	}
	return layout
}

// AutoSelect reports whether choosing a repository selects its first service
func (c *Config) AutoSelect() bool {
	return c.Selection.AutoSelectFirstService == nil || *c.Selection.AutoSelectFirstService
}
