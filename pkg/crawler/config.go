package crawler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mirror configuration. It is copied at Start and not
// read again for the rest of the run.
type Config struct {
	// Start URL to mirror. Only http:// is fetched.
	StartURL string `json:"start_url" yaml:"start_url"`

	// Maximum link depth from the start page
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// Maximum number of simultaneous connections
	MaxConnections int `json:"max_connections" yaml:"max_connections"`

	// Only follow links whose host (without www.) matches the start host
	SameHostOnly bool `json:"same_host_only" yaml:"same_host_only"`

	// Directory the mirror is written to
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Per-fetch timeout, measured from connection open
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Upper bound on one readiness wait
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Connections opened per second (0 = unlimited)
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// Connections opened per second to any one host (0 = unlimited)
	HostRateLimit float64 `json:"host_rate_limit" yaml:"host_rate_limit"`

	// Connections that may be opened at once under the rate limit
	RateBurst int `json:"rate_burst" yaml:"rate_burst"`

	// Largest accepted response, headers included (0 = unlimited)
	MaxResponseSize int64 `json:"max_response_size" yaml:"max_response_size"`

	// Optional bbolt manifest of saved pages and runs
	ManifestPath string `json:"manifest_path" yaml:"manifest_path"`

	// User-Agent request header
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// Regular expressions; matching URLs are never enqueued
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:        3,
		MaxConnections:  8,
		SameHostOnly:    true,
		OutputDir:       "mirror",
		Timeout:         10 * time.Second,
		PollInterval:    200 * time.Millisecond,
		RateLimit:       0,
		RateBurst:       1,
		MaxResponseSize: 32 * 1024 * 1024,
		UserAgent:       "Mozilla/5.0",
	}
}

// LoadFromFile loads configuration from a file (JSON or YAML).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration. The scheme is checked by Start.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start URL is required")
	}

	u, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL: %w", err)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("start URL has no host")
	}

	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative")
	}

	if c.MaxConnections < 1 {
		return fmt.Errorf("max connections must be at least 1")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative")
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	if c.HostRateLimit < 0 {
		return fmt.Errorf("host rate limit must not be negative")
	}

	if c.MaxResponseSize < 0 {
		return fmt.Errorf("max response size must not be negative")
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.ExcludePatterns != nil {
		clone.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	}
	return &clone
}
