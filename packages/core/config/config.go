package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/hitchain/packages/core/document"
	"github.com/abdul-hamid-achik/hitchain/packages/core/template"
)

// Config represents the hitchain tool configuration
type Config struct {
	Timeout         int               `json:"timeout,omitempty"` // milliseconds
	FollowRedirects *bool             `json:"followRedirects,omitempty"`
	MaxRedirects    int               `json:"maxRedirects,omitempty"`
	ValidateSSL     *bool             `json:"validateSSL,omitempty"`
	Proxy           string            `json:"proxy,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"` // Default headers for all requests

	// Concurrency is the default maxConcurrent of parallel collections.
	Concurrency int `json:"concurrency,omitempty"`
	Retries     int `json:"retries,omitempty"`
	RetryDelay  int `json:"retryDelay,omitempty"` // milliseconds

	MaxPasses       int   `json:"maxPasses,omitempty"`
	StrictVariables *bool `json:"strictVariables,omitempty"`
	StrictURL       *bool `json:"strictURL,omitempty"`

	Output  string `json:"output,omitempty"`
	Verbose *bool  `json:"verbose,omitempty"`
	NoColor *bool  `json:"noColor,omitempty"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

func (c *Config) GetStrictVariables() bool {
	return getBool(c.StrictVariables, false)
}

// GetStrictURL returns whether unresolved references in URLs are errors,
// defaulting to true
func (c *Config) GetStrictURL() bool {
	return getBool(c.StrictURL, true)
}

func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".hitchain.config.json",
	"hitchain.config.json",
	".hitchainrc",
	".hitchainrc.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return config, nil
}

// Validate rejects values no run could honor.
func (c *Config) Validate() error {
	switch {
	case c.Timeout < 0:
		return fmt.Errorf("timeout must not be negative, got %d", c.Timeout)
	case c.Concurrency < 0:
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	case c.Retries < 0:
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	case c.RetryDelay < 0:
		return fmt.Errorf("retryDelay must not be negative, got %d", c.RetryDelay)
	case c.MaxPasses < 0:
		return fmt.Errorf("maxPasses must not be negative, got %d", c.MaxPasses)
	}
	switch c.Output {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown output %q (expected console or json)", c.Output)
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.Retries > 0 {
		result.Retries = other.Retries
	}
	if other.RetryDelay > 0 {
		result.RetryDelay = other.RetryDelay
	}
	if other.MaxPasses > 0 {
		result.MaxPasses = other.MaxPasses
	}
	if other.Output != "" {
		result.Output = other.Output
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.StrictVariables != nil {
		result.StrictVariables = other.StrictVariables
	}
	if other.StrictURL != nil {
		result.StrictURL = other.StrictURL
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	return &result
}

// Policy is the template policy the config asks for.
func (c *Config) Policy() template.Policy {
	return template.Policy{
		MaxPasses: c.MaxPasses,
		Strict:    c.GetStrictVariables(),
		StrictURL: c.GetStrictURL(),
	}
}

// DocumentDefaults returns the values a document inherits when it does not
// set them itself. Only configured values are set.
func (c *Config) DocumentDefaults() document.Defaults {
	var d document.Defaults
	if c.Concurrency > 0 {
		n := c.Concurrency
		d.MaxConcurrent = &n
	}
	if c.Retries > 0 {
		n := c.Retries
		d.RetryCount = &n
	}
	if c.RetryDelay > 0 {
		n := c.RetryDelay
		d.RetryDelay = &n
	}
	return d
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
