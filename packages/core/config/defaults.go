package config

import "github.com/abdul-hamid-achik/hitchain/packages/core/template"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30000, // 30 seconds
		FollowRedirects: BoolPtr(true),
		MaxRedirects:    10,
		ValidateSSL:     BoolPtr(true),
		Concurrency:     5,
		RetryDelay:      1000, // 1 second
		MaxPasses:       template.DefaultMaxPasses,
		StrictURL:       BoolPtr(true),
		Output:          "console",
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.Timeout == d.Timeout &&
		c.GetFollowRedirects() == d.GetFollowRedirects() &&
		c.MaxRedirects == d.MaxRedirects &&
		c.GetValidateSSL() == d.GetValidateSSL() &&
		c.Proxy == d.Proxy &&
		len(c.Headers) == 0 &&
		c.Concurrency == d.Concurrency &&
		c.Retries == d.Retries &&
		c.RetryDelay == d.RetryDelay &&
		c.MaxPasses == d.MaxPasses &&
		c.GetStrictVariables() == d.GetStrictVariables() &&
		c.GetStrictURL() == d.GetStrictURL() &&
		c.Output == d.Output &&
		c.GetVerbose() == d.GetVerbose() &&
		c.GetNoColor() == d.GetNoColor()
}
