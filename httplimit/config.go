/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httplimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-limitkit/config"
	"github.com/acronis/go-limitkit/slotlimit"
)

const cfgDefaultKeyPrefix = "httpLimit"

const (
	cfgKeyRules              = "rules"
	cfgKeyAcquireTimeout     = "acquireTimeout"
	cfgKeyResponseStatusCode = "responseStatusCode"
	cfgKeyRetryAfter         = "retryAfter"
)

// RuleConfig represents a configuration for a single priority rule.
type RuleConfig struct {
	// PathPattern is a glob pattern that is applied to the request URL path.
	PathPattern string `mapstructure:"pathPattern" yaml:"pathPattern" json:"pathPattern"`

	// Methods is an optional list of HTTP methods (case-insensitive). Empty list matches any method.
	Methods []string `mapstructure:"methods" yaml:"methods" json:"methods"`

	// Priority is an admission priority ("high", "normal" or "low") assigned to matched requests.
	// If not specified, "normal" is used.
	Priority slotlimit.Priority `mapstructure:"priority" yaml:"priority" json:"priority"`
}

// Config represents a set of configuration parameters for the AdmissionLimit middleware.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Rules define how the admission priority is assigned to incoming requests.
	// The first matching rule wins.
	Rules []RuleConfig `mapstructure:"rules" yaml:"rules" json:"rules"`

	// AcquireTimeout is the maximum time a request may wait for a slot before it's rejected.
	// Zero means the default acquire timeout of the limiter is used.
	AcquireTimeout config.TimeDuration `mapstructure:"acquireTimeout" yaml:"acquireTimeout" json:"acquireTimeout"`

	// ResponseStatusCode is an HTTP status code that is used in responses for rejected requests.
	ResponseStatusCode int `mapstructure:"responseStatusCode" yaml:"responseStatusCode" json:"responseStatusCode"`

	// RetryAfter is a fixed value for the Retry-After header in responses for rejected requests.
	// Zero disables the header.
	RetryAfter config.TimeDuration `mapstructure:"retryAfter" yaml:"retryAfter" json:"retryAfter"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	var opts = configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix:          opts.keyPrefix,
		ResponseStatusCode: http.StatusServiceUnavailable,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the AdmissionLimit middleware in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyResponseStatusCode, http.StatusServiceUnavailable)
}

// Set sets AdmissionLimit middleware configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if err = dp.UnmarshalKey(cfgKeyRules, &c.Rules); err != nil {
		return err
	}
	for i := range c.Rules {
		rule := &c.Rules[i]
		if rule.PathPattern == "" {
			return dp.WrapKeyErr(cfgKeyRules, fmt.Errorf("path pattern cannot be empty in rule #%d", i+1))
		}
		if rule.Priority == "" {
			rule.Priority = slotlimit.PriorityNormal
			continue
		}
		switch rule.Priority {
		case slotlimit.PriorityHigh, slotlimit.PriorityNormal, slotlimit.PriorityLow:
		default:
			return dp.WrapKeyErr(cfgKeyRules, fmt.Errorf("unknown priority %q in rule #%d, should be one of [%s %s %s]",
				rule.Priority, i+1, slotlimit.PriorityHigh, slotlimit.PriorityNormal, slotlimit.PriorityLow))
		}
	}

	var acquireTimeout time.Duration
	if acquireTimeout, err = dp.GetDuration(cfgKeyAcquireTimeout); err != nil {
		return err
	}
	if acquireTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyAcquireTimeout, fmt.Errorf("should not be negative, got %s", acquireTimeout))
	}
	c.AcquireTimeout = config.TimeDuration(acquireTimeout)

	var respStatusCode int
	if respStatusCode, err = dp.GetInt(cfgKeyResponseStatusCode); err != nil {
		return err
	}
	if respStatusCode < 100 || respStatusCode > 599 {
		return dp.WrapKeyErr(cfgKeyResponseStatusCode,
			fmt.Errorf("should be a valid HTTP status code, got %d", respStatusCode))
	}
	c.ResponseStatusCode = respStatusCode

	var retryAfter time.Duration
	if retryAfter, err = dp.GetDuration(cfgKeyRetryAfter); err != nil {
		return err
	}
	if retryAfter < 0 {
		return dp.WrapKeyErr(cfgKeyRetryAfter, fmt.Errorf("should not be negative, got %s", retryAfter))
	}
	c.RetryAfter = config.TimeDuration(retryAfter)

	return nil
}

// MiddlewareOpts converts the configuration into options for AdmissionLimitWithOpts.
// Collaborators (Logger, LoggerProvider, callbacks) are left for the caller to fill in.
func (c *Config) MiddlewareOpts() AdmissionLimitOpts {
	rules := make([]PriorityRule, 0, len(c.Rules))
	for _, rule := range c.Rules {
		rules = append(rules, PriorityRule{
			PathPattern: rule.PathPattern,
			Methods:     rule.Methods,
			Priority:    rule.Priority,
		})
	}

	opts := AdmissionLimitOpts{
		Rules:              rules,
		AcquireTimeout:     time.Duration(c.AcquireTimeout),
		ResponseStatusCode: c.ResponseStatusCode,
	}
	if c.RetryAfter > 0 {
		retryAfter := time.Duration(c.RetryAfter)
		opts.GetRetryAfter = func(r *http.Request) time.Duration {
			return retryAfter
		}
	}
	return opts
}
