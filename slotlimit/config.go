/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"fmt"
	"time"

	"github.com/acronis/go-limitkit/config"
)

const cfgDefaultKeyPrefix = "slotLimit"

const (
	cfgKeyMaxRatePerSecond      = "maxRatePerSecond"
	cfgKeyReductionPercentage   = "reductionPercentage"
	cfgKeyPollInterval          = "pollInterval"
	cfgKeyStuckSlotThreshold    = "stuckSlotThreshold"
	cfgKeyDefaultAcquireTimeout = "defaultAcquireTimeout"
)

// Config represents a set of configuration parameters for SlotLimiter.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// MaxRatePerSecond is the maximum number of operations admitted per second.
	// The only required parameter.
	MaxRatePerSecond int `mapstructure:"maxRatePerSecond" yaml:"maxRatePerSecond" json:"maxRatePerSecond"`

	// ReductionPercentage is a percentage of MaxRatePerSecond by which the effective
	// limit is lowered on each temporary reduction.
	ReductionPercentage int `mapstructure:"reductionPercentage" yaml:"reductionPercentage" json:"reductionPercentage"`

	// PollInterval is the interval between capacity re-checks
	// while acquirers are waiting and all slots are busy.
	PollInterval config.TimeDuration `mapstructure:"pollInterval" yaml:"pollInterval" json:"pollInterval"`

	// StuckSlotThreshold is the time after which a slot that was acquired
	// but never released is reclaimed.
	StuckSlotThreshold config.TimeDuration `mapstructure:"stuckSlotThreshold" yaml:"stuckSlotThreshold" json:"stuckSlotThreshold"`

	// DefaultAcquireTimeout is the acquire timeout used when no per-call timeout is set.
	DefaultAcquireTimeout config.TimeDuration `mapstructure:"defaultAcquireTimeout" yaml:"defaultAcquireTimeout" json:"defaultAcquireTimeout"`

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
// MaxRatePerSecond has no default and should be set explicitly.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix:             opts.keyPrefix,
		ReductionPercentage:   DefaultReductionPercentage,
		PollInterval:          config.TimeDuration(DefaultPollInterval),
		StuckSlotThreshold:    config.TimeDuration(DefaultStuckSlotThreshold),
		DefaultAcquireTimeout: config.TimeDuration(DefaultAcquireTimeout),
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

// SetProviderDefaults sets default configuration values for SlotLimiter in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyReductionPercentage, DefaultReductionPercentage)
	dp.SetDefault(cfgKeyPollInterval, DefaultPollInterval)
	dp.SetDefault(cfgKeyStuckSlotThreshold, DefaultStuckSlotThreshold)
	dp.SetDefault(cfgKeyDefaultAcquireTimeout, DefaultAcquireTimeout)
}

// Set sets SlotLimiter configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	var maxRate int
	if maxRate, err = dp.GetInt(cfgKeyMaxRatePerSecond); err != nil {
		return err
	}
	if maxRate <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxRatePerSecond, fmt.Errorf("should be positive, got %d", maxRate))
	}
	c.MaxRatePerSecond = maxRate

	var reductionPercentage int
	if reductionPercentage, err = dp.GetInt(cfgKeyReductionPercentage); err != nil {
		return err
	}
	if reductionPercentage < 0 || reductionPercentage > 100 {
		return dp.WrapKeyErr(cfgKeyReductionPercentage,
			fmt.Errorf("should be in the range [0..100], got %d", reductionPercentage))
	}
	c.ReductionPercentage = reductionPercentage

	var pollInterval time.Duration
	if pollInterval, err = dp.GetDuration(cfgKeyPollInterval); err != nil {
		return err
	}
	if pollInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyPollInterval, fmt.Errorf("should be positive, got %s", pollInterval))
	}
	c.PollInterval = config.TimeDuration(pollInterval)

	var stuckSlotThreshold time.Duration
	if stuckSlotThreshold, err = dp.GetDuration(cfgKeyStuckSlotThreshold); err != nil {
		return err
	}
	if stuckSlotThreshold <= 0 {
		return dp.WrapKeyErr(cfgKeyStuckSlotThreshold, fmt.Errorf("should be positive, got %s", stuckSlotThreshold))
	}
	c.StuckSlotThreshold = config.TimeDuration(stuckSlotThreshold)

	var acquireTimeout time.Duration
	if acquireTimeout, err = dp.GetDuration(cfgKeyDefaultAcquireTimeout); err != nil {
		return err
	}
	if acquireTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyDefaultAcquireTimeout, fmt.Errorf("should be positive, got %s", acquireTimeout))
	}
	c.DefaultAcquireTimeout = config.TimeDuration(acquireTimeout)

	return nil
}

// LimiterOpts converts the configuration into options for NewWithOpts.
// Collaborators (Opts.Logger, Opts.Metrics) are left for the caller to fill in.
func (c *Config) LimiterOpts() Opts {
	return Opts{
		ReductionPercentage:   c.ReductionPercentage,
		PollInterval:          time.Duration(c.PollInterval),
		StuckSlotThreshold:    time.Duration(c.StuckSlotThreshold),
		DefaultAcquireTimeout: time.Duration(c.DefaultAcquireTimeout),
	}
}
