/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-limitkit/config"
)

type AppConfig struct {
	SlotLimit *Config `mapstructure:"slotLimit" json:"slotLimit" yaml:"slotLimit"`
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
		expectedCfg func() *Config
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
slotLimit:
  maxRatePerSecond: 100
  reductionPercentage: 50
  pollInterval: 75ms
  stuckSlotThreshold: 30s
  defaultAcquireTimeout: 15s
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.MaxRatePerSecond = 100
				cfg.ReductionPercentage = 50
				cfg.PollInterval = config.TimeDuration(time.Millisecond * 75)
				cfg.StuckSlotThreshold = config.TimeDuration(time.Second * 30)
				cfg.DefaultAcquireTimeout = config.TimeDuration(time.Second * 15)
				return cfg
			},
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData: `
{
	"slotLimit": {
		"maxRatePerSecond": 100,
		"reductionPercentage": 50,
		"pollInterval": "75ms",
		"stuckSlotThreshold": "30s",
		"defaultAcquireTimeout": "15s"
	}
}`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.MaxRatePerSecond = 100
				cfg.ReductionPercentage = 50
				cfg.PollInterval = config.TimeDuration(time.Millisecond * 75)
				cfg.StuckSlotThreshold = config.TimeDuration(time.Second * 30)
				cfg.DefaultAcquireTimeout = config.TimeDuration(time.Second * 15)
				return cfg
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Load config using config.Loader.
			appCfg := AppConfig{SlotLimit: NewDefaultConfig()}
			expectedAppCfg := AppConfig{SlotLimit: tt.expectedCfg()}
			cfgLoader := config.NewLoader(config.NewViperAdapter())
			err := cfgLoader.LoadFromReader(bytes.NewBuffer([]byte(tt.cfgData)), tt.cfgDataType, appCfg.SlotLimit)
			require.NoError(t, err)
			require.Equal(t, expectedAppCfg, appCfg)

			// Load config using viper unmarshal.
			appCfg = AppConfig{SlotLimit: NewDefaultConfig()}
			expectedAppCfg = AppConfig{SlotLimit: tt.expectedCfg()}
			vpr := viper.New()
			vpr.SetConfigType(string(tt.cfgDataType))
			require.NoError(t, vpr.ReadConfig(bytes.NewBuffer([]byte(tt.cfgData))))
			require.NoError(t, vpr.Unmarshal(&appCfg, func(c *mapstructure.DecoderConfig) {
				c.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
			}))
			require.Equal(t, expectedAppCfg, appCfg)

			// Load config using yaml/json unmarshal.
			appCfg = AppConfig{SlotLimit: NewDefaultConfig()}
			expectedAppCfg = AppConfig{SlotLimit: tt.expectedCfg()}
			switch tt.cfgDataType {
			case config.DataTypeYAML:
				require.NoError(t, yaml.Unmarshal([]byte(tt.cfgData), &appCfg))
				require.Equal(t, expectedAppCfg, appCfg)
			case config.DataTypeJSON:
				require.NoError(t, json.Unmarshal([]byte(tt.cfgData), &appCfg))
				require.Equal(t, expectedAppCfg, appCfg)
			default:
				t.Fatalf("unsupported config data type: %s", tt.cfgDataType)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	// MaxRatePerSecond is the only required parameter,
	// all the others should get their default values from the data provider.
	cfgData := `
slotLimit:
  maxRatePerSecond: 10
`
	expectedCfg := NewDefaultConfig()
	expectedCfg.MaxRatePerSecond = 10

	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, expectedCfg, cfg)

	opts := cfg.LimiterOpts()
	require.Equal(t, DefaultReductionPercentage, opts.ReductionPercentage)
	require.Equal(t, DefaultPollInterval, opts.PollInterval)
	require.Equal(t, DefaultStuckSlotThreshold, opts.StuckSlotThreshold)
	require.Equal(t, DefaultAcquireTimeout, opts.DefaultAcquireTimeout)
}

func TestConfigWithKeyPrefix(t *testing.T) {
	t.Run("custom key prefix", func(t *testing.T) {
		cfgData := `
customSlotLimit:
  maxRatePerSecond: 10
  reductionPercentage: 30
`
		expectedCfg := NewDefaultConfig(WithKeyPrefix("customSlotLimit"))
		expectedCfg.MaxRatePerSecond = 10
		expectedCfg.ReductionPercentage = 30

		cfg := NewConfig(WithKeyPrefix("customSlotLimit"))
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, expectedCfg, cfg)
	})

	t.Run("default key prefix, empty struct initialization", func(t *testing.T) {
		cfgData := `
slotLimit:
  maxRatePerSecond: 10
`
		cfg := &Config{}
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(cfgData)), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, 10, cfg.MaxRatePerSecond)
		require.Equal(t, DefaultReductionPercentage, cfg.ReductionPercentage)
	})
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name: "error, missing max rate",
			yamlData: `
slotLimit:
  reductionPercentage: 50
`,
			expectedErrMsg: `slotLimit.maxRatePerSecond: should be positive, got 0`,
		},
		{
			name: "error, negative max rate",
			yamlData: `
slotLimit:
  maxRatePerSecond: -5
`,
			expectedErrMsg: `slotLimit.maxRatePerSecond: should be positive, got -5`,
		},
		{
			name: "error, too big reduction percentage",
			yamlData: `
slotLimit:
  maxRatePerSecond: 10
  reductionPercentage: 150
`,
			expectedErrMsg: `slotLimit.reductionPercentage: should be in the range [0..100], got 150`,
		},
		{
			name: "error, zero poll interval",
			yamlData: `
slotLimit:
  maxRatePerSecond: 10
  pollInterval: 0s
`,
			expectedErrMsg: `slotLimit.pollInterval: should be positive, got 0s`,
		},
		{
			name: "error, negative stuck slot threshold",
			yamlData: `
slotLimit:
  maxRatePerSecond: 10
  stuckSlotThreshold: -1s
`,
			expectedErrMsg: `slotLimit.stuckSlotThreshold: should be positive, got -1s`,
		},
		{
			name: "error, zero default acquire timeout",
			yamlData: `
slotLimit:
  maxRatePerSecond: 10
  defaultAcquireTimeout: 0s
`,
			expectedErrMsg: `slotLimit.defaultAcquireTimeout: should be positive, got 0s`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer([]byte(tt.yamlData)), config.DataTypeYAML, cfg)
			require.EqualError(t, err, tt.expectedErrMsg)
		})
	}
}
