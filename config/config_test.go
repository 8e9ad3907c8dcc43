/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLimitsConfigYAML = `
limits:
  maxRatePerSecond: 100
  acquireTimeout: 30s
  lanes:
    read: high
    write: low
`

const testLimitsConfigJSON = `{"limits": {"maxRatePerSecond": 100, "acquireTimeout": "30s", "lanes": {"read": "high", "write": "low"}}}`

type testLaneConfig struct {
	MaxRate     int
	WaitTimeout string

	keyPrefix string
}

func (c *testLaneConfig) KeyPrefix() string {
	return c.keyPrefix
}

func (c *testLaneConfig) SetProviderDefaults(dp DataProvider) {
	p := ""
	if c.keyPrefix != "" {
		p = c.keyPrefix + "_"
	}
	dp.SetDefault("maxRate", 10)
	dp.SetDefault("waitTimeout", p+"1m")
}

func (c *testLaneConfig) Set(dp DataProvider) (err error) {
	if c.MaxRate, err = dp.GetInt("maxRate"); err != nil {
		return err
	}
	if c.WaitTimeout, err = dp.GetString("waitTimeout"); err != nil {
		return err
	}
	return nil
}

type testCompositeConfig struct {
	Lane1       *testLaneConfig
	Lane2       *testLaneConfig
	Lane3       *testLaneConfig
	NilLaneCfg  *testLaneConfig
	NilCfg      Config
	EnforceHard bool
}

func (c *testCompositeConfig) SetProviderDefaults(dp DataProvider) {
	CallSetProviderDefaultsForFields(c, dp)
}

func (c *testCompositeConfig) Set(dp DataProvider) (err error) {
	if err = CallSetForFields(c, dp); err != nil {
		return
	}
	if c.EnforceHard, err = dp.GetBool("enforceHard"); err != nil {
		return
	}
	return nil
}

func TestCallHelpers(t *testing.T) {
	compositeConfigYAML := `
enforceHard: true
maxRate: 500
waitTimeout: "15s"
writeLane:
  maxRate: 50
  waitTimeout: "2m"
`
	cfg := &testCompositeConfig{
		Lane1: &testLaneConfig{},
		Lane2: &testLaneConfig{keyPrefix: "writeLane"},
		Lane3: &testLaneConfig{keyPrefix: "bulkLane"},
	}
	err := NewDefaultLoader("").LoadFromReader(bytes.NewReader([]byte(compositeConfigYAML)), DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Nil(t, cfg.NilLaneCfg)
	require.Nil(t, cfg.NilCfg)
	require.True(t, cfg.EnforceHard)
	require.Equal(t, 500, cfg.Lane1.MaxRate)
	require.Equal(t, "15s", cfg.Lane1.WaitTimeout)
	require.Equal(t, 50, cfg.Lane2.MaxRate)
	require.Equal(t, "2m", cfg.Lane2.WaitTimeout)
	require.Equal(t, 10, cfg.Lane3.MaxRate, "section is missing, default should be used")
	require.Equal(t, "bulkLane_1m", cfg.Lane3.WaitTimeout)
}

type testSideConfig struct {
	PollIntervalMs int
	Read           *testLaneConfig
	Write          *testLaneConfig

	keyPrefix string
}

func newTestSideConfig(prefix string) *testSideConfig {
	return &testSideConfig{
		Read:      &testLaneConfig{keyPrefix: "read"},
		Write:     &testLaneConfig{keyPrefix: "write"},
		keyPrefix: prefix,
	}
}

func (c *testSideConfig) KeyPrefix() string {
	return c.keyPrefix
}

func (c *testSideConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("pollIntervalMs", 50)
	CallSetProviderDefaultsForFields(c, dp)
}

func (c *testSideConfig) Set(dp DataProvider) error {
	var err error
	if c.PollIntervalMs, err = dp.GetInt("pollIntervalMs"); err != nil {
		return err
	}
	return CallSetForFields(c, dp)
}

type testRootConfig struct {
	Client *testSideConfig
	Server *testSideConfig
}

func (c *testRootConfig) SetProviderDefaults(dp DataProvider) {
	CallSetProviderDefaultsForFields(c, dp)
}

func (c *testRootConfig) Set(dp DataProvider) error {
	return CallSetForFields(c, dp)
}

func TestConfigurationsCanBeNested(t *testing.T) {
	nestedConfigYAML := `
client:
  read:
    maxRate: 42
    waitTimeout: "10s"
server:
  pollIntervalMs: 25
  read:
    maxRate: 42
    waitTimeout: "10s"
  write:
    maxRate: 17
    waitTimeout: "20s"
`

	cfg := &testRootConfig{Client: newTestSideConfig("client"), Server: newTestSideConfig("server")}
	err := NewDefaultLoader("").LoadFromReader(bytes.NewReader([]byte(nestedConfigYAML)), DataTypeYAML, cfg)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Client.PollIntervalMs)
	assert.Equal(t, 42, cfg.Client.Read.MaxRate)
	assert.Equal(t, "10s", cfg.Client.Read.WaitTimeout)
	assert.Equal(t, 10, cfg.Client.Write.MaxRate)
	assert.Equal(t, "write_1m", cfg.Client.Write.WaitTimeout)

	assert.Equal(t, 25, cfg.Server.PollIntervalMs)
	assert.Equal(t, 42, cfg.Server.Read.MaxRate)
	assert.Equal(t, "10s", cfg.Server.Read.WaitTimeout)
	assert.Equal(t, 17, cfg.Server.Write.MaxRate)
	assert.Equal(t, "20s", cfg.Server.Write.WaitTimeout)
}
