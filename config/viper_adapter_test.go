/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestViperAdapterSetFromReader(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		va := NewViperAdapter()
		err := va.SetFromReader(bytes.NewBufferString(testLimitsConfigYAML), DataTypeYAML)
		require.NoError(t, err)

		maxRate, err := va.GetInt("limits.maxRatePerSecond")
		require.NoError(t, err)
		require.Equal(t, 100, maxRate)

		readLane, err := va.GetString("limits.lanes.read")
		require.NoError(t, err)
		require.Equal(t, "high", readLane)
	})

	t.Run("json", func(t *testing.T) {
		va := NewViperAdapter()
		err := va.SetFromReader(bytes.NewBufferString(testLimitsConfigJSON), DataTypeJSON)
		require.NoError(t, err)

		maxRate, err := va.GetInt("limits.maxRatePerSecond")
		require.NoError(t, err)
		require.Equal(t, 100, maxRate)

		readLane, err := va.GetString("limits.lanes.read")
		require.NoError(t, err)
		require.Equal(t, "high", readLane)
	})
}

func TestViperAdapterUseEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("LIMITKIT_LIMITS_MAXRATEPERSECOND", "500"))
	require.NoError(t, os.Setenv("LIMITKIT_LIMITS_LANES_READ", "normal"))
	defer func() {
		require.NoError(t, os.Unsetenv("LIMITKIT_LIMITS_MAXRATEPERSECOND"))
		require.NoError(t, os.Unsetenv("LIMITKIT_LIMITS_LANES_READ"))
	}()

	va := NewViperAdapter()
	va.UseEnvVars("limitkit")

	err := va.SetFromReader(bytes.NewBufferString(testLimitsConfigYAML), DataTypeYAML)
	require.NoError(t, err)

	maxRate, err := va.GetInt("limits.maxRatePerSecond")
	require.NoError(t, err)
	require.Equal(t, 500, maxRate, "env var should override the value from the config data")

	readLane, err := va.GetString("limits.lanes.read")
	require.NoError(t, err)
	require.Equal(t, "normal", readLane)
}

func TestViperAdapterGetInt(t *testing.T) {
	va := NewViperAdapter()
	const key = "limits.maxRatePerSecond"

	va.Set(key, "not a number")
	_, err := va.GetInt(key)
	require.Error(t, err)
	require.Contains(t, err.Error(), key+": ", "error should be prefixed with the key")

	va.Set(key, 42)
	got, err := va.GetInt(key)
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestViperAdapterGetStringFromSet(t *testing.T) {
	va := NewViperAdapter()
	const key = "limits.priority"
	lanes := []string{"high", "normal", "low"}

	t.Run("attempt to get invalid string", func(t *testing.T) {
		invalidVals := []interface{}{true, []string{"high", "low"}}
		for _, invVal := range invalidVals {
			va.Set(key, invVal)
			_, err := va.GetStringFromSet(key, lanes, false)
			require.Error(t, err, "%v is invalid string, error should be", invVal)
		}
	})

	t.Run("attempt to get string not from set", func(t *testing.T) {
		var err error

		va.Set(key, "urgent")
		_, err = va.GetStringFromSet(key, lanes, false)
		require.Error(t, err)

		va.Set(key, "HIGH")
		_, err = va.GetStringFromSet(key, lanes, false)
		require.Error(t, err)
	})

	t.Run("get string from set", func(t *testing.T) {
		var err error
		var got string

		va.Set(key, "high")
		got, err = va.GetStringFromSet(key, lanes, false)
		require.NoError(t, err)
		require.Equal(t, "high", got)

		va.Set(key, "HIGH")
		got, err = va.GetStringFromSet(key, lanes, true)
		require.NoError(t, err)
		require.Equal(t, "HIGH", got)
	})
}

func TestViperAdapterGetDuration(t *testing.T) {
	va := NewViperAdapter()
	const key = "limits.acquireTimeout"

	t.Run("attempt to get invalid durations", func(t *testing.T) {
		invalidVals := []interface{}{"", "not duration", "s", "10foo", true, []int{1, 2}}
		for _, invVal := range invalidVals {
			va.Set(key, invVal)
			_, err := va.GetDuration(key)
			require.Error(t, err, "%v is invalid duration, error should be", invVal)
		}
	})

	t.Run("get durations", func(t *testing.T) {
		testData := map[string]time.Duration{
			"50ms":   time.Millisecond * 50,
			"30s":    time.Second * 30,
			"1h2m3s": time.Hour*1 + time.Minute*2 + time.Second*3,
		}
		for val, want := range testData {
			va.Set(key, val)
			got, err := va.GetDuration(key)
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
	})

	t.Run("missing key gives zero duration", func(t *testing.T) {
		got, err := va.GetDuration("limits.missing")
		require.NoError(t, err)
		require.Equal(t, time.Duration(0), got)
	})
}

func TestViperAdapterGetBytesCount(t *testing.T) {
	va := NewViperAdapter()
	const key = "log.file.rotation.maxSize"

	t.Run("attempt to get invalid bytes count", func(t *testing.T) {
		invalidVals := []interface{}{true, "not bytes", "1s", -100}
		for _, invVal := range invalidVals {
			va.Set(key, invVal)
			_, err := va.GetBytesCount(key)
			require.Error(t, err, "%v is invalid bytes count, error should be", invVal)
		}
	})

	t.Run("get bytes count", func(t *testing.T) {
		testData := map[interface{}]BytesCount{
			1024:   BytesCount(1024),
			"1K":   BytesCount(1024),
			"2M":   BytesCount(1024 * 1024 * 2),
			"4Gi":  BytesCount(1024 * 1024 * 1024 * 4), // k8s format
			"100B": BytesCount(100),
		}
		for val, want := range testData {
			va.Set(key, val)
			got, err := va.GetBytesCount(key)
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
	})

	t.Run("missing key gives zero bytes count", func(t *testing.T) {
		got, err := va.GetBytesCount("log.file.rotation.missing")
		require.NoError(t, err)
		require.Equal(t, BytesCount(0), got)
	})
}

const (
	cfgKeyDumpMaxRate        = "limits.maxRatePerSecond"
	cfgKeyDumpAcquireTimeout = "limits.acquireTimeout"
	cfgKeyDumpReadLane       = "limits.lanes.read"
	cfgKeyDumpWriteLane      = "limits.lanes.write"
)

type limitsConfigForDumpTest struct {
	Limits struct {
		MaxRatePerSecond int
		AcquireTimeout   string
		Lanes            struct {
			Read  string
			Write string
		}
	}
}

func (c *limitsConfigForDumpTest) UpdateProviderValues(dp DataProvider) {
	dp.Set(cfgKeyDumpMaxRate, c.Limits.MaxRatePerSecond)
	dp.Set(cfgKeyDumpAcquireTimeout, c.Limits.AcquireTimeout)
	dp.Set(cfgKeyDumpReadLane, c.Limits.Lanes.Read)
	dp.Set(cfgKeyDumpWriteLane, c.Limits.Lanes.Write)
}

func (c *limitsConfigForDumpTest) SetProviderDefaults(dp DataProvider) {}

func (c *limitsConfigForDumpTest) Set(dp DataProvider) error {
	var err error
	if c.Limits.MaxRatePerSecond, err = dp.GetInt(cfgKeyDumpMaxRate); err != nil {
		return err
	}
	if c.Limits.AcquireTimeout, err = dp.GetString(cfgKeyDumpAcquireTimeout); err != nil {
		return err
	}
	if c.Limits.Lanes.Read, err = dp.GetString(cfgKeyDumpReadLane); err != nil {
		return err
	}
	if c.Limits.Lanes.Write, err = dp.GetString(cfgKeyDumpWriteLane); err != nil {
		return err
	}
	return nil
}

func TestUpdateAndDumpDataProviderToFile(t *testing.T) {
	tests := []struct {
		DataType   DataType
		ConfigText string
	}{
		{DataType: DataTypeJSON, ConfigText: testLimitsConfigJSON},
		{DataType: DataTypeYAML, ConfigText: testLimitsConfigYAML},
	}

	for i := range tests {
		test := tests[i]
		t.Run(string(test.DataType), func(t *testing.T) {
			cfgInitial := limitsConfigForDumpTest{}
			initialLoader := NewLoader(NewViperAdapter())
			err := initialLoader.LoadFromReader(bytes.NewBufferString(test.ConfigText), test.DataType, &cfgInitial)
			require.NoError(t, err)

			cfgChanged := cfgInitial
			cfgChanged.Limits.MaxRatePerSecond = 250
			cfgChanged.Limits.AcquireTimeout = "1m"
			cfgChanged.Limits.Lanes.Read = "normal"
			cfgChanged.Limits.Lanes.Write = "normal"
			dataProvider := initialLoader.DataProvider
			UpdateDataProvider(dataProvider, &cfgChanged)

			fname := path.Join(t.TempDir(), fmt.Sprintf("config.%s", test.DataType))
			err = dataProvider.SaveToFile(fname, test.DataType)
			require.NoError(t, err)

			cfgFromDump := limitsConfigForDumpTest{}
			dumpLoader := NewLoader(NewViperAdapter())

			err = dumpLoader.LoadFromFile(fname, test.DataType, &cfgFromDump)
			require.NoError(t, err)
			require.Equal(t, cfgChanged, cfgFromDump)
			require.Equal(t, 250, cfgFromDump.Limits.MaxRatePerSecond)
		})
	}
}
