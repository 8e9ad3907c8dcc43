/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider implementation backed by the viper library.
type ViperAdapter struct {
	v *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars enables reading configuration parameters from environment variables.
// Only variables starting with the upper-cased prefix are considered,
// and dots in keys are mapped to underscores
// (e.g. with the "app" prefix, the "log.level" key is read from APP_LOG_LEVEL).
func (a *ViperAdapter) UseEnvVars(prefix string) {
	a.v.AutomaticEnv()
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.SetEnvPrefix(prefix)
}

// SetFromFile reads configuration data of the given format from a file.
func (a *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	a.v.SetConfigType(string(dataType))
	a.v.SetConfigFile(path)
	return a.v.ReadInConfig()
}

// SetFromReader reads configuration data of the given format from a reader.
func (a *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	a.v.SetConfigType(string(dataType))
	return a.v.ReadConfig(reader)
}

// SaveToFile writes the current configuration data to a file in the given format.
func (a *ViperAdapter) SaveToFile(path string, dataType DataType) error {
	a.v.SetConfigType(string(dataType))
	return a.v.WriteConfigAs(path)
}

// Set sets the value for the key, overriding values from files and env vars.
func (a *ViperAdapter) Set(key string, value interface{}) {
	a.v.Set(key, value)
}

// SetDefault sets the default value for the key. It's used only when
// no value for the key is provided in the config data or env vars.
func (a *ViperAdapter) SetDefault(key string, value interface{}) {
	a.v.SetDefault(key, value)
}

// Get returns the raw value for the key.
func (a *ViperAdapter) Get(key string) interface{} {
	return a.v.Get(key)
}

// GetBool returns the value for the key as a bool.
func (a *ViperAdapter) GetBool(key string) (res bool, err error) {
	res, err = cast.ToBoolE(a.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetInt returns the value for the key as an int.
func (a *ViperAdapter) GetInt(key string) (res int, err error) {
	res, err = cast.ToIntE(a.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetString returns the value for the key as a string.
func (a *ViperAdapter) GetString(key string) (res string, err error) {
	res, err = cast.ToStringE(a.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetStringFromSet returns the value for the key as a string
// and checks that it's one of the allowed values.
func (a *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := a.GetString(key)
	if err != nil {
		return "", WrapKeyErrIfNeeded(key, err)
	}
	for _, s := range set {
		if (ignoreCase && strings.EqualFold(str, s)) || str == s {
			return str, nil
		}
	}
	return "", WrapKeyErrIfNeeded(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetDuration returns the value for the key as a time duration.
func (a *ViperAdapter) GetDuration(key string) (res time.Duration, err error) {
	val := a.Get(key)
	if val == nil {
		return
	}
	res, err = cast.ToDurationE(val)
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetBytesCount returns the value for the key as a number of bytes.
// Both plain integers and human-readable strings (e.g. "100MB", "64Mi") are accepted.
func (a *ViperAdapter) GetBytesCount(key string) (BytesCount, error) {
	val := a.Get(key)
	if val == nil {
		return 0, nil
	}
	switch v := val.(type) {
	case string:
		num, err := bytefmt.ToBytes(v)
		if err != nil {
			return 0, WrapKeyErr(key, fmt.Errorf("invalid bytes format: %s", v))
		}
		return BytesCount(num), nil

	case int, int8, int16, int32, int64:
		num := cast.ToInt64(val)
		if num < 0 {
			return 0, WrapKeyErr(key, fmt.Errorf("negative value is not allowed: %d", num))
		}
		return BytesCount(num), nil

	case uint, uint8, uint16, uint32, uint64:
		return BytesCount(cast.ToUint64(val)), nil

	case float32, float64:
		return BytesCount(uint64(cast.ToFloat64(val))), nil

	case BytesCount:
		return v, nil

	default:
		return 0, WrapKeyErr(key, fmt.Errorf("unsupported type for BytesCount: %T", val))
	}
}

// UnmarshalKey decodes the subtree under the key into a struct.
func (a *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	options := make([]viper.DecoderConfigOption, len(opts))
	for i, opt := range opts {
		options[i] = viper.DecoderConfigOption(opt)
	}
	return WrapKeyErrIfNeeded(key, a.v.UnmarshalKey(key, rawVal, options...))
}

// WrapKeyErr annotates the error with the key under which it occurred.
func (a *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}
