/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"strings"
	"time"
)

// KeyPrefixedDataProvider is a DataProvider decorator that prepends
// the configured prefix to every key before delegating the call.
// It allows configuration objects to address their parameters with short keys
// while the parameters live in a nested section of the config data.
type KeyPrefixedDataProvider struct {
	base      DataProvider
	keyPrefix string
}

var _ DataProvider = (*KeyPrefixedDataProvider)(nil)

// NewKeyPrefixedDataProvider creates a new KeyPrefixedDataProvider.
func NewKeyPrefixedDataProvider(base DataProvider, keyPrefix string) *KeyPrefixedDataProvider {
	return &KeyPrefixedDataProvider{base: base, keyPrefix: keyPrefix}
}

func (p *KeyPrefixedDataProvider) fullKey(key string) string {
	return strings.Trim(p.keyPrefix+"."+key, ".")
}

// UseEnvVars enables reading configuration parameters from environment variables.
func (p *KeyPrefixedDataProvider) UseEnvVars(prefix string) {
	p.base.UseEnvVars(prefix)
}

// SetFromFile reads configuration data of the given format from a file.
func (p *KeyPrefixedDataProvider) SetFromFile(path string, dataType DataType) error {
	return p.base.SetFromFile(path, dataType)
}

// SetFromReader reads configuration data of the given format from a reader.
func (p *KeyPrefixedDataProvider) SetFromReader(reader io.Reader, dataType DataType) error {
	return p.base.SetFromReader(reader, dataType)
}

// SaveToFile writes the current configuration data to a file in the given format.
func (p *KeyPrefixedDataProvider) SaveToFile(path string, dataType DataType) error {
	return p.base.SaveToFile(path, dataType)
}

// Set sets the value for the prefixed key, overriding values from files and env vars.
func (p *KeyPrefixedDataProvider) Set(key string, value interface{}) {
	p.base.Set(p.fullKey(key), value)
}

// SetDefault sets the default value for the prefixed key.
func (p *KeyPrefixedDataProvider) SetDefault(key string, value interface{}) {
	p.base.SetDefault(p.fullKey(key), value)
}

// Get returns the raw value for the prefixed key.
func (p *KeyPrefixedDataProvider) Get(key string) interface{} {
	return p.base.Get(p.fullKey(key))
}

// GetBool returns the value for the prefixed key as a bool.
func (p *KeyPrefixedDataProvider) GetBool(key string) (bool, error) {
	return p.base.GetBool(p.fullKey(key))
}

// GetInt returns the value for the prefixed key as an int.
func (p *KeyPrefixedDataProvider) GetInt(key string) (int, error) {
	return p.base.GetInt(p.fullKey(key))
}

// GetString returns the value for the prefixed key as a string.
func (p *KeyPrefixedDataProvider) GetString(key string) (string, error) {
	return p.base.GetString(p.fullKey(key))
}

// GetStringFromSet returns the value for the prefixed key as a string
// and checks that it's one of the allowed values.
func (p *KeyPrefixedDataProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return p.base.GetStringFromSet(p.fullKey(key), set, ignoreCase)
}

// GetDuration returns the value for the prefixed key as a time duration.
func (p *KeyPrefixedDataProvider) GetDuration(key string) (time.Duration, error) {
	return p.base.GetDuration(p.fullKey(key))
}

// GetBytesCount returns the value for the prefixed key as a number of bytes.
func (p *KeyPrefixedDataProvider) GetBytesCount(key string) (BytesCount, error) {
	return p.base.GetBytesCount(p.fullKey(key))
}

// UnmarshalKey decodes the subtree under the prefixed key into a struct.
func (p *KeyPrefixedDataProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return p.base.UnmarshalKey(p.fullKey(key), rawVal, opts...)
}

// WrapKeyErr annotates the error with the prefixed key under which it occurred.
func (p *KeyPrefixedDataProvider) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(p.fullKey(key), err)
}
