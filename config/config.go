/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import "reflect"

// Config is a common interface for configuration objects that may be loaded by Loader.
// SetProviderDefaults is always called before Set, so defaults registered by the former
// are visible to the latter.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider may be implemented by a Config to state that all its parameters
// live under the returned key prefix in the configuration data.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// dataProviderForConfig wraps the data provider with the config's key prefix if it has one.
func dataProviderForConfig(dp DataProvider, cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}

// configFields returns all exported, initialized (non-nil) fields of the passed
// struct pointer that implement the Config interface.
func configFields(obj interface{}) []Config {
	el := reflect.ValueOf(obj).Elem()
	var res []Config
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		v := el.Field(i).Interface()
		if reflect.ValueOf(v).Kind() == reflect.Ptr && reflect.ValueOf(v).IsNil() {
			continue
		}
		if c, ok := v.(Config); ok {
			res = append(res, c)
		}
	}
	return res
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults on every exported,
// initialized field of the passed object that implements the Config interface.
// It allows composite configuration objects to delegate to their sections.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	for _, c := range configFields(obj) {
		c.SetProviderDefaults(dataProviderForConfig(dp, c))
	}
}

// CallSetForFields calls Set on every exported, initialized field of the passed object
// that implements the Config interface and returns the first error encountered.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	for _, c := range configFields(obj) {
		if err := c.Set(dataProviderForConfig(dp, c)); err != nil {
			return err
		}
	}
	return nil
}
