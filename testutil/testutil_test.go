/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

// MockT captures test failures instead of reporting them,
// which lets the assertion helpers themselves be tested.
type MockT struct {
	Failed bool
	Format string
	Args   []interface{}
}

func (t *MockT) Errorf(format string, args ...interface{}) {
	t.Format, t.Args = format, args
}

func (t *MockT) FailNow() {
	t.Failed = true
}
