/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil provides utilities that make testing easier.
package testutil

type tHelper interface {
	Helper()
}
