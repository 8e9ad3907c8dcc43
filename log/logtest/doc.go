/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides log.FieldLogger implementations for tests:
// a recorder that captures logged entries for later inspection
// and a simple synchronous JSON logger.
// The approach follows httptest (https://golang.org/pkg/net/http/httptest) from the Go standard library.
package logtest
