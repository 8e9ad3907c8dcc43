/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides in-memory rate limiting algorithms keyed by an arbitrary
// string (a client id, a tenant, a remote address).
//
// Two algorithms are implemented:
//   - leaky bucket, a GCRA variant with burst support;
//   - sliding window.
//
// Both track a bounded number of keys, the least recently used keys are evicted first.
package ratelimit
