/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package slotlimit provides an in-process admission-control limiter with priority lanes
// and temporary, debounced reduction of the effective limit.
package slotlimit
