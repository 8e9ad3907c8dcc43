/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httplimit provides HTTP adapters for the admission slot limiter:
// a server-side middleware that gates request handling through slotlimit.SlotLimiter
// and client-side round trippers that acquire slots, throttle QPS, and retry
// outgoing requests honoring Retry-After hints from the server.
package httplimit
