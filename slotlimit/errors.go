/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned when an operation is attempted on a closed limiter.
// Waiting acquirers are failed with it when the limiter is closed under them.
var ErrClosed = errors.New("slot limiter is closed")

// AcquireTimeoutError is returned when a slot was not granted within the acquire timeout.
type AcquireTimeoutError struct {
	Priority Priority
	Timeout  time.Duration
}

func (e *AcquireTimeoutError) Error() string {
	return fmt.Sprintf("slot was not acquired within %s (%s priority)", e.Timeout, e.Priority)
}
