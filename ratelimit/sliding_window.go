/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// SlidingWindowLimiter implements the sliding window rate limiting algorithm.
type SlidingWindowLimiter struct {
	maxRate       Rate
	limiterForKey func(key string) *slidingwindow.Limiter
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// maxKeys bounds the number of tracked keys. When maxKeys is 0, all keys share a single window.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	if maxRate.Count <= 0 || maxRate.Duration <= 0 {
		return nil, fmt.Errorf("max rate should be positive, got %q", maxRate)
	}
	if maxKeys < 0 {
		return nil, fmt.Errorf("max keys should not be negative, got %d", maxKeys)
	}

	newWindow := func() *slidingwindow.Limiter {
		lim, _ := slidingwindow.NewLimiter(
			maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
				return slidingwindow.NewLocalWindow()
			})
		return lim
	}

	if maxKeys == 0 {
		lim := newWindow()
		return &SlidingWindowLimiter{
			maxRate:       maxRate,
			limiterForKey: func(string) *slidingwindow.Limiter { return lim },
		}, nil
	}

	store := newKeyStore[*slidingwindow.Limiter](maxKeys)
	return &SlidingWindowLimiter{
		maxRate: maxRate,
		limiterForKey: func(key string) *slidingwindow.Limiter {
			lim, _ := store.getOrAdd(key, newWindow)
			return lim
		},
	}, nil
}

// Allow reports whether an event for the given key fits into the rate limit.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if l.limiterForKey(key).Allow() {
		return true, 0, nil
	}
	now := time.Now()
	retryAfter = now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now)
	return false, retryAfter, nil
}
