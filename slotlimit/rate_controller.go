/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"time"
)

// rateController owns the configured maximum admission rate and the currently effective one.
// All its methods must be called with the limiter's mutex held.
type rateController struct {
	maxRate         int
	reductionAmount int

	current         int
	reductionActive bool
	lastReductionAt time.Time

	restoreTimer *time.Timer
	restoreEpoch int
}

func newRateController(maxRate, reductionPercentage int) *rateController {
	amount := maxRate * reductionPercentage / 100
	if amount < 1 {
		amount = 1
	}
	return &rateController{maxRate: maxRate, reductionAmount: amount, current: maxRate}
}

// withinDebounce reports whether a reduction was applied less than the debounce period ago.
func (rc *rateController) withinDebounce(now time.Time) bool {
	return !rc.lastReductionAt.IsZero() && now.Sub(rc.lastReductionAt) < reductionDebouncePeriod
}

// reduce lowers the effective limit by the reduction amount (never below 1) and arms a timer
// that will call restore after d. A previously armed timer is replaced, not extended.
// Reductions accumulate: each call outside the debounce period lowers the limit further.
func (rc *rateController) reduce(d time.Duration, now time.Time, restore func(epoch int)) {
	if rc.restoreTimer != nil {
		rc.restoreTimer.Stop()
	}
	rc.current -= rc.reductionAmount
	if rc.current < 1 {
		rc.current = 1
	}
	rc.reductionActive = true
	rc.lastReductionAt = now
	rc.restoreEpoch++
	epoch := rc.restoreEpoch
	rc.restoreTimer = time.AfterFunc(d, func() { restore(epoch) })
}

// restore resets the effective limit back to the maximum rate and reports whether it did so.
// The epoch check discards a timer that lost the race with Stop and fired for a reduction
// that has already been replaced by a newer one.
func (rc *rateController) restore(epoch int) bool {
	if epoch != rc.restoreEpoch || !rc.reductionActive {
		return false
	}
	rc.current = rc.maxRate
	rc.reductionActive = false
	rc.restoreTimer = nil
	return true
}

func (rc *rateController) stopRestoreTimer() {
	if rc.restoreTimer != nil {
		rc.restoreTimer.Stop()
		rc.restoreTimer = nil
	}
}
