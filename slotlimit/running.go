/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"time"

	"github.com/rs/xid"
)

// runningSlot is a granted slot. It counts against the effective limit from the moment
// it's granted until it's pruned from the running set.
type runningSlot struct {
	id        xid.ID
	priority  Priority
	startedAt time.Time
	endedAt   time.Time // zero while the slot is held
}

// runningSet tracks granted slots. Its size is the number of slots in use.
type runningSet struct {
	slots []*runningSlot
}

func (rs *runningSet) add(s *runningSlot) {
	rs.slots = append(rs.slots, s)
}

func (rs *runningSet) size() int {
	return len(rs.slots)
}

// prune drops slots that no longer count against the limit: released ones whose completion
// aged out of the rate window, and stuck ones that were held longer than the threshold.
// The stuck ones are returned to the caller.
func (rs *runningSet) prune(now time.Time, endedRetention, stuckThreshold time.Duration) (stuck []*runningSlot) {
	kept := rs.slots[:0]
	for _, s := range rs.slots {
		switch {
		case !s.endedAt.IsZero():
			if now.Sub(s.endedAt) < endedRetention {
				kept = append(kept, s)
			}
		case now.Sub(s.startedAt) >= stuckThreshold:
			stuck = append(stuck, s)
		default:
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(rs.slots); i++ {
		rs.slots[i] = nil
	}
	rs.slots = kept
	return stuck
}
