/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"time"
)

// waiter is an acquirer waiting in one of the lanes for a slot.
type waiter struct {
	priority   Priority
	enqueuedAt time.Time

	// grantCh delivers the release func of the granted slot. It's buffered,
	// and the scheduler sends to it exactly once, so the send never blocks.
	grantCh chan ReleaseFunc

	// granted is set together with the send to grantCh under the limiter's mutex.
	// A cancelling acquirer checks it under the same mutex to resolve the race
	// between a grant and a timeout: the grant always wins.
	granted bool
}

// admissionQueues holds waiters in three FIFO lanes, one per priority.
type admissionQueues struct {
	lanes [3][]*waiter
}

func laneIndex(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

func (q *admissionQueues) enqueue(w *waiter) {
	i := laneIndex(w.priority)
	q.lanes[i] = append(q.lanes[i], w)
}

// dequeueNext returns the longest-waiting waiter from the most urgent non-empty lane,
// or nil when all lanes are empty. Lanes are strictly ordered: the high lane is always
// drained before the normal one, and the normal one before the low one, even if a steady
// stream of urgent waiters starves the rest.
func (q *admissionQueues) dequeueNext() *waiter {
	for i := range q.lanes {
		if len(q.lanes[i]) == 0 {
			continue
		}
		w := q.lanes[i][0]
		q.lanes[i][0] = nil
		q.lanes[i] = q.lanes[i][1:]
		return w
	}
	return nil
}

// remove excises the waiter from its lane and reports whether it was still there.
func (q *admissionQueues) remove(w *waiter) bool {
	i := laneIndex(w.priority)
	lane := q.lanes[i]
	for j := range lane {
		if lane[j] != w {
			continue
		}
		copy(lane[j:], lane[j+1:])
		lane[len(lane)-1] = nil
		q.lanes[i] = lane[:len(lane)-1]
		return true
	}
	return false
}

func (q *admissionQueues) size() int {
	total := 0
	for i := range q.lanes {
		total += len(q.lanes[i])
	}
	return total
}
