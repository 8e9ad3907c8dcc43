/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"time"

	"github.com/rs/xid"

	"github.com/acronis/go-limitkit/log"
)

// wake signals the scheduling goroutine that a new waiter was enqueued.
// The channel is buffered, so a signal is never lost: the goroutine either sleeps
// on the channel or will find the buffered signal right after the current drain.
func (l *SlotLimiter) wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// run is the scheduling loop, one persistent goroutine per limiter. It sleeps until
// a waiter is enqueued, drains the lanes, and goes back to sleep. It exits only
// when the limiter is closed.
func (l *SlotLimiter) run() {
	defer close(l.doneCh)
	for {
		select {
		case <-l.stopCh:
			return
		case <-l.wakeCh:
		}
		l.drainQueues()
	}
}

// drainQueues admits waiters until the lanes are empty. When all slots are busy,
// the capacity is re-checked every poll interval: slots free up only with the passage
// of time (released slots age out of the rate window, stuck slots hit the threshold,
// a reduced limit is restored), so there is no event to subscribe to.
func (l *SlotLimiter) drainQueues() {
	for {
		granted, pending := l.schedulePass()
		if pending == 0 {
			return
		}
		if granted > 0 {
			continue
		}
		select {
		case <-l.stopCh:
			return
		case <-time.After(l.pollInterval):
		}
	}
}

// schedulePass performs one scheduling pass: prunes the running set, computes the available
// capacity, and admits that many waiters in priority order. It reports how many waiters
// were admitted and how many are still waiting.
//
// A panic, e.g. from a user-provided metrics collector, must not kill the scheduling
// goroutine: it's recovered and logged, and the drain goes on.
func (l *SlotLimiter) schedulePass() (granted, pending int) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("panic during admission scheduling", log.Any("panic", p))
			pending = 1 // make the drain go on, the next pass will recompute the real demand
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, 0
	}

	now := time.Now()
	l.pruneRunning(now)

	available := l.rate.current - l.running.size()
	for available > 0 {
		w := l.queues.dequeueNext()
		if w == nil {
			break
		}
		l.grant(w, now)
		granted++
		available--
	}
	return granted, l.queues.size()
}

// pruneRunning removes ended slots that aged out of the rate window and reclaims slots
// that were never released within the stuck slot threshold.
func (l *SlotLimiter) pruneRunning(now time.Time) {
	for _, s := range l.running.prune(now, endedSlotRetentionPeriod, l.stuckSlotThreshold) {
		l.logger.Warn("slot was acquired but never released, reclaiming it",
			log.String("slot_id", s.id.String()),
			log.String("priority", string(s.priority)),
			log.Duration("age", now.Sub(s.startedAt)))
		l.metrics.IncReclaimedSlots(s.priority)
	}
}

// grant admits the waiter: the slot starts counting against the limit right away,
// and the release func is delivered over the waiter's buffered channel.
func (l *SlotLimiter) grant(w *waiter, now time.Time) {
	s := &runningSlot{id: xid.New(), priority: w.priority, startedAt: now}
	l.running.add(s)
	w.granted = true
	w.grantCh <- l.newReleaseFunc(s)
	l.metrics.IncGrantedSlots(w.priority)
	l.metrics.ObserveAcquireWait(w.priority, now.Sub(w.enqueuedAt))
}
