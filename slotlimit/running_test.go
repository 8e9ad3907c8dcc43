/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package slotlimit

import (
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"
)

func TestRunningSetPrune(t *testing.T) {
	const (
		retention      = time.Second
		stuckThreshold = time.Minute
	)

	now := time.Now()

	held := &runningSlot{id: xid.New(), priority: PriorityNormal, startedAt: now.Add(-time.Second)}
	justEnded := &runningSlot{
		id: xid.New(), priority: PriorityNormal,
		startedAt: now.Add(-time.Second), endedAt: now.Add(-retention / 2),
	}
	agedOut := &runningSlot{
		id: xid.New(), priority: PriorityHigh,
		startedAt: now.Add(-3 * time.Second), endedAt: now.Add(-retention - time.Millisecond),
	}
	stuck := &runningSlot{id: xid.New(), priority: PriorityLow, startedAt: now.Add(-stuckThreshold - time.Second)}

	var rs runningSet
	rs.add(held)
	rs.add(justEnded)
	rs.add(agedOut)
	rs.add(stuck)
	require.Equal(t, 4, rs.size())

	gotStuck := rs.prune(now, retention, stuckThreshold)

	require.Equal(t, []*runningSlot{stuck}, gotStuck)
	require.Equal(t, []*runningSlot{held, justEnded}, rs.slots,
		"the held slot and the recently ended one should keep counting against the limit")
}

func TestRunningSetPruneKeepsEndedUntilRetention(t *testing.T) {
	now := time.Now()
	s := &runningSlot{id: xid.New(), priority: PriorityNormal, startedAt: now, endedAt: now}

	var rs runningSet
	rs.add(s)

	require.Empty(t, rs.prune(now.Add(time.Second-time.Millisecond), time.Second, time.Minute))
	require.Equal(t, 1, rs.size())

	require.Empty(t, rs.prune(now.Add(time.Second), time.Second, time.Minute))
	require.Equal(t, 0, rs.size(), "the ended slot should be dropped as soon as its completion ages out")
}
