/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-limitkit/log"
)

func TestRecorder(t *testing.T) {
	recorder := NewRecorder()
	recorder.Warn("queue saturated", log.Int("queued", 128), log.String("lane", "batch"))
	recorder.Info("slot released")

	require.Len(t, recorder.Entries(), 2)

	_, found := recorder.FindEntry("never logged")
	require.False(t, found)

	entry, found := recorder.FindEntry("queue saturated")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, entry.Level)
	require.Equal(t, "queue saturated", entry.Text)

	queuedField, found := entry.FindField("queued")
	require.True(t, found)
	require.Equal(t, 128, int(queuedField.Int))

	laneField, found := entry.FindField("lane")
	require.True(t, found)
	require.Equal(t, "batch", string(laneField.Bytes))

	_, found = entry.FindField("missing")
	require.False(t, found)

	warnEntries := recorder.FindAllEntriesByFilter(func(e RecordedEntry) bool {
		return e.Level == log.LevelWarn
	})
	require.Len(t, warnEntries, 1)

	recorder.With(log.String("component", "scheduler")).Info("pass finished")
	entry, found = recorder.FindEntry("pass finished")
	require.True(t, found)
	componentField, found := entry.FindField("component")
	require.True(t, found)
	require.Equal(t, "scheduler", string(componentField.Bytes))

	recorder.Reset()
	require.Empty(t, recorder.Entries())
}
