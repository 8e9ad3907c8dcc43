/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httplimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-limitkit/log"
	"github.com/acronis/go-limitkit/log/logtest"
	"github.com/acronis/go-limitkit/slotlimit"
)

func makeTestServerForSlotLimitingRoundTripper() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if code := r.URL.Query().Get("respCode"); code != "" {
			if retryAfter := r.URL.Query().Get("retryAfter"); retryAfter != "" {
				rw.Header().Set("Retry-After", retryAfter)
			}
			codeInt, err := strconv.Atoi(code)
			if err != nil {
				codeInt = http.StatusInternalServerError
			}
			rw.WriteHeader(codeInt)
			return
		}
		_, _ = rw.Write([]byte("ok"))
	}))
}

func TestNewSlotLimitingRoundTripper(t *testing.T) {
	limiter := slotlimit.MustNew(1)
	defer limiter.Close()

	tests := []struct {
		Name       string
		Delegate   http.RoundTripper
		Limiter    *slotlimit.SlotLimiter
		Opts       SlotLimitingRoundTripperOpts
		WantErrMsg string
	}{
		{
			Name:       "nil delegate",
			Limiter:    limiter,
			WantErrMsg: "delegate must not be nil",
		},
		{
			Name:       "nil limiter",
			Delegate:   http.DefaultTransport,
			WantErrMsg: "slot limiter must not be nil",
		},
		{
			Name:       "unknown priority",
			Delegate:   http.DefaultTransport,
			Limiter:    limiter,
			Opts:       SlotLimitingRoundTripperOpts{Priority: "urgent"},
			WantErrMsg: `unknown priority "urgent", should be one of [high normal low]`,
		},
		{
			Name:       "negative acquire timeout",
			Delegate:   http.DefaultTransport,
			Limiter:    limiter,
			Opts:       SlotLimitingRoundTripperOpts{AcquireTimeout: -1},
			WantErrMsg: "acquire timeout must not be negative",
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.Name, func(t *testing.T) {
			_, err := NewSlotLimitingRoundTripperWithOpts(tt.Delegate, tt.Limiter, tt.Opts)
			require.EqualError(t, err, tt.WantErrMsg)
		})
	}

	t.Run("defaults are filled in", func(t *testing.T) {
		rt, err := NewSlotLimitingRoundTripper(http.DefaultTransport, limiter)
		require.NoError(t, err)
		require.Equal(t, slotlimit.PriorityNormal, rt.Priority)
		require.Equal(t, DefaultSlotLimitingReductionDuration, rt.ReductionDuration)
		require.Equal(t, DefaultSlotLimitingMaxReductionDuration, rt.MaxReductionDuration)
	})
}

func TestSlotLimitingRoundTripper_RoundTrip(t *testing.T) {
	fastOpts := slotlimit.Opts{PollInterval: time.Millisecond * 5}

	server := makeTestServerForSlotLimitingRoundTripper()
	defer server.Close()

	t.Run("request is served, slot stays in the admission window", func(t *testing.T) {
		limiter := slotlimit.MustNewWithOpts(1, fastOpts)
		defer limiter.Close()

		rt, err := NewSlotLimitingRoundTripper(http.DefaultTransport, limiter)
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		// The first request should be completed immediately.
		respInfo := doGet(client, server.URL)
		require.NoError(t, respInfo.err)
		require.Equal(t, http.StatusOK, respInfo.resp.StatusCode)
		require.WithinDuration(t, respInfo.startedAt, respInfo.finishedAt, time.Millisecond*300)

		// The second request should wait until the first slot ages out of the one-second window.
		respInfo = doGet(client, server.URL)
		require.NoError(t, respInfo.err)
		require.Equal(t, http.StatusOK, respInfo.resp.StatusCode)
		require.WithinDuration(t, respInfo.startedAt.Add(time.Second), respInfo.finishedAt, time.Millisecond*300)
	})

	t.Run("error when no slot is acquired in time", func(t *testing.T) {
		limiter := slotlimit.MustNewWithOpts(1, fastOpts)
		defer limiter.Close()

		release, err := limiter.Acquire(context.Background()) // Occupy the only slot.
		require.NoError(t, err)
		defer release()

		rt, err := NewSlotLimitingRoundTripperWithOpts(http.DefaultTransport, limiter, SlotLimitingRoundTripperOpts{
			AcquireTimeout: time.Millisecond * 30,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		respInfo := doGet(client, server.URL)
		var waitErr *SlotLimitingWaitError
		require.ErrorAs(t, respInfo.err, &waitErr)
		var acquireTimeoutErr *slotlimit.AcquireTimeoutError
		require.ErrorAs(t, respInfo.err, &acquireTimeoutErr)
	})

	t.Run("limit is reduced on 429 with Retry-After", func(t *testing.T) {
		limiter := slotlimit.MustNewWithOpts(10, fastOpts)
		defer limiter.Close()

		logRecorder := logtest.NewRecorder()
		rt, err := NewSlotLimitingRoundTripperWithOpts(http.DefaultTransport, limiter, SlotLimitingRoundTripperOpts{
			Logger: logRecorder,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		respInfo := doGet(client, server.URL+"?respCode=429&retryAfter=60")
		require.NoError(t, respInfo.err)
		require.Equal(t, http.StatusTooManyRequests, respInfo.resp.StatusCode)
		require.Equal(t, 8, limiter.EffectiveLimit())

		entry, found := logRecorder.FindEntry("slot limit reduced on server push-back")
		require.True(t, found)
		require.Equal(t, log.LevelInfo, entry.Level)
		statusCodeField, found := entry.FindField("status_code")
		require.True(t, found)
		require.Equal(t, http.StatusTooManyRequests, int(statusCodeField.Int))
		durationField, found := entry.FindField("reduction_duration")
		require.True(t, found)
		require.Equal(t, time.Minute, time.Duration(durationField.Int))
	})

	t.Run("limit is reduced on 503 and restored after the reduction duration", func(t *testing.T) {
		limiter := slotlimit.MustNewWithOpts(10, fastOpts)
		defer limiter.Close()

		rt, err := NewSlotLimitingRoundTripperWithOpts(http.DefaultTransport, limiter, SlotLimitingRoundTripperOpts{
			ReductionDuration: time.Millisecond * 300,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		respInfo := doGet(client, server.URL+"?respCode=503")
		require.NoError(t, respInfo.err)
		require.Equal(t, http.StatusServiceUnavailable, respInfo.resp.StatusCode)
		require.Equal(t, 8, limiter.EffectiveLimit())

		time.Sleep(time.Millisecond * 800)
		require.Equal(t, 10, limiter.EffectiveLimit())
	})

	t.Run("Retry-After is capped by MaxReductionDuration", func(t *testing.T) {
		limiter := slotlimit.MustNewWithOpts(10, fastOpts)
		defer limiter.Close()

		logRecorder := logtest.NewRecorder()
		rt, err := NewSlotLimitingRoundTripperWithOpts(http.DefaultTransport, limiter, SlotLimitingRoundTripperOpts{
			MaxReductionDuration: time.Second * 30,
			Logger:               logRecorder,
		})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		respInfo := doGet(client, server.URL+"?respCode=429&retryAfter=600")
		require.NoError(t, respInfo.err)
		require.Equal(t, 8, limiter.EffectiveLimit())

		entry, found := logRecorder.FindEntry("slot limit reduced on server push-back")
		require.True(t, found)
		durationField, found := entry.FindField("reduction_duration")
		require.True(t, found)
		require.Equal(t, time.Second*30, time.Duration(durationField.Int))
	})
}
