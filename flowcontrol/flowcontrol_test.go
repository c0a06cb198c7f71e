// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package flowcontrol

import (
	"context"
	"testing"
	"time"

	"github.com/absmach/inflight/config"
	"github.com/absmach/inflight/slot"
	"github.com/absmach/inflight/tracker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noPurges struct{}

func (noPurges) LastPurged(string) time.Time { return time.Time{} }

func newTracker(t *testing.T) *tracker.Tracker {
	t.Helper()
	tr, err := tracker.New(tracker.Config{MaxRedeliveryAttempts: 1}, slot.NewWorkers(), noPurges{})
	require.NoError(t, err)
	return tr
}

func TestAllowUnackedLimit(t *testing.T) {
	tr := newTracker(t)
	ch := uuid.New()
	tr.RegisterChannel(ch)

	g := New(config.FlowControlConfig{MaxUnackedPerChannel: 2}, tr)

	for i := 0; i < 2; i++ {
		res, err := g.Allow(ch)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		_, err = tr.IncrementUnacked(ch)
		require.NoError(t, err)
	}

	res, err := g.Allow(ch)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonUnackedLimit, res.Reason)
	assert.ErrorIs(t, g.Wait(context.Background(), ch), ErrUnackedLimit)

	_, err = tr.DecrementUnacked(ch)
	require.NoError(t, err)
	res, err = g.Allow(ch)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestAllowRateLimit(t *testing.T) {
	tr := newTracker(t)
	ch := uuid.New()
	tr.RegisterChannel(ch)

	g := New(config.FlowControlConfig{SendRate: 0.001, SendBurst: 2}, tr)

	for i := 0; i < 2; i++ {
		res, err := g.Allow(ch)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := g.Allow(ch)
	require.NoError(t, err)
	assert.Equal(t, Result{Reason: ReasonRateLimited}, res)

	// Limiters are per channel.
	other := uuid.New()
	tr.RegisterChannel(other)
	res, err = g.Allow(other)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	g.Remove(ch)
	res, err = g.Allow(ch)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "removed channel starts with a fresh burst")
}

func TestWaitHonorsContext(t *testing.T) {
	tr := newTracker(t)
	ch := uuid.New()
	tr.RegisterChannel(ch)

	g := New(config.FlowControlConfig{SendRate: 0.001, SendBurst: 1}, tr)
	require.NoError(t, g.Wait(context.Background(), ch))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Wait(ctx, ch))
}

func TestUnlimited(t *testing.T) {
	tr := newTracker(t)
	ch := uuid.New()
	tr.RegisterChannel(ch)

	g := New(config.FlowControlConfig{}, tr)
	for i := 0; i < 100; i++ {
		_, err := tr.IncrementUnacked(ch)
		require.NoError(t, err)
		res, err := g.Allow(ch)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	assert.NoError(t, g.Wait(context.Background(), ch))
}

func TestUnregisteredChannel(t *testing.T) {
	g := New(config.FlowControlConfig{MaxUnackedPerChannel: 1}, newTracker(t))

	_, err := g.Allow(uuid.New())
	assert.ErrorIs(t, err, tracker.ErrChannelNotRegistered)
	assert.ErrorIs(t, g.Wait(context.Background(), uuid.New()), tracker.ErrChannelNotRegistered)
}
