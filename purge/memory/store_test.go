// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"testing"
	"time"

	"github.com/absmach/inflight/purge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	s := New()
	now := time.UnixMilli(1_700_000_000_000)

	assert.True(t, s.LastPurged("orders").IsZero())

	require.NoError(t, s.MarkPurged("orders", now))
	assert.Equal(t, now, s.LastPurged("orders"))

	require.NoError(t, s.MarkPurged("orders", now.Add(-time.Minute)))
	assert.Equal(t, now, s.LastPurged("orders"), "older purge must not move the cutoff back")

	require.NoError(t, s.MarkPurged("orders", now.Add(time.Minute)))
	assert.Equal(t, now.Add(time.Minute), s.LastPurged("orders"))

	require.NoError(t, s.MarkPurged("audit", now))
	assert.Equal(t, []purge.Record{
		{Destination: "audit", PurgedAt: now},
		{Destination: "orders", PurgedAt: now.Add(time.Minute)},
	}, s.List())

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.MarkPurged("orders", now.Add(time.Hour)), purge.ErrClosed)
	assert.Equal(t, now.Add(time.Minute), s.LastPurged("orders"))
}
