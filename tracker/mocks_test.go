// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/inflight/slot"
	"github.com/stretchr/testify/require"
)

// mockPurges implements PurgeInfo.
type mockPurges struct {
	mu     sync.Mutex
	purged map[string]time.Time
}

func newMockPurges() *mockPurges {
	return &mockPurges{purged: make(map[string]time.Time)}
}

func (m *mockPurges) LastPurged(destination string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purged[destination]
}

func (m *mockPurges) set(destination string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged[destination] = at
}

// mockMetrics implements Metrics.
type mockMetrics struct {
	mu           sync.Mutex
	ackLatencies []time.Duration
	rejections   map[string]int
	deadLettered int
	completed    int
	tracked      atomic.Int64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{rejections: make(map[string]int)}
}

func (m *mockMetrics) RecordAckLatency(_ string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ackLatencies = append(m.ackLatencies, latency)
}

func (m *mockMetrics) RecordDeliveryRejected(_, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[reason]++
}

func (m *mockMetrics) RecordDeadLettered(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLettered++
}

func (m *mockMetrics) RecordSlotCompleted(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
}

func (m *mockMetrics) RecordTracked(delta int64) {
	m.tracked.Add(delta)
}

// mockNotifier implements Notifier.
type mockNotifier struct {
	mu     sync.Mutex
	events []any
}

func (m *mockNotifier) Notify(_ context.Context, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockNotifier) all() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.events...)
}

// completions counts slot completion callbacks per slot.
type completions struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *completions) CheckForSlotCompletionAndResend(s *slot.Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[s.Key()]++
}

func (c *completions) count(s *slot.Slot) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[s.Key()]
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	tracker  *Tracker
	purges   *mockPurges
	metrics  *mockMetrics
	notifier *mockNotifier
	done     *completions
	clock    *clock
}

func newFixture(t *testing.T, maxRedelivery int) *fixture {
	t.Helper()

	f := &fixture{
		purges:   newMockPurges(),
		metrics:  newMockMetrics(),
		notifier: &mockNotifier{},
		done:     &completions{counts: make(map[string]int)},
		clock:    &clock{now: time.UnixMilli(1_700_000_000_000)},
	}

	workers := slot.NewWorkers()
	workers.Register("orders", f.done)

	tr, err := New(Config{MaxRedeliveryAttempts: maxRedelivery}, workers, f.purges,
		WithMetrics(f.metrics),
		WithNotifier(f.notifier),
		WithClock(f.clock.Now),
	)
	require.NoError(t, err)
	f.tracker = tr
	return f
}

func (f *fixture) buffer(t *testing.T, s *slot.Slot, id int64) {
	t.Helper()
	require.True(t, f.tracker.BufferIfAbsent(s, Metadata{
		MessageID: id,
		ArrivalAt: f.clock.Now(),
	}))
}
