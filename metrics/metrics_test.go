// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := New(provider)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordDeliveryRejected("orders", "expired")
	m.RecordDeliveryRejected("orders", "expired")
	m.RecordDeliveryRejected("orders", "purged")
	m.RecordDeadLettered("orders")
	m.RecordSlotCompleted("orders")
	m.RecordTracked(3)
	m.RecordTracked(-1)

	got := collect(t, reader)
	assert.Equal(t, int64(3), sumOf(t, got["inflight.deliveries.rejected.total"]))
	assert.Equal(t, int64(1), sumOf(t, got["inflight.messages.dead_lettered.total"]))
	assert.Equal(t, int64(1), sumOf(t, got["inflight.slots.completed.total"]))
	assert.Equal(t, int64(2), sumOf(t, got["inflight.messages.tracked"]))

	rejected := got["inflight.deliveries.rejected.total"].Data.(metricdata.Sum[int64])
	byReason := make(map[string]int64)
	for _, dp := range rejected.DataPoints {
		reason, ok := dp.Attributes.Value(attribute.Key("reason"))
		require.True(t, ok)
		byReason[reason.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"expired": 2, "purged": 1}, byReason)
}

func TestAckLatency(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordAckLatency("orders", 250*time.Millisecond)
	m.RecordAckLatency("orders", 750*time.Millisecond)

	got := collect(t, reader)
	hist, ok := got["inflight.ack.latency.ms"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 1000.0, hist.DataPoints[0].Sum, 0.001)
}
