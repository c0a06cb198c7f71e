// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics exports delivery tracker measurements as OpenTelemetry
// instruments.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/inflight/tracker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/absmach/inflight"

var _ tracker.Metrics = (*Metrics)(nil)

// Metrics holds the tracker's OpenTelemetry instruments.
type Metrics struct {
	meter metric.Meter

	// Counters
	rejectedTotal     metric.Int64Counter
	deadLetteredTotal metric.Int64Counter
	slotsCompleted    metric.Int64Counter

	// UpDownCounters (Gauges)
	trackedMessages metric.Int64UpDownCounter

	// Histograms
	ackLatency metric.Float64Histogram
}

// New creates the tracker instruments on the given provider. A nil provider
// uses the global one.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m := &Metrics{
		meter: provider.Meter(meterName),
	}

	var err error

	m.rejectedTotal, err = m.meter.Int64Counter(
		"inflight.deliveries.rejected.total",
		metric.WithDescription("Delivery attempts rejected by delivery rules"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rejectedTotal counter: %w", err)
	}

	m.deadLetteredTotal, err = m.meter.Int64Counter(
		"inflight.messages.dead_lettered.total",
		metric.WithDescription("Messages removed from tracking by dead lettering"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deadLetteredTotal counter: %w", err)
	}

	m.slotsCompleted, err = m.meter.Int64Counter(
		"inflight.slots.completed.total",
		metric.WithDescription("Slots whose buffered messages were all acknowledged"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slotsCompleted counter: %w", err)
	}

	m.trackedMessages, err = m.meter.Int64UpDownCounter(
		"inflight.messages.tracked",
		metric.WithDescription("Messages currently tracked"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trackedMessages gauge: %w", err)
	}

	m.ackLatency, err = m.meter.Float64Histogram(
		"inflight.ack.latency.ms",
		metric.WithDescription("Time from buffering to acknowledgment by all consumers in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ackLatency histogram: %w", err)
	}

	return m, nil
}

// RecordAckLatency records the time a message took to be acknowledged by all.
func (m *Metrics) RecordAckLatency(destination string, latency time.Duration) {
	m.ackLatency.Record(context.Background(), float64(latency)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("destination", destination)))
}

// RecordDeliveryRejected records a rejected delivery attempt.
func (m *Metrics) RecordDeliveryRejected(destination, reason string) {
	m.rejectedTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("destination", destination),
		attribute.String("reason", reason),
	))
}

// RecordDeadLettered records a dead lettered message.
func (m *Metrics) RecordDeadLettered(destination string) {
	m.deadLetteredTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("destination", destination),
	))
}

// RecordSlotCompleted records a slot reaching zero pending messages.
func (m *Metrics) RecordSlotCompleted(queueName string) {
	m.slotsCompleted.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("queue", queueName),
	))
}

// RecordTracked adjusts the tracked messages gauge.
func (m *Metrics) RecordTracked(delta int64) {
	m.trackedMessages.Add(context.Background(), delta)
}
