// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tracker records the delivery lifecycle of every message the broker
// is currently delivering: which slot buffered it, which channels it was
// sent on and how many times, whether it expired or was purged, and when
// it is safe to delete from the message store.
//
// All operations are non-blocking and safe for concurrent use from the
// per-channel send/ack paths and the per-slot buffering paths.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/inflight/slot"
)

// SlotWorkers looks up the worker that owns the slots of a storage queue.
type SlotWorkers interface {
	Get(queueName string) (slot.Worker, bool)
}

// PurgeInfo provides the last purge time of a destination. A zero time
// means the destination was never purged.
type PurgeInfo interface {
	LastPurged(destination string) time.Time
}

// Metrics receives tracker measurements. Implementations must not block.
type Metrics interface {
	RecordAckLatency(destination string, latency time.Duration)
	RecordDeliveryRejected(destination, reason string)
	RecordDeadLettered(destination string)
	RecordSlotCompleted(queueName string)
	RecordTracked(delta int64)
}

// Notifier publishes lifecycle events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, event any) error
}

// Config holds the tracker delivery policy.
type Config struct {
	// MaxRedeliveryAttempts is the number of deliveries allowed on one
	// channel before the message is routed to the dead letter channel.
	MaxRedeliveryAttempts int
}

// Validate checks the configuration. There is no implicit default: an
// unset redelivery limit is rejected.
func (c Config) Validate() error {
	if c.MaxRedeliveryAttempts < 1 {
		return fmt.Errorf("%w: max redelivery attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxRedeliveryAttempts)
	}
	return nil
}

// Option configures optional tracker collaborators.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics sets the metrics collaborator.
func WithMetrics(m Metrics) Option {
	return func(t *Tracker) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithNotifier sets the lifecycle event notifier.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) {
		t.notifier = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker is the in-flight delivery tracker of a broker node.
type Tracker struct {
	cfg Config

	registry  *Registry
	buffering bufferingIndex
	sending   sendingIndex
	slots     slotCounters

	workers  SlotWorkers
	purges   PurgeInfo
	metrics  Metrics
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a tracker. It fails if the configuration is invalid or a
// required collaborator is missing.
func New(cfg Config, workers SlotWorkers, purges PurgeInfo, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workers == nil {
		return nil, fmt.Errorf("%w: slot workers cannot be nil", ErrInvalidConfig)
	}
	if purges == nil {
		return nil, fmt.Errorf("%w: purge info cannot be nil", ErrInvalidConfig)
	}

	t := &Tracker{
		cfg:      cfg,
		registry: NewRegistry(),
		workers:  workers,
		purges:   purges,
		metrics:  nopMetrics{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Registry returns the global message registry.
func (t *Tracker) Registry() *Registry {
	return t.registry
}

// Tracked returns the number of tracked messages.
func (t *Tracker) Tracked() int {
	return t.registry.Len()
}

// MessageStatus returns the current status of a message.
func (t *Tracker) MessageStatus(messageID int64) (Status, error) {
	rec, err := t.registry.Get(messageID)
	if err != nil {
		return 0, err
	}
	return rec.Latest(), nil
}

// History returns the full status history of a message.
func (t *Tracker) History(messageID int64) ([]Status, error) {
	rec, err := t.registry.Get(messageID)
	if err != nil {
		return nil, err
	}
	return rec.History(), nil
}

func (t *Tracker) notify(event any) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Notify(context.Background(), event); err != nil {
		t.logger.Warn("failed to publish tracker event",
			slog.String("error", err.Error()))
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordAckLatency(string, time.Duration) {}
func (nopMetrics) RecordDeliveryRejected(string, string) {}
func (nopMetrics) RecordDeadLettered(string) {}
func (nopMetrics) RecordSlotCompleted(string) {}
func (nopMetrics) RecordTracked(int64) {}
