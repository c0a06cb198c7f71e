// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package delivery drives one consumer channel's send and acknowledgment
// path through flow control and the in-flight tracker.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/inflight/flowcontrol"
	"github.com/absmach/inflight/purge"
	"github.com/absmach/inflight/tracker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/absmach/inflight/delivery"

// Decision is the outcome of preparing a send.
type Decision struct {
	// Send is true when the message must be written to the channel.
	Send bool
	// Redelivered is true when the message was sent on the channel before.
	Redelivered bool
	// DeadLettered is true when a delivery rule rejected the message and
	// its tracking was dropped.
	DeadLettered bool
	// Reason explains why the message is not sent.
	Reason string
}

// Service coordinates flow control, the tracker and the purge store.
type Service struct {
	tracker *tracker.Tracker
	gate    *flowcontrol.Gate
	purges  purge.Store
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService creates a delivery service. A nil tracer disables tracing.
func NewService(t *tracker.Tracker, gate *flowcontrol.Gate, purges purge.Store, logger *slog.Logger, tracer trace.Tracer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(tracerName)
	}
	return &Service{
		tracker: t,
		gate:    gate,
		purges:  purges,
		logger:  logger,
		tracer:  tracer,
		now:     time.Now,
	}
}

// OpenChannel starts tracking a consumer channel.
func (s *Service) OpenChannel(channelID uuid.UUID) {
	s.tracker.RegisterChannel(channelID)
}

// CloseChannel stops tracking a consumer channel and drops its limiter.
func (s *Service) CloseChannel(channelID uuid.UUID) {
	s.tracker.UnregisterChannel(channelID)
	s.gate.Remove(channelID)
}

// Deliver prepares a send of a buffered message on a channel. It waits for
// the channel's send rate, records the send and applies the delivery
// rules. A rejected message is dead lettered.
func (s *Service) Deliver(ctx context.Context, channelID uuid.UUID, messageID int64) (Decision, error) {
	ctx, span := s.startSpan(ctx, "delivery.deliver", channelID, messageID)
	defer span.End()

	d, err := s.deliver(ctx, channelID, messageID)
	if err != nil {
		endWithError(span, err)
		return d, err
	}
	span.SetAttributes(
		attribute.String("delivery.decision", d.name()),
		attribute.Bool("delivery.redelivered", d.Redelivered),
	)
	if d.Reason != "" {
		span.SetAttributes(attribute.String("delivery.reason", d.Reason))
	}
	return d, nil
}

func (s *Service) deliver(ctx context.Context, channelID uuid.UUID, messageID int64) (Decision, error) {
	if err := s.gate.Wait(ctx, channelID); err != nil {
		if errors.Is(err, flowcontrol.ErrUnackedLimit) {
			return Decision{Reason: flowcontrol.ReasonUnackedLimit}, nil
		}
		return Decision{}, fmt.Errorf("flow control on channel %s: %w", channelID, err)
	}

	redelivered, err := s.tracker.RegisterSend(channelID, messageID)
	if err != nil {
		return Decision{}, err
	}

	ok, reason, err := s.tracker.Evaluate(messageID, channelID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		if err := s.tracker.DeadLetterAndForget(messageID); err != nil && !errors.Is(err, tracker.ErrMessageNotFound) {
			return Decision{}, err
		}
		return Decision{DeadLettered: true, Reason: reason}, nil
	}

	if _, err := s.tracker.IncrementUnacked(channelID); err != nil {
		return Decision{}, err
	}
	return Decision{Send: true, Redelivered: redelivered}, nil
}

func (d Decision) name() string {
	switch {
	case d.Send:
		return "send"
	case d.DeadLettered:
		return "dead_lettered"
	default:
		return "held"
	}
}

// Ack applies a consumer acknowledgment. It returns true when the message
// can be deleted from the store.
func (s *Service) Ack(ctx context.Context, channelID uuid.UUID, messageID int64) (bool, error) {
	_, span := s.startSpan(ctx, "delivery.ack", channelID, messageID)
	defer span.End()

	safe, err := s.tracker.HandleAck(channelID, messageID)
	if err != nil {
		endWithError(span, err)
		return false, err
	}
	span.SetAttributes(attribute.Bool("delivery.acked_by_all", safe))
	if _, err := s.tracker.DecrementUnacked(channelID); err != nil {
		endWithError(span, err)
		return safe, err
	}
	return safe, nil
}

// Reject applies a consumer rejection. The message stays buffered for
// rescheduling.
func (s *Service) Reject(ctx context.Context, channelID uuid.UUID, messageID int64) error {
	_, span := s.startSpan(ctx, "delivery.reject", channelID, messageID)
	defer span.End()

	if err := s.tracker.HandleReject(channelID, messageID); err != nil {
		endWithError(span, err)
		return err
	}
	if _, err := s.tracker.DecrementUnacked(channelID); err != nil {
		endWithError(span, err)
		return err
	}
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string, channelID uuid.UUID, messageID int64) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("message.id", messageID),
		attribute.String("channel.id", channelID.String()),
	))
}

func endWithError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Purge records a purge of a destination. Messages that arrived at or
// before now are no longer delivered.
func (s *Service) Purge(destination string) error {
	at := s.now()
	if err := s.purges.MarkPurged(destination, at); err != nil {
		return fmt.Errorf("failed to purge %s: %w", destination, err)
	}
	s.logger.Info("destination purged",
		slog.String("destination", destination),
		slog.Time("purged_at", at))
	return nil
}
