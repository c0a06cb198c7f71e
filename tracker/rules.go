// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"log/slog"

	"github.com/absmach/inflight/events"
	"github.com/google/uuid"
)

// Rejection reasons reported to metrics and events.
const (
	ReasonMaxRedelivery = "max_redelivery"
	ReasonExpired       = "expired"
	ReasonPurged        = "purged"
)

// EvaluateDeliveryRules decides whether a scheduled send of a message on a
// channel may go out. It must be called after RegisterSend for the same
// attempt. A false result is a policy decision, not a failure: the caller
// routes the message to the dead letter channel.
//
// Rules are checked in order: redelivery limit on the channel, expiration,
// and purge of the destination at or after the message arrived.
func (t *Tracker) EvaluateDeliveryRules(messageID int64, channelID uuid.UUID) (bool, error) {
	ok, _, err := t.Evaluate(messageID, channelID)
	return ok, err
}

// Evaluate is EvaluateDeliveryRules that also returns the reason of a
// rejection: ReasonMaxRedelivery, ReasonExpired or ReasonPurged.
func (t *Tracker) Evaluate(messageID int64, channelID uuid.UUID) (bool, string, error) {
	rec, err := t.registry.Get(messageID)
	if err != nil {
		return false, "", err
	}

	lastPurged := t.purges.LastPurged(rec.Destination)
	now := t.now()

	rec.mu.Lock()
	if rec.forgotten {
		rec.mu.Unlock()
		return false, "", ErrMessageNotFound
	}
	deliveries := rec.deliveries[channelID]
	reason := ""
	switch {
	case deliveries > t.cfg.MaxRedeliveryAttempts:
		reason = ReasonMaxRedelivery
	case rec.expired(now):
		reason = ReasonExpired
		rec.stamp(StatusExpired)
	case !lastPurged.IsZero() && !rec.ArrivalAt.After(lastPurged):
		reason = ReasonPurged
		rec.stamp(StatusPurged)
	}

	if reason != "" {
		rec.stamp(StatusDeliveryReject)
		rec.mu.Unlock()
		t.rejected(rec, channelID, reason, deliveries)
		return false, reason, nil
	}

	rec.stamp(StatusDeliveryOK)
	switch {
	case deliveries == 1:
		rec.stamp(StatusSent)
	case deliveries > 1:
		rec.stamp(StatusResent)
	}
	rec.mu.Unlock()
	return true, "", nil
}

func (t *Tracker) rejected(rec *Record, channelID uuid.UUID, reason string, deliveries int) {
	switch reason {
	case ReasonMaxRedelivery:
		t.logger.Warn("maximum redelivery attempts breached, routing message to dead letter channel",
			slog.Int64("message_id", rec.ID),
			slog.String("channel_id", channelID.String()),
			slog.Int("deliveries", deliveries))
	case ReasonExpired:
		t.logger.Warn("message expired, routing message to dead letter channel",
			slog.Int64("message_id", rec.ID),
			slog.Time("expires_at", rec.ExpiresAt))
	case ReasonPurged:
		t.logger.Warn("message arrived before last purge of destination, skipping",
			slog.Int64("message_id", rec.ID),
			slog.String("destination", rec.Destination),
			slog.Time("arrival_at", rec.ArrivalAt))
	}

	t.metrics.RecordDeliveryRejected(rec.Destination, reason)
	t.notify(events.DeliveryRejected{
		MessageID:   rec.ID,
		MessageDest: rec.Destination,
		ChannelID:   channelID.String(),
		Reason:      reason,
		Deliveries:  deliveries,
	})
}
