// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// HandleAck processes an acknowledgment of a message on a channel. It
// returns true when every channel the message was sent on has acknowledged
// it and no scheduled send is pending, meaning the message can be deleted
// from the store. That transition happens once per message and releases
// one pending message of its slot.
func (t *Tracker) HandleAck(channelID uuid.UUID, messageID int64) (bool, error) {
	t.logger.Debug("ack received",
		slog.Int64("message_id", messageID),
		slog.String("channel_id", channelID.String()))

	if err := t.ReleaseSend(channelID, messageID); err != nil {
		return false, err
	}
	rec, err := t.registry.Get(messageID)
	if err != nil {
		return false, err
	}

	res, err := rec.ack(channelID)
	if err != nil {
		return false, fmt.Errorf("ack message %d on channel %s: %w", messageID, channelID, err)
	}
	if !res.ackedByAll {
		return false, nil
	}
	t.ackedByAll(rec, res)
	return true, nil
}

// ackedByAll releases the slot's pending count of a fully acknowledged record.
func (t *Tracker) ackedByAll(rec *Record, res ackResult) {
	t.metrics.RecordAckLatency(rec.Destination, t.now().Sub(res.timestamp))
	t.decrementSlotPending(rec.Slot)

	t.logger.Debug("all acks received, message can be removed from store",
		slog.Int64("message_id", rec.ID))
}

// HandleReject processes a rejection of a message on a channel. The message
// stays buffered and becomes eligible to be rescheduled, possibly to
// another consumer. Its delivery count on the channel is kept so the
// redelivery limit still applies.
func (t *Tracker) HandleReject(channelID uuid.UUID, messageID int64) error {
	t.logger.Debug("message rejected by client",
		slog.Int64("message_id", messageID),
		slog.String("channel_id", channelID.String()))

	rec, err := t.registry.Get(messageID)
	if err != nil {
		return err
	}
	if err := rec.reject(t.now()); err != nil {
		return err
	}
	return t.ReleaseSend(channelID, messageID)
}
