// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"log/slog"

	"github.com/google/uuid"
)

// RegisterChannel initializes send tracking and the unacked counter of a
// consumer channel. Registering a channel twice only logs a warning.
func (t *Tracker) RegisterChannel(channelID uuid.UUID) {
	if !t.sending.register(channelID) {
		t.logger.Warn("channel tracking already initialized",
			slog.String("channel_id", channelID.String()))
	}
}

// UnregisterChannel drops the outstanding sends and the unacked counter of
// a channel. Delivery counts stored in records are left untouched.
func (t *Tracker) UnregisterChannel(channelID uuid.UUID) {
	t.logger.Debug("releasing tracking of messages sent by channel",
		slog.String("channel_id", channelID.String()))
	if !t.sending.unregister(channelID) {
		t.logger.Warn("releasing channel that is not registered",
			slog.String("channel_id", channelID.String()))
	}
}

// RegisterSend records that a message is being delivered on a channel and
// reports whether it is a redelivery, i.e. not the first delivery of the
// message on that channel.
func (t *Tracker) RegisterSend(channelID uuid.UUID, messageID int64) (bool, error) {
	cs, err := t.sending.get(channelID)
	if err != nil {
		return false, err
	}
	rec, err := t.registry.Get(messageID)
	if err != nil {
		return false, err
	}

	n, err := rec.send(channelID, &cs.outstanding)
	if err != nil {
		return false, err
	}

	t.logger.Debug("message added to sending tracker",
		slog.Int64("message_id", messageID),
		slog.String("channel_id", channelID.String()),
		slog.Int("deliveries", n))
	return n > 1, nil
}

// ReleaseSend removes a message from a channel's outstanding sends without
// touching its delivery counts.
func (t *Tracker) ReleaseSend(channelID uuid.UUID, messageID int64) error {
	cs, err := t.sending.get(channelID)
	if err != nil {
		return err
	}
	cs.outstanding.Delete(messageID)
	return nil
}

// IsOutstanding reports whether a message is sent and not yet acknowledged
// or rejected on a channel.
func (t *Tracker) IsOutstanding(channelID uuid.UUID, messageID int64) (bool, error) {
	cs, err := t.sending.get(channelID)
	if err != nil {
		return false, err
	}
	_, ok := cs.outstanding.Load(messageID)
	return ok, nil
}

// UnackedCount returns the number of messages sent on a channel and not
// acknowledged yet.
func (t *Tracker) UnackedCount(channelID uuid.UUID) (int64, error) {
	cs, err := t.sending.get(channelID)
	if err != nil {
		return 0, err
	}
	return cs.unacked.Load(), nil
}

// IncrementUnacked counts a message sent on a channel.
func (t *Tracker) IncrementUnacked(channelID uuid.UUID) (int64, error) {
	cs, err := t.sending.get(channelID)
	if err != nil {
		return 0, err
	}
	n := cs.unacked.Add(1)
	t.logger.Debug("message sent on channel",
		slog.String("channel_id", channelID.String()),
		slog.Int64("unacked", n))
	return n, nil
}

// DecrementUnacked counts an acknowledgment received on a channel. The
// counter never goes below zero.
func (t *Tracker) DecrementUnacked(channelID uuid.UUID) (int64, error) {
	cs, err := t.sending.get(channelID)
	if err != nil {
		return 0, err
	}
	n, ok := decrementFloor(&cs.unacked)
	if !ok {
		t.logger.Warn("unacked count of channel already zero",
			slog.String("channel_id", channelID.String()))
	}
	t.logger.Debug("ack received on channel",
		slog.String("channel_id", channelID.String()),
		slog.Int64("unacked", n))
	return n, nil
}
