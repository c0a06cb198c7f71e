// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"log/slog"

	"github.com/absmach/inflight/events"
)

// DeadLetterAndForget removes all tracking of a message immediately: the
// registry record, its outstanding sends on every channel and its buffering
// entry. The slot's pending count is released unless the message had
// already been acknowledged by all consumers.
func (t *Tracker) DeadLetterAndForget(messageID int64) error {
	t.logger.Debug("removing all tracking of message",
		slog.Int64("message_id", messageID))

	rec, err := t.registry.Remove(messageID)
	if err != nil {
		return err
	}
	t.metrics.RecordTracked(-1)

	channels, ackedByAll := rec.forget()
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.String())
		if err := t.ReleaseSend(ch, messageID); err != nil {
			// The channel was torn down and its sends dropped with it.
			t.logger.Debug("channel of dead lettered message already released",
				slog.Int64("message_id", messageID),
				slog.String("channel_id", ch.String()))
		}
	}
	t.buffering.release(rec.Slot, messageID)

	t.metrics.RecordDeadLettered(rec.Destination)
	t.notify(events.MessageDeadLettered{
		MessageID:   messageID,
		MessageDest: rec.Destination,
		Slot:        rec.Slot.Key(),
		Channels:    names,
	})

	if !ackedByAll {
		t.decrementSlotPending(rec.Slot)
	}
	return nil
}
