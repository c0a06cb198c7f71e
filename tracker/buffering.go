// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"log/slog"

	"github.com/absmach/inflight/events"
	"github.com/absmach/inflight/slot"
)

// BufferIfAbsent starts tracking a message read from a slot. It returns
// false without changing anything if the message is already buffered for
// that slot. On acceptance the record is registered and the slot's pending
// count is incremented.
func (t *Tracker) BufferIfAbsent(s *slot.Slot, md Metadata) bool {
	rec := newRecord(s, md, t.now())
	if !t.buffering.insertIfAbsent(s, rec) {
		t.logger.Debug("buffering rejected, message already buffered",
			slog.Int64("message_id", md.MessageID),
			slog.String("slot", s.Key()))
		return false
	}

	if t.registry.Put(rec) {
		t.logger.Debug("replaced tracking record of message buffered by another slot",
			slog.Int64("message_id", md.MessageID))
	} else {
		t.metrics.RecordTracked(1)
	}
	pending := t.slots.increment(s)

	t.logger.Debug("message buffered",
		slog.Int64("message_id", md.MessageID),
		slog.String("slot", s.Key()),
		slog.Int64("slot_pending", pending))
	return true
}

// IsBuffered reports whether a message is buffered for a slot. The slot
// must have tracked messages.
func (t *Tracker) IsBuffered(s *slot.Slot, messageID int64) (bool, error) {
	return t.buffering.contains(s, messageID)
}

// ReleaseBuffered removes one message from its slot's buffering index
// without touching its record.
func (t *Tracker) ReleaseBuffered(s *slot.Slot, messageID int64) {
	t.logger.Debug("releasing message buffering",
		slog.Int64("message_id", messageID),
		slog.String("slot", s.Key()))
	t.buffering.release(s, messageID)
}

// ReleaseSlot drops all buffering entries of a retired slot. Each affected
// record is stamped SLOT_REMOVED and, if it is already removable, deleted
// from the registry. Records still waiting for acknowledgments stay
// registered until their delivery cycle completes.
func (t *Tracker) ReleaseSlot(s *slot.Slot) {
	t.logger.Debug("releasing tracking of slot", slog.String("slot", s.Key()))

	for _, rec := range t.buffering.releaseAll(s) {
		rec.Stamp(StatusSlotRemoved)
		if !rec.Removable() {
			continue
		}
		if t.registry.removeIf(rec) {
			t.metrics.RecordTracked(-1)
			t.logger.Debug("removed tracking record",
				slog.Int64("message_id", rec.ID))
		}
	}
	t.slots.dropIfIdle(s)
}

// SlotPending returns the number of buffered messages of a slot that are
// not fully acknowledged yet.
func (t *Tracker) SlotPending(s *slot.Slot) int64 {
	return t.slots.get(s)
}

// decrementSlotPending lowers the slot's pending count and, when it reaches
// zero, asks the slot worker to check the slot for completion.
func (t *Tracker) decrementSlotPending(s *slot.Slot) {
	remaining, ok := t.slots.decrement(s)
	if !ok {
		t.logger.Warn("slot pending count already zero",
			slog.String("slot", s.Key()))
		return
	}
	if remaining != 0 {
		return
	}

	t.logger.Debug("slot has no pending messages, re-checking slot",
		slog.String("slot", s.Key()))
	t.metrics.RecordSlotCompleted(s.StorageQueueName())
	t.notify(events.SlotCompleted{
		QueueName: s.StorageQueueName(),
		SlotDest:  s.DestinationOfMessages(),
		Slot:      s.Key(),
	})

	worker, ok := t.workers.Get(s.StorageQueueName())
	if !ok {
		t.logger.Warn("no slot worker for storage queue",
			slog.String("queue", s.StorageQueueName()),
			slog.String("slot", s.Key()))
		return
	}
	worker.CheckForSlotCompletionAndResend(s)
}
