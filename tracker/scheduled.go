// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import "log/slog"

// IncrementScheduled records that a send of the message to one more
// subscriber has been scheduled, and returns the pending schedule count.
func (t *Tracker) IncrementScheduled(messageID int64) (int64, error) {
	rec, err := t.registry.Get(messageID)
	if err != nil {
		return 0, err
	}
	rec.Stamp(StatusScheduledToSend)
	n := rec.scheduled.Add(1)

	t.logger.Debug("message scheduled",
		slog.Int64("message_id", messageID),
		slog.Int64("pending_sends", n))
	return n, nil
}

// DecrementScheduled records that a scheduled send executed, and returns
// the remaining schedule count. Reaching zero stamps SENT_TO_ALL, and
// completes the message when every delivery was already acknowledged.
func (t *Tracker) DecrementScheduled(messageID int64) (int64, error) {
	rec, err := t.registry.Get(messageID)
	if err != nil {
		return 0, err
	}
	n, ok := decrementFloor(&rec.scheduled)
	if !ok {
		return 0, ErrScheduledUnderflow
	}
	if n == 0 {
		if res := rec.sentToAll(); res.ackedByAll {
			t.ackedByAll(rec, res)
		}
	}

	t.logger.Debug("scheduled message sent",
		slog.Int64("message_id", messageID),
		slog.Int64("pending_sends", n))
	return n, nil
}

// Scheduled returns the number of scheduled sends of a message that have
// not executed yet.
func (t *Tracker) Scheduled(messageID int64) (int64, error) {
	rec, err := t.registry.Get(messageID)
	if err != nil {
		return 0, err
	}
	return rec.Scheduled(), nil
}
