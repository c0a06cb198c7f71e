// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/inflight/slot"
	"github.com/google/uuid"
)

// Metadata is the part of a stored message the tracker needs at buffering time.
type Metadata struct {
	MessageID int64
	ArrivalAt time.Time // when the message entered the broker
	ExpiresAt time.Time // zero means the message never expires
}

// Record is the tracking state of one in-flight message.
//
// Identity fields are immutable after creation. The status history, the
// per-channel delivery counts and the timestamp are guarded by mu; the
// scheduled delivery count is atomic. A forgotten record rejects every
// further transition.
type Record struct {
	ID          int64
	Slot        *slot.Slot
	Destination string
	ArrivalAt   time.Time
	ExpiresAt   time.Time

	mu         sync.Mutex
	timestamp  time.Time
	history    []Status
	removable  bool
	acked      bool
	ackedByAll bool
	forgotten  bool
	deliveries map[uuid.UUID]int

	scheduled atomic.Int64
}

func newRecord(s *slot.Slot, md Metadata, now time.Time) *Record {
	return &Record{
		ID:          md.MessageID,
		Slot:        s,
		Destination: s.DestinationOfMessages(),
		ArrivalAt:   md.ArrivalAt,
		ExpiresAt:   md.ExpiresAt,
		timestamp:   now,
		history:     []Status{StatusBuffered},
		deliveries:  make(map[uuid.UUID]int),
	}
}

// expired reports whether the expiration time has passed at now.
func (r *Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// stamp appends statuses to the history. Caller holds mu.
func (r *Record) stamp(statuses ...Status) {
	for _, s := range statuses {
		r.history = append(r.history, s)
		if Removable(s) {
			r.removable = true
		}
	}
}

// Stamp appends statuses to the history.
func (r *Record) Stamp(statuses ...Status) {
	r.mu.Lock()
	r.stamp(statuses...)
	r.mu.Unlock()
}

// Latest returns the current status.
func (r *Record) Latest() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[len(r.history)-1]
}

// History returns a copy of the full status history, oldest first.
func (r *Record) History() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.history))
	copy(out, r.history)
	return out
}

// Removable reports whether the record has reached a removable status.
func (r *Record) Removable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removable
}

// Timestamp returns the time the record was buffered or last rejected.
func (r *Record) Timestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timestamp
}

// send counts one more delivery on a channel, adds the record to the
// channel's outstanding sends and returns the new count. Both happen under
// mu so a concurrent forget either sees the channel or wins before it.
func (r *Record) send(channelID uuid.UUID, outstanding *sync.Map) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forgotten {
		return 0, ErrMessageNotFound
	}
	outstanding.LoadOrStore(r.ID, r)
	r.deliveries[channelID]++
	return r.deliveries[channelID], nil
}

// Deliveries returns the number of unacknowledged deliveries on a channel.
func (r *Record) Deliveries(channelID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deliveries[channelID]
}

// ChannelDelivery is a channel and its unacknowledged delivery count.
type ChannelDelivery struct {
	ChannelID uuid.UUID
	Count     int
}

// ChannelDeliveries returns the outstanding deliveries ordered by channel id.
func (r *Record) ChannelDeliveries() []ChannelDelivery {
	r.mu.Lock()
	out := make([]ChannelDelivery, 0, len(r.deliveries))
	for id, n := range r.deliveries {
		out = append(out, ChannelDelivery{ChannelID: id, Count: n})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ChannelID.String() < out[j].ChannelID.String()
	})
	return out
}

// Scheduled returns the number of scheduled but not yet executed sends.
func (r *Record) Scheduled() int64 {
	return r.scheduled.Load()
}

// ackResult is the outcome of applying one acknowledgment to a record.
type ackResult struct {
	ackedByAll bool
	timestamp  time.Time
}

// ack releases one delivery on a channel and stamps ACKED. If no delivery
// or scheduled send is left it stamps ACKED_BY_ALL, at most once per record.
func (r *Record) ack(channelID uuid.UUID) (ackResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.forgotten {
		return ackResult{}, ErrMessageNotFound
	}
	n, ok := r.deliveries[channelID]
	if !ok {
		return ackResult{}, ErrDeliveryNotOutstanding
	}
	if n <= 1 {
		delete(r.deliveries, channelID)
	} else {
		r.deliveries[channelID] = n - 1
	}
	r.acked = true
	r.stamp(StatusAcked)
	return r.completeAck(), nil
}

// sentToAll stamps SENT_TO_ALL once the last scheduled send executed. Acks
// that all arrived before it leave the record complete, so it stamps
// ACKED_BY_ALL as well.
func (r *Record) sentToAll() ackResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.forgotten {
		return ackResult{}
	}
	r.stamp(StatusSentToAll)
	if !r.acked {
		return ackResult{}
	}
	return r.completeAck()
}

// completeAck stamps ACKED_BY_ALL when nothing is left outstanding, at most
// once per record. Caller holds mu.
func (r *Record) completeAck() ackResult {
	if len(r.deliveries) > 0 || r.scheduled.Load() != 0 || r.ackedByAll {
		return ackResult{}
	}
	r.ackedByAll = true
	r.stamp(StatusAckedByAll)
	return ackResult{ackedByAll: true, timestamp: r.timestamp}
}

// reject refreshes the timestamp and stamps REJECTED_AND_BUFFERED.
func (r *Record) reject(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forgotten {
		return ErrMessageNotFound
	}
	r.timestamp = now
	r.stamp(StatusRejectedAndBuffered)
	return nil
}

// forget stamps the record as dead lettered and reports the channels it was
// outstanding on and whether it had already been acknowledged by all.
func (r *Record) forget() ([]uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgotten = true
	r.stamp(StatusDeadLettered)
	channels := make([]uuid.UUID, 0, len(r.deliveries))
	for id := range r.deliveries {
		channels = append(channels, id)
	}
	return channels, r.ackedByAll
}
