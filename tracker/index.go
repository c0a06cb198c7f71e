// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"sync"
	"sync/atomic"

	"github.com/absmach/inflight/slot"
	"github.com/google/uuid"
)

// bufferingIndex tracks the records buffered for delivery from each slot.
type bufferingIndex struct {
	slots sync.Map // slot key -> *sync.Map (int64 -> *Record)
}

func (b *bufferingIndex) messages(s *slot.Slot, create bool) (*sync.Map, bool) {
	if !create {
		v, ok := b.slots.Load(s.Key())
		if !ok {
			return nil, false
		}
		return v.(*sync.Map), true
	}
	v, _ := b.slots.LoadOrStore(s.Key(), &sync.Map{})
	return v.(*sync.Map), true
}

// insertIfAbsent adds rec under the slot unless its id is already present.
func (b *bufferingIndex) insertIfAbsent(s *slot.Slot, rec *Record) bool {
	msgs, _ := b.messages(s, true)
	_, loaded := msgs.LoadOrStore(rec.ID, rec)
	return !loaded
}

func (b *bufferingIndex) contains(s *slot.Slot, id int64) (bool, error) {
	msgs, ok := b.messages(s, false)
	if !ok {
		return false, ErrSlotNotTracked
	}
	_, ok = msgs.Load(id)
	return ok, nil
}

func (b *bufferingIndex) release(s *slot.Slot, id int64) {
	if msgs, ok := b.messages(s, false); ok {
		msgs.Delete(id)
	}
}

// releaseAll drops the slot and returns the records it held.
func (b *bufferingIndex) releaseAll(s *slot.Slot) []*Record {
	v, ok := b.slots.LoadAndDelete(s.Key())
	if !ok {
		return nil
	}
	var recs []*Record
	v.(*sync.Map).Range(func(_, r any) bool {
		recs = append(recs, r.(*Record))
		return true
	})
	return recs
}

// channelState is the send-side tracking of one consumer channel.
type channelState struct {
	outstanding sync.Map // int64 -> *Record
	unacked     atomic.Int64
}

// sendingIndex tracks the records outstanding on each registered channel.
type sendingIndex struct {
	channels sync.Map // uuid.UUID -> *channelState
}

func (s *sendingIndex) register(channelID uuid.UUID) bool {
	_, loaded := s.channels.LoadOrStore(channelID, &channelState{})
	return !loaded
}

func (s *sendingIndex) unregister(channelID uuid.UUID) bool {
	_, ok := s.channels.LoadAndDelete(channelID)
	return ok
}

func (s *sendingIndex) get(channelID uuid.UUID) (*channelState, error) {
	v, ok := s.channels.Load(channelID)
	if !ok {
		return nil, ErrChannelNotRegistered
	}
	return v.(*channelState), nil
}

// slotCounters holds the number of buffered, not yet fully acknowledged
// messages of each slot.
type slotCounters struct {
	pending sync.Map // slot key -> *atomic.Int64
}

func (c *slotCounters) increment(s *slot.Slot) int64 {
	v, _ := c.pending.LoadOrStore(s.Key(), &atomic.Int64{})
	return v.(*atomic.Int64).Add(1)
}

// decrement lowers the slot count by one. It never goes below zero; ok is
// false when there was nothing to decrement.
func (c *slotCounters) decrement(s *slot.Slot) (remaining int64, ok bool) {
	v, found := c.pending.Load(s.Key())
	if !found {
		return 0, false
	}
	return decrementFloor(v.(*atomic.Int64))
}

func (c *slotCounters) get(s *slot.Slot) int64 {
	v, ok := c.pending.Load(s.Key())
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// dropIfIdle forgets the counter of a retired slot once it reached zero.
func (c *slotCounters) dropIfIdle(s *slot.Slot) {
	v, ok := c.pending.Load(s.Key())
	if ok && v.(*atomic.Int64).Load() == 0 {
		c.pending.CompareAndDelete(s.Key(), v)
	}
}

// decrementFloor lowers an atomic counter by one without going below zero.
func decrementFloor(n *atomic.Int64) (int64, bool) {
	for {
		cur := n.Load()
		if cur <= 0 {
			return 0, false
		}
		if n.CompareAndSwap(cur, cur-1) {
			return cur - 1, true
		}
	}
}
