// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps message ids to their tracking records. It is the only
// place records are created and destroyed.
type Registry struct {
	records sync.Map // int64 -> *Record
	size    atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Put stores a record, replacing any record with the same id. It reports
// whether a record was replaced.
func (r *Registry) Put(rec *Record) bool {
	_, loaded := r.records.Swap(rec.ID, rec)
	if !loaded {
		r.size.Add(1)
	}
	return loaded
}

// Get returns the record of a message.
func (r *Registry) Get(id int64) (*Record, error) {
	v, ok := r.records.Load(id)
	if !ok {
		return nil, ErrMessageNotFound
	}
	return v.(*Record), nil
}

// Remove deletes and returns the record of a message.
func (r *Registry) Remove(id int64) (*Record, error) {
	v, ok := r.records.LoadAndDelete(id)
	if !ok {
		return nil, ErrMessageNotFound
	}
	r.size.Add(-1)
	return v.(*Record), nil
}

// removeIf deletes the record stored under its id only if it is still rec.
func (r *Registry) removeIf(rec *Record) bool {
	if r.records.CompareAndDelete(rec.ID, rec) {
		r.size.Add(-1)
		return true
	}
	return false
}

// Len returns the number of tracked records.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

// Snapshot returns the tracked records ordered by message id.
func (r *Registry) Snapshot() []*Record {
	out := make([]*Record, 0, r.Len())
	r.records.Range(func(_, v any) bool {
		out = append(out, v.(*Record))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
