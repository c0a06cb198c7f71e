// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/absmach/inflight/purge"
)

var _ purge.Store = (*Store)(nil)

// Store is an in-memory implementation of purge.Store.
type Store struct {
	mu     sync.RWMutex
	purged map[string]time.Time // destination -> last purge
	closed bool
}

// New creates a new in-memory purge store.
func New() *Store {
	return &Store{
		purged: make(map[string]time.Time),
	}
}

// LastPurged returns the last purge time of a destination.
func (s *Store) LastPurged(destination string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.purged[destination]
}

// MarkPurged records a purge of a destination. Older purge times are ignored.
func (s *Store) MarkPurged(destination string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return purge.ErrClosed
	}
	if purge.Newer(s.purged[destination], at) {
		s.purged[destination] = at
	}
	return nil
}

// List returns all purge records ordered by destination.
func (s *Store) List() []purge.Record {
	s.mu.RLock()
	out := make([]purge.Record, 0, len(s.purged))
	for dest, at := range s.purged {
		out = append(out, purge.Record{Destination: dest, PurgedAt: at})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })
	return out
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
