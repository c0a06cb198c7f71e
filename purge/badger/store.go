// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package badger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/absmach/inflight/purge"
	"github.com/dgraph-io/badger/v4"
)

var _ purge.Store = (*Store)(nil)

const keyPrefix = "purge:"

// Config holds BadgerDB configuration.
type Config struct {
	Dir        string        // Directory for BadgerDB data
	GCInterval time.Duration // Value log GC period, defaults to 5 minutes
}

// Store implements purge.Store using BadgerDB. Purge times are loaded into
// memory when the store opens and written through on every change, so
// lookups never touch the disk.
//
// Key format: purge:{destination}
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	purged map[string]time.Time

	gcStopCh chan struct{}
	gcDone   chan struct{}
	closed   bool
}

// New opens a BadgerDB-backed purge store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = nil
	opts.NumVersionsToKeep = 1
	// Purges are rare and must survive restarts.
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open purge store: %w", err)
	}

	s := &Store{
		db:       db,
		purged:   make(map[string]time.Time),
		gcStopCh: make(chan struct{}),
		gcDone:   make(chan struct{}),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go s.runGC(interval)

	return s, nil
}

func (s *Store) load() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec purge.Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("failed to unmarshal purge record %s: %w", item.Key(), err)
				}
				s.purged[rec.Destination] = rec.PurgedAt
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// LastPurged returns the last purge time of a destination.
func (s *Store) LastPurged(destination string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.purged[destination]
}

// MarkPurged persists a purge of a destination. Older purge times are ignored.
func (s *Store) MarkPurged(destination string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return purge.ErrClosed
	}
	if !purge.Newer(s.purged[destination], at) {
		return nil
	}

	data, err := json.Marshal(purge.Record{Destination: destination, PurgedAt: at})
	if err != nil {
		return fmt.Errorf("failed to marshal purge record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+destination), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store purge of %s: %w", destination, err)
	}

	s.purged[destination] = at
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

	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Destination, out[j].Destination) < 0 })
	return out
}

// Close stops value log GC and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.gcStopCh)
	<-s.gcDone

	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// ErrNoRewrite is expected when there is nothing to reclaim.
			_ = s.db.RunValueLogGC(0.5)
		case <-s.gcStopCh:
			return
		}
	}
}
