// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package purge keeps the last purge time of each destination. The delivery
// tracker consults it to drop messages that arrived before a purge.
package purge

import (
	"errors"
	"time"
)

// ErrClosed is returned when writing to a closed store.
var ErrClosed = errors.New("purge store closed")

// Record is the last purge of one destination.
type Record struct {
	Destination string    `json:"destination"`
	PurgedAt    time.Time `json:"purged_at"`
}

// Store records destination purges.
//
// LastPurged is called on every delivery decision and must not block on
// I/O. A zero time means the destination was never purged.
type Store interface {
	LastPurged(destination string) time.Time
	MarkPurged(destination string, at time.Time) error
	List() []Record
	Close() error
}

// Newer reports whether at should replace the current purge time. Purge
// times never move backwards.
func Newer(current, at time.Time) bool {
	return current.IsZero() || at.After(current)
}
