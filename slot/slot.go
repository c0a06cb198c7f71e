// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package slot describes the partitioned work units that the in-flight
// tracker counts pending acknowledgments for, and the lookup of the
// workers that own them.
package slot

import (
	"fmt"
	"sync"
)

// Slot is a contiguous range of message ids read from one storage queue.
// The tracker only holds references to slots; their lifetime is owned by
// the slot delivery workers.
type Slot struct {
	QueueName   string // storage queue the messages are read from
	Destination string // queue or topic the messages are delivered to
	StartID     int64
	EndID       int64
}

// New creates a slot covering message ids [start, end] of a storage queue.
func New(queueName, destination string, start, end int64) *Slot {
	return &Slot{
		QueueName:   queueName,
		Destination: destination,
		StartID:     start,
		EndID:       end,
	}
}

// StorageQueueName returns the storage queue the slot belongs to.
func (s *Slot) StorageQueueName() string {
	return s.QueueName
}

// DestinationOfMessages returns the destination of the messages in the slot.
func (s *Slot) DestinationOfMessages() string {
	return s.Destination
}

// Key identifies the slot in the tracker's indices.
func (s *Slot) Key() string {
	return fmt.Sprintf("%s:%d-%d", s.QueueName, s.StartID, s.EndID)
}

func (s *Slot) String() string {
	return fmt.Sprintf("Slot{queue=%s, destination=%s, range=%d-%d}", s.QueueName, s.Destination, s.StartID, s.EndID)
}

// Worker owns the slots of one storage queue.
type Worker interface {
	// CheckForSlotCompletionAndResend is invoked once every time the
	// pending acknowledgment count of a slot drops to zero.
	CheckForSlotCompletionAndResend(s *Slot)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(s *Slot)

// CheckForSlotCompletionAndResend calls f(s).
func (f WorkerFunc) CheckForSlotCompletionAndResend(s *Slot) {
	f(s)
}

// Workers maps storage queue names to their slot workers.
type Workers struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewWorkers creates an empty worker registry.
func NewWorkers() *Workers {
	return &Workers{
		workers: make(map[string]Worker),
	}
}

// Register assigns the worker for a storage queue, replacing any previous one.
func (w *Workers) Register(queueName string, worker Worker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.workers[queueName] = worker
}

// Unregister removes the worker of a storage queue.
func (w *Workers) Unregister(queueName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.workers, queueName)
}

// Get returns the worker for a storage queue.
func (w *Workers) Get(queueName string) (Worker, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	worker, ok := w.workers[queueName]
	return worker, ok
}

// Count returns the number of registered workers.
func (w *Workers) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.workers)
}
