// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/absmach/inflight/config"
	"github.com/absmach/inflight/slot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPurgeStore(t *testing.T) {
	mem, err := newPurgeStore(config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.NoError(t, mem.Close())

	disk, err := newPurgeStore(config.StorageConfig{Type: "badger", BadgerDir: t.TempDir()})
	require.NoError(t, err)
	assert.NoError(t, disk.Close())
}

func TestFallbackWorkers(t *testing.T) {
	var registered, fallback int
	w := &fallbackWorkers{
		Workers:  slot.NewWorkers(),
		fallback: slot.WorkerFunc(func(*slot.Slot) { fallback++ }),
	}
	w.Register("orders", slot.WorkerFunc(func(*slot.Slot) { registered++ }))

	s := slot.New("orders", "orders", 1, 10)
	worker, ok := w.Get("orders")
	require.True(t, ok)
	worker.CheckForSlotCompletionAndResend(s)

	worker, ok = w.Get("audit")
	require.True(t, ok)
	worker.CheckForSlotCompletionAndResend(s)

	assert.Equal(t, 1, registered)
	assert.Equal(t, 1, fallback)
}

func TestRun(t *testing.T) {
	sigChan := make(chan os.Signal, 3)
	sigChan <- syscall.SIGUSR1
	sigChan <- syscall.SIGUSR1
	sigChan <- syscall.SIGTERM

	dumps := 0
	run(sigChan, make(chan error), func() { dumps++ })
	assert.Equal(t, 2, dumps)

	serverErr := make(chan error, 1)
	serverErr <- errors.New("address in use")
	run(make(chan os.Signal), serverErr, func() { dumps++ })
	assert.Equal(t, 2, dumps)
}
