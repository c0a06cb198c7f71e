// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	ev := MessageDeadLettered{
		MessageID:   42,
		MessageDest: "orders",
		Slot:        "orders:1-100",
		Channels:    []string{"c1"},
	}

	env := ev.Wrap("node-1")
	assert.Equal(t, TypeMessageDeadLettered, env.EventType)
	assert.Equal(t, "node-1", env.NodeID)
	_, err := uuid.Parse(env.EventID)
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "message.dead_lettered", decoded["event_type"])
	payload := decoded["data"].(map[string]any)
	assert.Equal(t, float64(42), payload["message_id"])
	assert.Equal(t, "orders", payload["destination"])
}

func TestEventIDsAreUnique(t *testing.T) {
	ev := SlotCompleted{QueueName: "orders", SlotDest: "orders", Slot: "orders:1-10"}
	a := ev.Wrap("n")
	b := ev.Wrap("n")
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.Equal(t, "orders", ev.Destination())
}
