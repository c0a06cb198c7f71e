// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package events defines the delivery lifecycle events published by the
// in-flight tracker.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants.
const (
	TypeMessageDeadLettered = "message.dead_lettered"
	TypeDeliveryRejected    = "message.delivery_rejected"
	TypeSlotCompleted       = "slot.completed"
)

// Event is the common interface for all tracker events.
type Event interface {
	// Type returns the event type identifier (e.g., "slot.completed").
	Type() string

	// Destination returns the queue or topic the event concerns.
	Destination() string

	// Wrap wraps the event in a common envelope with metadata.
	Wrap(nodeID string) *Envelope
}

// Envelope is the common wrapper for all events.
type Envelope struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	NodeID    string `json:"node_id"`
	Data      any    `json:"data"`
}

// MarshalJSON serializes the envelope to JSON.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	return json.Marshal((*plain)(e))
}

func wrap(e Event, nodeID string) *Envelope {
	return &Envelope{
		EventType: e.Type(),
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		NodeID:    nodeID,
		Data:      e,
	}
}

// MessageDeadLettered is emitted when a message is removed from tracking
// and routed to the dead letter channel.
type MessageDeadLettered struct {
	MessageID   int64    `json:"message_id"`
	MessageDest string   `json:"destination"`
	Slot        string   `json:"slot"`
	Channels    []string `json:"channels,omitempty"` // channels with unacknowledged deliveries
}

func (e MessageDeadLettered) Type() string                 { return TypeMessageDeadLettered }
func (e MessageDeadLettered) Destination() string          { return e.MessageDest }
func (e MessageDeadLettered) Wrap(nodeID string) *Envelope { return wrap(e, nodeID) }

// DeliveryRejected is emitted when a delivery attempt fails a delivery rule.
type DeliveryRejected struct {
	MessageID   int64  `json:"message_id"`
	MessageDest string `json:"destination"`
	ChannelID   string `json:"channel_id"`
	Reason      string `json:"reason"` // "max_redelivery", "expired" or "purged"
	Deliveries  int    `json:"deliveries"`
}

func (e DeliveryRejected) Type() string                 { return TypeDeliveryRejected }
func (e DeliveryRejected) Destination() string          { return e.MessageDest }
func (e DeliveryRejected) Wrap(nodeID string) *Envelope { return wrap(e, nodeID) }

// SlotCompleted is emitted when every message of a slot has been acknowledged
// or removed.
type SlotCompleted struct {
	QueueName string `json:"queue_name"`
	SlotDest  string `json:"destination"`
	Slot      string `json:"slot"`
}

func (e SlotCompleted) Type() string                 { return TypeSlotCompleted }
func (e SlotCompleted) Destination() string          { return e.SlotDest }
func (e SlotCompleted) Wrap(nodeID string) *Envelope { return wrap(e, nodeID) }
