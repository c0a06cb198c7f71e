// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import "errors"

// Tracker errors.
var (
	ErrMessageNotFound        = errors.New("message is not tracked")
	ErrChannelNotRegistered   = errors.New("channel is not registered for tracking")
	ErrSlotNotTracked         = errors.New("slot has no tracked messages")
	ErrDeliveryNotOutstanding = errors.New("no outstanding delivery of message on channel")
	ErrScheduledUnderflow     = errors.New("message has no scheduled deliveries")
	ErrInvalidConfig          = errors.New("invalid tracker configuration")
)
