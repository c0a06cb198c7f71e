// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package webhook delivers tracker lifecycle events to HTTP endpoints.
package webhook

import (
	"context"
	"time"
)

// Sender is the protocol-specific sender interface.
type Sender interface {
	// Send sends a webhook payload to the specified URL.
	Send(ctx context.Context, url string, headers map[string]string, payload []byte, timeout time.Duration) error
}
