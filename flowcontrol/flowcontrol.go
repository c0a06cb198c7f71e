// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package flowcontrol decides whether another message may be sent on a
// consumer channel. A channel is held back when it has too many
// unacknowledged messages or exceeds its send rate.
package flowcontrol

import (
	"context"
	"errors"
	"sync"

	"github.com/absmach/inflight/config"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Reasons a send is held back.
const (
	ReasonUnackedLimit = "unacked_limit"
	ReasonRateLimited  = "rate_limited"
)

// ErrUnackedLimit is returned by Wait when the channel is at its unacked cap.
var ErrUnackedLimit = errors.New("channel reached unacknowledged message limit")

// UnackedCounter reports the unacknowledged messages of a channel.
type UnackedCounter interface {
	UnackedCount(channelID uuid.UUID) (int64, error)
}

// Result is the outcome of a send check.
type Result struct {
	Allowed bool
	Reason  string
}

// Gate applies the per-channel send limits.
type Gate struct {
	mu         sync.Mutex
	limiters   map[uuid.UUID]*rate.Limiter
	rate       rate.Limit
	burst      int
	maxUnacked int64
	counter    UnackedCounter
}

// New creates a gate. A zero send rate disables rate limiting and a zero
// unacked cap disables the cap.
func New(cfg config.FlowControlConfig, counter UnackedCounter) *Gate {
	return &Gate{
		limiters:   make(map[uuid.UUID]*rate.Limiter),
		rate:       rate.Limit(cfg.SendRate),
		burst:      cfg.SendBurst,
		maxUnacked: cfg.MaxUnackedPerChannel,
		counter:    counter,
	}
}

// Allow checks whether one more message may be sent on a channel. The
// unacked cap is checked before a rate token is taken.
func (g *Gate) Allow(channelID uuid.UUID) (Result, error) {
	ok, err := g.belowCap(channelID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Reason: ReasonUnackedLimit}, nil
	}

	if l := g.limiter(channelID); l != nil && !l.Allow() {
		return Result{Reason: ReasonRateLimited}, nil
	}
	return Result{Allowed: true}, nil
}

// Wait blocks until the channel's rate allows a send or ctx is done. It
// fails immediately with ErrUnackedLimit when the channel is at its cap.
func (g *Gate) Wait(ctx context.Context, channelID uuid.UUID) error {
	ok, err := g.belowCap(channelID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnackedLimit
	}

	if l := g.limiter(channelID); l != nil {
		return l.Wait(ctx)
	}
	return nil
}

// Remove drops the limiter of a closed channel.
func (g *Gate) Remove(channelID uuid.UUID) {
	g.mu.Lock()
	delete(g.limiters, channelID)
	g.mu.Unlock()
}

func (g *Gate) belowCap(channelID uuid.UUID) (bool, error) {
	n, err := g.counter.UnackedCount(channelID)
	if err != nil {
		return false, err
	}
	return g.maxUnacked <= 0 || n < g.maxUnacked, nil
}

func (g *Gate) limiter(channelID uuid.UUID) *rate.Limiter {
	if g.rate <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(g.rate, g.burst)
		g.limiters[channelID] = l
	}
	return l
}
