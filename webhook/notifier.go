// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"sync"
	"time"

	"github.com/absmach/inflight/config"
	"github.com/absmach/inflight/events"
	"github.com/absmach/inflight/tracker"
	"github.com/sony/gobreaker"
)

var _ tracker.Notifier = (*Notifier)(nil)

// ErrNotEvent is returned by Notify for values that are not events.Event.
var ErrNotEvent = errors.New("event must implement events.Event")

// Notifier delivers events to configured endpoints through a bounded queue
// drained by a worker pool. Each endpoint has its own circuit breaker.
type Notifier struct {
	cfg       config.WebhookConfig
	nodeID    string
	endpoints []endpoint
	queue     chan job
	breakers  map[string]*gobreaker.CircuitBreaker
	sender    Sender
	logger    *slog.Logger
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

type endpoint struct {
	name         string
	url          string
	events       map[string]bool
	destinations []string // path.Match patterns
	headers      map[string]string
	timeout      time.Duration
	retry        config.RetryConfig
}

type job struct {
	event    events.Event
	endpoint endpoint
	attempt  int
}

// NewNotifier creates a notifier and starts its workers.
func NewNotifier(cfg config.WebhookConfig, nodeID string, sender Sender, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	for _, ep := range cfg.Endpoints {
		for _, pattern := range ep.Destinations {
			if _, err := path.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("invalid destination filter %q of endpoint %s: %w", pattern, ep.Name, err)
			}
		}
	}

	endpoints := make([]endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		filter := make(map[string]bool, len(ep.Events))
		for _, t := range ep.Events {
			filter[t] = true
		}

		timeout := cfg.Defaults.Timeout
		if ep.Timeout > 0 {
			timeout = ep.Timeout
		}
		retry := cfg.Defaults.Retry
		if ep.Retry != nil {
			retry = *ep.Retry
		}

		endpoints = append(endpoints, endpoint{
			name:         ep.Name,
			url:          ep.URL,
			events:       filter,
			destinations: ep.Destinations,
			headers:      ep.Headers,
			timeout:      timeout,
			retry:        retry,
		})
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(endpoints))
	for _, ep := range endpoints {
		breakers[ep.name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        ep.name,
			MaxRequests: 1,
			Timeout:     cfg.Defaults.CircuitBreaker.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(cfg.Defaults.CircuitBreaker.FailureThreshold)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("webhook circuit breaker state changed",
					slog.String("endpoint", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		cfg:       cfg,
		nodeID:    nodeID,
		endpoints: endpoints,
		queue:     make(chan job, cfg.QueueSize),
		breakers:  breakers,
		sender:    sender,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}

	logger.Info("webhook notifier started",
		slog.Int("workers", cfg.Workers),
		slog.Int("queue_size", cfg.QueueSize),
		slog.Int("endpoints", len(endpoints)))

	return n, nil
}

// Notify queues an event for every matching endpoint. It never blocks; when
// the queue is full the drop policy decides which event is lost.
func (n *Notifier) Notify(_ context.Context, event any) error {
	ev, ok := event.(events.Event)
	if !ok {
		return ErrNotEvent
	}

	for _, ep := range n.endpoints {
		if !ep.matches(ev) {
			continue
		}
		n.enqueue(job{event: ev, endpoint: ep})
	}
	return nil
}

func (n *Notifier) enqueue(j job) {
	select {
	case n.queue <- j:
		return
	default:
	}

	if n.cfg.DropPolicy == "oldest" {
		select {
		case <-n.queue:
		default:
		}
		select {
		case n.queue <- j:
			return
		default:
		}
	}
	n.logger.Error("webhook queue full, event dropped",
		slog.String("event_type", j.event.Type()),
		slog.String("endpoint", j.endpoint.name))
}

func (ep endpoint) matches(ev events.Event) bool {
	if len(ep.events) > 0 && !ep.events[ev.Type()] {
		return false
	}
	if len(ep.destinations) == 0 || ev.Destination() == "" {
		return true
	}
	for _, pattern := range ep.destinations {
		if ok, _ := path.Match(pattern, ev.Destination()); ok {
			return true
		}
	}
	return false
}

func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case j := <-n.queue:
			n.process(j)
		}
	}
}

// process sends a job through its endpoint's breaker and schedules a retry
// with exponential backoff on failure.
func (n *Notifier) process(j job) {
	breaker := n.breakers[j.endpoint.name]
	_, err := breaker.Execute(func() (any, error) {
		return nil, n.send(j)
	})
	if err == nil {
		return
	}

	if j.attempt >= j.endpoint.retry.MaxAttempts-1 {
		n.logger.Error("webhook delivery failed after max retries",
			slog.String("endpoint", j.endpoint.name),
			slog.String("event_type", j.event.Type()),
			slog.Int("attempts", j.attempt+1),
			slog.String("error", err.Error()))
		return
	}

	j.attempt++
	delay := retryDelay(j.attempt, j.endpoint.retry)
	n.logger.Debug("webhook delivery failed, retrying",
		slog.String("endpoint", j.endpoint.name),
		slog.String("event_type", j.event.Type()),
		slog.Int("attempt", j.attempt),
		slog.Duration("retry_after", delay),
		slog.String("error", err.Error()))

	time.AfterFunc(delay, func() {
		if n.ctx.Err() != nil {
			return
		}
		select {
		case n.queue <- j:
		default:
			n.logger.Error("failed to requeue event for retry",
				slog.String("endpoint", j.endpoint.name),
				slog.String("event_type", j.event.Type()))
		}
	})
}

func (n *Notifier) send(j job) error {
	payload, err := json.Marshal(j.event.Wrap(n.nodeID))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(n.ctx, j.endpoint.timeout)
	defer cancel()

	if err := n.sender.Send(ctx, j.endpoint.url, j.endpoint.headers, payload, j.endpoint.timeout); err != nil {
		return err
	}

	n.logger.Debug("webhook delivered",
		slog.String("endpoint", j.endpoint.name),
		slog.String("event_type", j.event.Type()))
	return nil
}

func retryDelay(attempt int, cfg config.RetryConfig) time.Duration {
	delay := float64(cfg.InitialInterval) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxInterval > 0 && delay > float64(cfg.MaxInterval) {
		delay = float64(cfg.MaxInterval)
	}
	return time.Duration(delay)
}

// Close stops the workers, waiting up to the shutdown timeout.
func (n *Notifier) Close() error {
	n.logger.Info("shutting down webhook notifier")
	n.cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("webhook notifier stopped")
	case <-time.After(n.cfg.ShutdownTimeout):
		n.logger.Warn("webhook notifier shutdown timeout, some events may be lost",
			slog.Int("queue_depth", len(n.queue)))
	}
	return nil
}
