// Package notify delivers plan events to downstream sinks: SNS for activity
// feeds, SES for accept/reject emails and Zeebe messages for running
// process instances.
package notify

import (
	"context"
	stderrors "errors"
	"sync"

	"payplan-workers/internal/common/logger"
	"payplan-workers/internal/common/metrics"
	"payplan-workers/internal/models"
)

// Sink receives plan events.
type Sink interface {
	Notify(ctx context.Context, event models.PlanEvent) error
}

// Multi fans an event out to every sink. All sinks are attempted; the
// returned error joins individual failures.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, event models.PlanEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Async delivers events on a background goroutine so callers never wait on
// a sink. Events are dropped when the buffer is full.
type Async struct {
	sink   Sink
	events chan models.PlanEvent
	logger logger.Logger
	name   string

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync starts the delivery goroutine. name labels drop metrics.
func NewAsync(sink Sink, name string, buffer int, log logger.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		sink:   sink,
		events: make(chan models.PlanEvent, buffer),
		logger: log.WithFields(map[string]interface{}{"component": "notify", "sink": name}),
		name:   name,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Notify enqueues event. It never blocks and never returns an error for a
// full buffer; the drop is logged and counted.
func (a *Async) Notify(_ context.Context, event models.PlanEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.NotificationsDropped.WithLabelValues(a.name).Inc()
		return nil
	}
	select {
	case a.events <- event:
	default:
		metrics.NotificationsDropped.WithLabelValues(a.name).Inc()
		a.logger.Warn("notification buffer full, dropping event", map[string]interface{}{
			"planId":  event.PlanID,
			"eventId": event.ID,
		})
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for event := range a.events {
		if err := a.sink.Notify(context.Background(), event); err != nil {
			metrics.NotificationsDropped.WithLabelValues(a.name).Inc()
			a.logger.Error("notification delivery failed", map[string]interface{}{
				"planId":  event.PlanID,
				"eventId": event.ID,
				"error":   err.Error(),
			})
		}
	}
}

// Close stops accepting events and waits until queued ones are delivered
// or ctx expires.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
