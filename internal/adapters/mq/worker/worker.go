// Package worker runs the single dispatcher loop that drains the trigger queue.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/internal/domain/session"
	"github.com/okian/sectorclock/pkg/logger"
	"github.com/okian/sectorclock/pkg/metrics"
)

// Queue defines how the loop receives triggers.
type Queue interface {
	Dequeue() <-chan model.Trigger
}

// Dispatcher applies one trigger.
type Dispatcher interface {
	Dispatch(ctx context.Context, t model.Trigger) session.Result
}

// Loop is the only consumer of the queue, so triggers are applied in order.
type Loop struct {
	queue      Queue
	dispatcher Dispatcher
	name       string
	onResult   func(model.Trigger, session.Result)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// New creates a dispatcher loop.
func New(q Queue, d Dispatcher, opts ...Option) *Loop {
	l := &Loop{
		queue:      q,
		dispatcher: d,
		name:       "dispatcher",
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named(l.name)
	}
	return l
}

// Run consumes triggers until the queue is closed and drained, ctx is
// cancelled, or Shutdown is called. A trigger already being dispatched always
// runs to completion.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	triggers := l.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		case t, ok := <-triggers:
			if !ok {
				l.logger.Info(ctx, "queue closed; dispatcher loop exiting")
				return
			}
			l.process(ctx, t)
		}
	}
}

func (l *Loop) process(ctx context.Context, t model.Trigger) {
	start := time.Now()
	// Cancellation must not interrupt a trigger mid-mutation or mid-persist.
	res := l.dispatcher.Dispatch(context.WithoutCancel(ctx), t)
	metrics.RecordDispatchLatency(t.Kind.String(), res.Outcome.String(), float64(time.Since(start).Milliseconds()))

	if l.onResult != nil {
		l.onResult(t, res)
	}
}

// Wait blocks until Run returns, for example after the queue is closed.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher drain timed out: %w", ctx.Err())
	}
}

// Shutdown stops the loop after the in-flight trigger and waits for it.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() { close(l.shutdown) })

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
