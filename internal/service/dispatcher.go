package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher runs fire-and-forget work detached from the request that
// spawned it. Submitters get no result: failures are only logged, and
// delivery must not be assumed. A durable outbox would be needed for
// anything stronger.
type Dispatcher struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Go runs fn in the background with a context that outlives the request.
func (d *Dispatcher) Go(task string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("background task panicked", zap.String("task", task), zap.Any("panic", r))
			}
		}()

		if err := fn(context.Background()); err != nil {
			d.logger.Warn("background task failed", zap.String("task", task), zap.Error(err))
		}
	}()
}

// Wait blocks until every submitted task has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
