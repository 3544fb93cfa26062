package observation

import (
	"context"
	"time"
)

// Run drives the coordinator: it executes Exec requests, gateway completions and the
// periodic sweep on this goroutine until ctx is done or Close is called.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case fn := <-c.completions:
			fn()
		case req := <-c.requests:
			if req.start() {
				req.fn()
			}
			close(req.done)
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Exec runs fn on the loop goroutine and waits for it to finish.
// It is safe to call from other goroutines (e.g. command handlers).
// A non-nil error means fn did not run and never will; once fn has started, Exec
// waits for it regardless of ctx.
func (c *Coordinator) Exec(ctx context.Context, fn func()) error {
	req := &execReq{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- req:
	case <-c.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	var err error
	select {
	case <-req.done:
		return nil
	case <-c.stop:
		err = ErrStopped
	case <-ctx.Done():
		err = ctx.Err()
	}
	if req.abandon() {
		return err
	}
	<-req.done
	return nil
}

// Pump waits for one gateway completion and applies it on the calling goroutine.
// It is meant for callers that drive the coordinator without Run.
func (c *Coordinator) Pump(ctx context.Context) error {
	select {
	case fn := <-c.completions:
		fn()
		return nil
	case <-c.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops Run and the persistence worker. Queued gateway calls that have not
// started are abandoned.
func (c *Coordinator) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.worker.close()
	})
}
