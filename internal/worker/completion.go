package worker

import (
	"context"
	"sync"
)

// Completion signals the end of the work started by one event.
type Completion struct {
	done   chan struct{}
	once   sync.Once
	report *PrefetchReport
	err    error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// completed returns a Completion that is already finished.
func completed(report *PrefetchReport, err error) *Completion {
	c := newCompletion()
	c.finish(report, err)
	return c
}

func (c *Completion) finish(report *PrefetchReport, err error) {
	c.once.Do(func() {
		c.report = report
		c.err = err
		close(c.done)
	})
}

// Done is closed once the work has finished.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Wait blocks until the work finishes or ctx is done. It returns the
// work's error, or ctx.Err() if ctx ended first. The work itself keeps
// running either way.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report returns the prefetch report once Done is closed. It is nil for
// ignored messages and while the work is still running.
func (c *Completion) Report() *PrefetchReport {
	select {
	case <-c.done:
		return c.report
	default:
		return nil
	}
}
