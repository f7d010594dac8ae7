// README: Poll and drain loops, run as two independently cancellable tasks.
package jobs

import (
	"context"
	"errors"
	"time"
)

var ErrAlreadyStarted = errors.New("jobs: controller already started")

type task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

func startTask(parent context.Context, name string, run func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(parent)
	t := &task{name: name, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		run(ctx)
	}()
	return t
}

func (t *task) stop() {
	t.cancel()
	<-t.done
}

// RunPolling loads once, then every poll interval while polling is enabled.
// Loads never overlap because each runs inside the loop.
func (c *Controller) RunPolling(ctx context.Context) {
	c.Load(ctx)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.PollingEnabled() {
				c.Load(ctx)
			}
		}
	}
}

// RunDrain replays the mutation queue every drain interval.
func (c *Controller) RunDrain(ctx context.Context) {
	ticker := time.NewTicker(c.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.queue.Len() == 0 {
				continue
			}
			_, _ = c.Drain(ctx)
		}
	}
}

// Start launches the poll and drain tasks. They run until Stop or until ctx
// ends.
func (c *Controller) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if len(c.tasks) > 0 {
		return ErrAlreadyStarted
	}
	c.tasks = []*task{
		startTask(ctx, "poll", c.RunPolling),
		startTask(ctx, "drain", c.RunDrain),
	}
	c.log.InfoContext(ctx, "job list session started",
		"poll_interval", c.pollInterval, "drain_interval", c.drainInterval)
	return nil
}

// Stop cancels both tasks and waits for them to return. Safe to call twice.
func (c *Controller) Stop() {
	c.runMu.Lock()
	tasks := c.tasks
	c.tasks = nil
	c.runMu.Unlock()
	for _, t := range tasks {
		t.stop()
		c.log.Debug("task stopped", "task", t.name)
	}
}
