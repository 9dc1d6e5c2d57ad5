package runtime

import (
	"context"
	"log/slog"
)

// dispatcher runs handler callbacks one at a time, in submission order.
type dispatcher struct {
	queue  chan func()
	logger *slog.Logger
}

func newDispatcher(size int, logger *slog.Logger) *dispatcher {
	return &dispatcher{
		queue:  make(chan func(), size),
		logger: logger,
	}
}

// submit queues fn. It blocks while the queue is full and drops fn once
// ctx is done.
func (d *dispatcher) submit(ctx context.Context, fn func()) {
	select {
	case d.queue <- fn:
	case <-ctx.Done():
	}
}

// run executes queued callbacks until ctx is done.
func (d *dispatcher) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-d.queue:
			d.call(fn)
		}
	}
}

func (d *dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked", "panic", r)
		}
	}()
	fn()
}
