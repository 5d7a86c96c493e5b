package values

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Saver persists one batch of pending values. Implementations are expected
// to return nil only when the backend acknowledged the batch.
type Saver interface {
	Save(ctx context.Context, pending map[string]any) error
}

// SaverFunc adapts a function into a Saver.
type SaverFunc func(ctx context.Context, pending map[string]any) error

// Save delegates to the underlying function.
func (fn SaverFunc) Save(ctx context.Context, pending map[string]any) error {
	return fn(ctx, pending)
}

// FlusherOption customises a Flusher.
type FlusherOption func(*Flusher)

// WithInterval sets the tick interval between flush attempts.
func WithInterval(d time.Duration) FlusherOption {
	return func(f *Flusher) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithFlushLogger injects the logger used for flush failures.
func WithFlushLogger(logger *slog.Logger) FlusherOption {
	return func(f *Flusher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

const defaultFlushInterval = 5 * time.Second

// Flusher drains the queue to a Saver on a fixed interval. It owns the
// at-most-one-in-flight state: a tick that arrives while a batch is
// outstanding is skipped entirely, not queued, so mutations accumulated
// during the request fold into the next tick. Failed batches stay queued
// and are retried on the next tick.
type Flusher struct {
	queue    *Queue
	saver    Saver
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight bool
	stopped  bool
	stop     chan struct{}
	stopOnce sync.Once
}

// NewFlusher constructs a Flusher over a queue and saver.
func NewFlusher(queue *Queue, saver Saver, opts ...FlusherOption) *Flusher {
	f := &Flusher{
		queue:    queue,
		saver:    saver,
		interval: defaultFlushInterval,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Run ticks until the context is cancelled or Stop is called. It is
// intended to run on its own goroutine; Flush itself never blocks on a
// previous batch.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Stop permanently disables the flusher. Used on session expiry: no further
// batches are initiated, though an already in-flight batch completes.
func (f *Flusher) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stop) })
}

// Stopped reports whether the flusher has been disabled.
func (f *Flusher) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// Flush attempts one batch. It reports whether a batch was sent and
// acknowledged. A call that finds a batch already in flight, an empty
// queue, or a stopped flusher does nothing.
func (f *Flusher) Flush(ctx context.Context) bool {
	f.mu.Lock()
	if f.stopped || f.inFlight {
		f.mu.Unlock()
		return false
	}
	batch := f.queue.Take()
	if len(batch) == 0 {
		f.mu.Unlock()
		return false
	}
	f.inFlight = true
	f.mu.Unlock()

	err := f.saver.Save(ctx, batch)

	f.mu.Lock()
	f.inFlight = false
	f.mu.Unlock()

	if err != nil {
		f.logger.Warn("values: flush failed, batch retained for retry",
			"entries", len(batch), "error", err)
		return false
	}
	f.queue.Ack(batch)
	return true
}

// InFlight reports whether a batch is currently outstanding.
func (f *Flusher) InFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}
