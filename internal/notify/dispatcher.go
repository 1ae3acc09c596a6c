package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/partner-settlement/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultQueueSize     = 1024
	defaultWorkers       = 2
	defaultNotifyTimeout = 5 * time.Second
)

// Dispatcher fans events out to a Notifier from a bounded queue. Publish never blocks:
// a full queue drops the event with a warning.
type Dispatcher struct {
	notifier Notifier
	backend  string
	timeout  time.Duration
	workers  int
	queue    chan Event

	startOnce sync.Once
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

func NewDispatcher(notifier Notifier, backend string) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		backend:  backend,
		timeout:  defaultNotifyTimeout,
		workers:  defaultWorkers,
		queue:    make(chan Event, defaultQueueSize),
	}
}

// WithQueueSize must be called before Start.
func (d *Dispatcher) WithQueueSize(size int) *Dispatcher {
	if size > 0 {
		d.queue = make(chan Event, size)
	}
	return d
}

func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// Start launches the delivery goroutines. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.loop()
		}
	})
}

// Publish enqueues evt. It returns false when the event was dropped.
func (d *Dispatcher) Publish(evt Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- evt:
		return true
	default:
		observability.IncrementNotification(d.backend, "dropped")
		zap.L().Warn("notification queue full, dropping event",
			zap.String("type", evt.Type),
			zap.String("event_id", evt.ID.String()),
		)
		return false
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for evt := range d.queue {
		d.deliver(evt)
	}
}

func (d *Dispatcher) deliver(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.notifier.Notify(ctx, evt); err != nil {
		observability.IncrementNotification(d.backend, "error")
		zap.L().Error("notification delivery failed",
			zap.Error(err),
			zap.String("backend", d.backend),
			zap.String("type", evt.Type),
			zap.String("event_id", evt.ID.String()),
		)
		return
	}
	observability.IncrementNotification(d.backend, "sent")
}

// Close stops accepting events, drains the queue until ctx ends, then closes the notifier.
func (d *Dispatcher) Close(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		d.Start()
		drained := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			zap.L().Warn("notification drain interrupted", zap.Int("pending", len(d.queue)))
		}
		err = d.notifier.Close()
	})
	return err
}
