package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
	fail   bool
	closed bool
}

func (n *recordingNotifier) Notify(ctx context.Context, evt Event) error {
	if n.block != nil {
		select {
		case <-n.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("broker down")
	}
	n.events = append(n.events, evt)
	return nil
}

func (n *recordingNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, "test").WithWorkers(1)
	d.Start()

	for i := 0; i < 5; i++ {
		evt, err := NewEvent("order.created", "order-1", map[string]int{"n": i})
		require.NoError(t, err)
		assert.True(t, d.Publish(evt))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	assert.Equal(t, 5, rec.count())
	assert.True(t, rec.closed)
	assert.False(t, d.Publish(Event{Type: "late"}))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	rec := &recordingNotifier{block: make(chan struct{})}
	d := NewDispatcher(rec, "test").WithQueueSize(1).WithWorkers(1)

	// Not started: the queue holds exactly one event.
	assert.True(t, d.Publish(Event{Type: "a"}))
	assert.False(t, d.Publish(Event{Type: "b"}))

	close(rec.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, rec.count())
}

func TestDispatcherSwallowsDeliveryErrors(t *testing.T) {
	rec := &recordingNotifier{fail: true}
	d := NewDispatcher(rec, "test")
	d.Start()
	assert.True(t, d.Publish(Event{Type: "wallet.transfer"}))
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 0, rec.count())
}
