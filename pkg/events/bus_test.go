package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeliveryOrderGlobalThenKindSpecific(t *testing.T) {
	bus := New(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(tag string) Listener {
		return func(context.Context, Event) {
			mu.Lock()
			order = append(order, tag)
			mu.Unlock()
		}
	}
	bus.SubscribeAll(record("global"))
	bus.Subscribe(DeviceSelected, record("kind"))

	bus.Publish(DeviceSelected, nil)
	bus.Publish(DeviceSelected, nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"global", "kind", "global", "kind"}, order)
}

func TestDropOldestOnOverflow(t *testing.T) {
	bus := New(4)

	for i := 0; i < 10; i++ {
		bus.Publish(DeviceSelected, i)
	}
	require.Equal(t, uint64(6), bus.Stats().Dropped)
	require.Equal(t, uint64(10), bus.Stats().Published)

	var (
		mu       sync.Mutex
		received []int
	)
	bus.Subscribe(DeviceSelected, func(_ context.Context, ev Event) {
		mu.Lock()
		received = append(received, ev.Payload.(int))
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{6, 7, 8, 9}, received)
}

func TestListenerTimeoutExpiry(t *testing.T) {
	bus := New(4)
	bus.SetDeliveryTimeout(10 * time.Millisecond)

	blocked := make(chan struct{})
	bus.Subscribe(DeviceSelected, func(context.Context, Event) {
		time.Sleep(50 * time.Millisecond)
		close(blocked)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	bus.Publish(DeviceSelected, nil)

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("listener never ran")
	}

	// The counters are updated after the listener returns, which is just
	// after it closes blocked.
	require.Eventually(t, func() bool {
		return bus.Stats().ListenerTimeout == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, uint64(0), bus.Stats().Delivered)
}

func TestPanicIsolationDeliveredContinues(t *testing.T) {
	bus := New(4)

	var (
		mu  sync.Mutex
		ran int
	)
	bus.Subscribe(DeviceSelected, func(context.Context, Event) {
		panic("listener boom")
	})
	bus.Subscribe(DeviceSelected, func(context.Context, Event) {
		mu.Lock()
		ran++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	bus.Publish(DeviceSelected, nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran == 1
	}, time.Second, time.Millisecond)

	// Delivered is incremented after each listener returns, so it can lag
	// the ran counter briefly.
	require.Eventually(t, func() bool {
		return bus.Stats().Delivered == 2
	}, time.Second, time.Millisecond)
}
