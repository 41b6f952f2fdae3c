// Package events implements the asynchronous typed pub/sub bus that glues
// the capture, denoise, and routing components together. A single serial
// dispatch goroutine pulls from a bounded, drop-oldest queue and invokes
// matching listeners in registration order; each delivery carries a
// deadline in its context, and a listener must observe it for the bound to
// hold: one that ignores it stalls the bus until it returns.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/xaionaro-go/observability"
)

// Kind identifies the shape of an Event's Payload.
type Kind int

const (
	DeviceListChanged Kind = iota
	DeviceSelected
	DeviceError
	AudioLevelInput
	AudioLevelOutput
	ProcessingStarted
	ProcessingStopped
	NoiseReductionChanged
	RouterConnected
	RouterDisconnected
	ConfigChanged
	Fatal

	numKinds
)

func (k Kind) String() string {
	switch k {
	case DeviceListChanged:
		return "DeviceListChanged"
	case DeviceSelected:
		return "DeviceSelected"
	case DeviceError:
		return "DeviceError"
	case AudioLevelInput:
		return "AudioLevelInput"
	case AudioLevelOutput:
		return "AudioLevelOutput"
	case ProcessingStarted:
		return "ProcessingStarted"
	case ProcessingStopped:
		return "ProcessingStopped"
	case NoiseReductionChanged:
		return "NoiseReductionChanged"
	case RouterConnected:
		return "RouterConnected"
	case RouterDisconnected:
		return "RouterDisconnected"
	case ConfigChanged:
		return "ConfigChanged"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Event is a published notification: a Kind tag plus a payload whose
// concrete type is conventionally tied to Kind (see payloads.go) and the
// time it was created.
type Event struct {
	Kind      Kind
	Payload   any
	CreatedAt time.Time
}

// Listener receives dispatched events on the single serial dispatch
// goroutine. ctx carries the per-delivery timeout (SetDeliveryTimeout): a
// listener that blocks must observe ctx.Done() and return promptly, since
// nothing else preempts it — the dispatcher does not spawn a goroutine per
// delivery, so a listener that ignores ctx stalls every later listener and
// every queued event behind it. It must not panic across the dispatcher
// boundary; panics are recovered and logged, but a panicking listener is
// indistinguishable from a misbehaving one and should be fixed.
type Listener func(ctx context.Context, ev Event)

// Handle identifies a registered listener for Unsubscribe.
type Handle uuid.UUID

const defaultDeliveryTimeout = 50 * time.Millisecond

type subscription struct {
	handle   Handle
	kind     Kind // ignored when isAll
	isAll    bool
	listener Listener
}

// Stats snapshots the bus's lifetime counters. Safe for concurrent read.
type Stats struct {
	Published       uint64
	Delivered       uint64
	Dropped         uint64
	ListenerTimeout uint64
	ListenerCount   int
	EMADeliveryMS   float64
}

// Bus is the asynchronous event dispatcher. The zero value is not usable;
// construct with New.
type Bus struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	queue          []Event
	capacity       int
	running        bool
	wg             sync.WaitGroup
	notEmpty       chan struct{}
	deliveryTimeout time.Duration

	subsMu   sync.Mutex
	allSubs  []subscription
	bySubs   map[Kind][]subscription
	filtered map[Kind]bool

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Bus with a bounded queue of the given capacity (events
// beyond capacity cause the oldest queued event to be dropped).
func New(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		capacity:        capacity,
		bySubs:          make(map[Kind][]subscription),
		filtered:        make(map[Kind]bool),
		deliveryTimeout: defaultDeliveryTimeout,
		notEmpty:        make(chan struct{}, 1),
	}
}

// SetDeliveryTimeout sets the deadline attached to each listener
// invocation's context. The dispatcher does not abandon a running
// listener: it waits for it to return, and counts an invocation that
// returned after the deadline as a ListenerTimeout instead of Delivered.
func (b *Bus) SetDeliveryTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveryTimeout = d
}

// Start is idempotent; it spawns the serial dispatch goroutine.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.running = true
	b.wg.Add(1)
	observability.Go(b.ctx, func() {
		defer b.wg.Done()
		b.dispatchLoop(b.ctx)
	})
}

// Stop is idempotent; it signals the dispatch goroutine, joins it, and
// drops any events still queued.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	b.wg.Wait()

	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()
}

// Publish enqueues an event for async delivery on the dispatch goroutine.
// If the queue is at capacity, the oldest queued event is dropped to make
// room and the dropped counter is incremented. A filtered kind is rejected
// silently (it is neither queued nor counted as dropped).
func (b *Bus) Publish(kind Kind, payload any) {
	b.subsMu.Lock()
	isFiltered := b.filtered[kind]
	b.subsMu.Unlock()
	if isFiltered {
		return
	}

	ev := Event{Kind: kind, Payload: payload, CreatedAt: now()}

	b.mu.Lock()
	if len(b.queue) >= b.capacity {
		b.queue = b.queue[1:]
		b.statsMu.Lock()
		b.stats.Dropped++
		b.statsMu.Unlock()
	}
	b.queue = append(b.queue, ev)
	b.statsMu.Lock()
	b.stats.Published++
	b.statsMu.Unlock()
	b.mu.Unlock()

	select {
	case b.notEmpty <- struct{}{}:
	default:
	}
}

// PublishImmediate delivers the event inline on the calling goroutine,
// bypassing the queue entirely. Listener panics are still recovered.
func (b *Bus) PublishImmediate(kind Kind, payload any) {
	b.subsMu.Lock()
	isFiltered := b.filtered[kind]
	b.subsMu.Unlock()
	if isFiltered {
		return
	}
	ev := Event{Kind: kind, Payload: payload, CreatedAt: now()}
	b.statsMu.Lock()
	b.stats.Published++
	b.statsMu.Unlock()
	b.deliver(context.Background(), ev)
}

func now() time.Time { return time.Now() }

// SetFilter enables or disables delivery of a kind at publish time.
func (b *Bus) SetFilter(kind Kind, enabled bool) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.filtered[kind] = !enabled
}

// Subscribe registers a listener for one kind, invoked after all
// subscribe-all listeners, in registration order among same-kind listeners.
func (b *Bus) Subscribe(kind Kind, l Listener) Handle {
	h := Handle(uuid.New())
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.bySubs[kind] = append(b.bySubs[kind], subscription{handle: h, kind: kind, listener: l})
	return h
}

// SubscribeAll registers a listener invoked for every kind, before
// kind-specific listeners.
func (b *Bus) SubscribeAll(l Listener) Handle {
	h := Handle(uuid.New())
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.allSubs = append(b.allSubs, subscription{handle: h, isAll: true, listener: l})
	return h
}

// Unsubscribe removes a previously registered listener. Unknown handles are
// a no-op.
func (b *Bus) Unsubscribe(h Handle) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for i, s := range b.allSubs {
		if s.handle == h {
			b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
			return
		}
	}
	for kind, subs := range b.bySubs {
		for i, s := range subs {
			if s.handle == h {
				b.bySubs[kind] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Stats returns a snapshot of the bus's lifetime counters.
func (b *Bus) Stats() Stats {
	b.statsMu.Lock()
	s := b.stats
	b.statsMu.Unlock()

	b.subsMu.Lock()
	count := len(b.allSubs)
	for _, subs := range b.bySubs {
		count += len(subs)
	}
	b.subsMu.Unlock()
	s.ListenerCount = count
	return s
}

// ResetStats zeroes the counters (not the EMA, which decays naturally).
func (b *Bus) ResetStats() {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.stats.Published, b.stats.Delivered, b.stats.Dropped, b.stats.ListenerTimeout = 0, 0, 0, 0
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	for {
		ev, ok := b.popOrWait(ctx)
		if !ok {
			return
		}
		b.deliver(ctx, ev)
	}
}

func (b *Bus) popOrWait(ctx context.Context) (Event, bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return ev, true
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero Event
			return zero, false
		case <-b.notEmpty:
		}
	}
}

func (b *Bus) deliver(ctx context.Context, ev Event) {
	b.subsMu.Lock()
	listeners := make([]Listener, 0, len(b.allSubs)+len(b.bySubs[ev.Kind]))
	for _, s := range b.allSubs {
		listeners = append(listeners, s.listener)
	}
	for _, s := range b.bySubs[ev.Kind] {
		listeners = append(listeners, s.listener)
	}
	b.subsMu.Unlock()

	b.mu.Lock()
	timeout := b.deliveryTimeout
	b.mu.Unlock()

	for _, l := range listeners {
		b.deliverOne(ctx, l, ev, timeout)
	}

	latencyMS := float64(time.Since(ev.CreatedAt)) / float64(time.Millisecond)
	b.statsMu.Lock()
	b.stats.EMADeliveryMS = deliveryEMAAlpha*latencyMS + (1-deliveryEMAAlpha)*b.stats.EMADeliveryMS
	b.statsMu.Unlock()
}

// deliveryEMAAlpha smooths Stats.EMADeliveryMS, the publish-to-delivered
// latency of each event.
const deliveryEMAAlpha = 0.1

// deliverOne invokes l on the caller's goroutine (the single dispatch
// goroutine) with a per-delivery deadline attached to ctx. There is no
// second goroutine racing it: the timeout is cooperative, not preemptive —
// l is expected to observe ctx.Done() and return if it would otherwise
// block past timeout. This is the "single dispatch thread with a
// cooperative timeout" delivery model spec.md calls for, as opposed to a
// spawned throwaway goroutine per listener call, which would be wasteful
// and reorder events.
func (b *Bus) deliverOne(ctx context.Context, l Listener, ev Event, timeout time.Duration) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf(ctx, "events: listener panicked on %v: %v", ev.Kind, r)
			}
		}()
		l(dctx, ev)
	}()

	b.statsMu.Lock()
	if dctx.Err() == context.DeadlineExceeded {
		b.stats.ListenerTimeout++
	} else {
		b.stats.Delivered++
	}
	b.statsMu.Unlock()
	if dctx.Err() == context.DeadlineExceeded {
		logger.Warnf(ctx, "events: listener exceeded delivery timeout %v on %v", timeout, ev.Kind)
	}
}
