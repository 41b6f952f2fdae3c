// Package outputrouter implements the virtual-output discovery and
// routing component (spec.md §4.5): it locates an installed virtual-audio
// endpoint, writes frames to it at wall-clock rate, and recovers from
// hot-unplug via a periodic re-scan and bounded exponential backoff —
// generalized from the teacher's pkg/audio/backends/*'s single-shot
// device-open into a full state machine, since the teacher never had to
// survive a virtual driver disappearing mid-stream.
package outputrouter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/quietaudio/quiet/internal/backend"
	"github.com/quietaudio/quiet/internal/device"
	"github.com/quietaudio/quiet/pkg/audioframe"
	"github.com/quietaudio/quiet/pkg/events"
	"github.com/xaionaro-go/observability"
)

// hotPlugInterval is the re-scan period spec.md §4.5 specifies.
const hotPlugInterval = 2 * time.Second

// maxReconnectAttempts bounds the exponential backoff before Router gives
// up on the vanished device and falls back to Scanning.
const maxReconnectAttempts = 5

const (
	reconnectBaseDelay = 100 * time.Millisecond
	reconnectMaxDelay  = 5 * time.Second
)

// Router is the virtual-output discovery and routing state machine. The
// zero value is not usable; construct with New.
type Router struct {
	bk  backend.Backend
	bus *events.Bus

	mu           sync.Mutex
	state        State
	format       Format
	selected     *device.Descriptor
	stream       backend.OutputStream
	knownDevices map[string]device.Descriptor
	reconnecting bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats     statsTracker
	scratch   *audioframe.Frame
	interleaveBuf []float32

	levelMu          sync.Mutex
	lastLevelPublish time.Time
}

// New constructs a Router backed by bk, publishing lifecycle and error
// events on bus. bus may be nil in tests.
func New(bk backend.Backend, bus *events.Bus) *Router {
	return &Router{
		bk:           bk,
		bus:          bus,
		format:       DefaultFormat(),
		knownDevices: map[string]device.Descriptor{},
		scratch:      audioframe.New(0, 0, 0),
	}
}

// State returns the current state-machine node.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns a snapshot of the routing counters.
func (r *Router) Stats() Stats { return r.stats.snapshot() }

// Init starts the hot-plug scan goroutine and transitions Uninit ->
// Scanning. Idempotent.
func (r *Router) Init(ctx context.Context) error {
	r.mu.Lock()
	if r.state != Uninit {
		r.mu.Unlock()
		return nil
	}
	r.state = Scanning
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	observability.Go(runCtx, func() {
		defer r.wg.Done()
		r.scanLoop(runCtx)
	})
	return nil
}

// Shutdown stops the hot-plug goroutine, closes any open stream, and
// transitions to Uninit from any state. Idempotent.
func (r *Router) Shutdown(context.Context) error {
	r.mu.Lock()
	if r.state == Uninit {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.closeStreamLocked()
	r.state = Uninit
	r.selected = nil
	return err
}

// ListVirtualOutputs enumerates virtual-output devices from the backend.
func (r *Router) ListVirtualOutputs(ctx context.Context) ([]device.Descriptor, error) {
	all, err := r.bk.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("outputrouter: list devices: %w", err)
	}
	var outs []device.Descriptor
	for _, d := range all {
		if d.Kind == device.VirtualOutput {
			outs = append(outs, d)
		}
	}
	return outs, nil
}

// Select closes the current output (if any) and opens deviceID explicitly,
// publishing events.DeviceSelected on success or events.DeviceError on
// failure (spec.md §4.5).
func (r *Router) Select(ctx context.Context, deviceID string) error {
	outs, err := r.ListVirtualOutputs(ctx)
	if err != nil {
		return err
	}
	var found *device.Descriptor
	for i := range outs {
		if outs[i].ID == deviceID {
			found = &outs[i]
			break
		}
	}
	if found == nil {
		r.publishError(deviceID, fmt.Sprintf("unknown output device %q", deviceID))
		return fmt.Errorf("outputrouter: unknown device %q", deviceID)
	}
	return r.selectAndOpen(ctx, *found)
}

// selectAndOpen is the shared open path for both the explicit Select
// operation and the hot-plug loop's auto-selection when scanning finds a
// device (spec.md §4.5 state diagram: Scanning --device_found--> Selected
// --open_ok--> Idle / --open_fail--> Scanning).
func (r *Router) selectAndOpen(ctx context.Context, dev device.Descriptor) error {
	r.mu.Lock()
	if err := r.closeStreamLocked(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = Selected
	format := r.format
	r.mu.Unlock()

	stream, err := r.bk.OpenOutputStream(ctx, dev.ID, format.SampleRate, format.Channels, format.BufferSize)
	if err != nil {
		r.mu.Lock()
		r.state = Scanning
		r.mu.Unlock()
		r.publishError(dev.ID, fmt.Sprintf("open failed: %v", err))
		return fmt.Errorf("outputrouter: open %q: %w", dev.ID, err)
	}

	r.mu.Lock()
	r.stream = stream
	d := dev
	r.selected = &d
	r.state = Idle
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(events.DeviceSelected, events.DeviceSelectedPayload{Device: dev})
	}
	return nil
}

// SetFormat replaces the negotiated output format, reopening the current
// device if one is selected.
func (r *Router) SetFormat(ctx context.Context, sampleRate, bufferSize, channels int) error {
	if channels < 1 || channels > 2 {
		return fmt.Errorf("outputrouter: channels must be 1 or 2, got %d", channels)
	}
	if sampleRate <= 0 || bufferSize <= 0 {
		return fmt.Errorf("outputrouter: invalid format %d/%d", sampleRate, bufferSize)
	}
	r.mu.Lock()
	r.format = Format{SampleRate: sampleRate, BufferSize: bufferSize, Channels: channels}
	selected := r.selected
	r.mu.Unlock()
	if selected != nil {
		return r.selectAndOpen(ctx, *selected)
	}
	return nil
}

// StartRouting transitions Idle -> Routing.
func (r *Router) StartRouting() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Idle {
		return fmt.Errorf("outputrouter: cannot start routing from state %s", r.state)
	}
	r.state = Routing
	return nil
}

// StopRouting transitions Routing -> Idle.
func (r *Router) StopRouting() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Routing {
		return fmt.Errorf("outputrouter: cannot stop routing from state %s", r.state)
	}
	r.state = Idle
	return nil
}

// Route writes frame to the open output device, adapting channel count as
// needed. It never blocks on recovery: a write failure marks the buffer
// dropped and kicks off an asynchronous reconnect rather than retrying
// inline (spec.md §4.5, §7 WriteFailed).
func (r *Router) Route(ctx context.Context, frame *audioframe.Frame) error {
	r.mu.Lock()
	state := r.state
	format := r.format
	stream := r.stream
	r.mu.Unlock()

	if state != Routing || stream == nil {
		r.stats.recordDropped()
		return fmt.Errorf("outputrouter: not routing (state %s)", state)
	}

	if err := adaptInto(frame, format, r.scratch); err != nil {
		r.stats.recordDropped()
		return fmt.Errorf("outputrouter: %w", err)
	}
	r.interleaveBuf = r.scratch.InterleaveInto(r.interleaveBuf)

	level := peakAcrossChannels(r.scratch)

	start := time.Now()
	err := stream.Write(r.interleaveBuf)
	latencyMS := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		r.stats.recordDropped()
		r.beginReconnect(ctx)
		return fmt.Errorf("outputrouter: write failed: %w", err)
	}

	r.stats.recordRouted(latencyMS, level)

	r.levelMu.Lock()
	shouldPublish := time.Since(r.lastLevelPublish) >= levelPublishInterval
	if shouldPublish {
		r.lastLevelPublish = time.Now()
	}
	r.levelMu.Unlock()
	if shouldPublish && r.bus != nil {
		r.bus.Publish(events.AudioLevelOutput, events.AudioLevelPayload{Level: level})
	}
	return nil
}

// levelPublishInterval throttles AudioLevelOutput the same way InputEngine
// throttles AudioLevelInput (spec.md §4.3, applied symmetrically here).
const levelPublishInterval = 50 * time.Millisecond

func peakAcrossChannels(f *audioframe.Frame) float64 {
	var peak float64
	for ch := 0; ch < f.Channels(); ch++ {
		if p := f.PeakMagnitude(ch, 0, f.Samples()); p > peak {
			peak = p
		}
	}
	return peak
}

// beginReconnect transitions Routing -> Reconnecting, publishes
// RouterDisconnected, and spawns the backoff goroutine if one is not
// already running.
func (r *Router) beginReconnect(ctx context.Context) {
	r.mu.Lock()
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.state = Reconnecting
	dev := r.selected
	if r.stream != nil {
		_ = r.stream.Close()
		r.stream = nil
	}
	r.mu.Unlock()

	if r.bus != nil && dev != nil {
		r.bus.Publish(events.RouterDisconnected, events.RouterConnectionPayload{Device: *dev})
	}

	r.wg.Add(1)
	observability.Go(ctx, func() {
		defer r.wg.Done()
		r.reconnectLoop(ctx, dev)
	})
}

// reconnectLoop retries opening the same device id with exponential
// backoff capped at reconnectMaxDelay, up to maxReconnectAttempts, then
// falls back to Scanning for the hot-plug loop to pick up a replacement.
func (r *Router) reconnectLoop(ctx context.Context, dev *device.Descriptor) {
	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()
	if dev == nil {
		return
	}

	delay := reconnectBaseDelay
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		r.mu.Lock()
		format := r.format
		r.mu.Unlock()

		stream, err := r.bk.OpenOutputStream(ctx, dev.ID, format.SampleRate, format.Channels, format.BufferSize)
		if err == nil {
			r.mu.Lock()
			r.stream = stream
			r.state = Routing
			r.mu.Unlock()
			if r.bus != nil {
				r.bus.Publish(events.RouterConnected, events.RouterConnectionPayload{Device: *dev})
			}
			return
		}
		logger.Debugf(ctx, "outputrouter: reconnect attempt %d for %q failed: %v", attempt+1, dev.ID, err)

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}

	r.mu.Lock()
	r.state = Scanning
	r.selected = nil
	r.mu.Unlock()
}

func (r *Router) closeStreamLocked() error {
	if r.stream == nil {
		return nil
	}
	err := r.stream.Close()
	r.stream = nil
	if err != nil {
		return fmt.Errorf("outputrouter: close stream: %w", err)
	}
	return nil
}

func (r *Router) publishError(deviceID, message string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.DeviceError, events.DeviceErrorPayload{DeviceID: deviceID, Message: message})
}
