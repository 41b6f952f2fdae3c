// Package inputengine implements the capture-device acquisition and
// callback runtime (spec.md §4.3). It enumerates and opens capture
// devices through an internal/backend.Backend and delivers fixed-size
// multi-channel frames to a registered callback on a dedicated goroutine
// that stands in for the host's real-time audio thread — the same role
// the teacher's RecorderPCM.startReadingLoop plays for its byte-stream
// Recorder, generalized here to planar frames and a caller-supplied
// callback instead of a channel of []byte chunks.
package inputengine

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
	"github.com/quietaudio/quiet/pkg/ringbuffer"
	"github.com/xaionaro-go/observability"
)

// framePoolSize is how many pre-allocated frames circulate through the
// capture loop's ringbuffer.Ring free list (spec.md §3: "created by
// InputEngine (one pooled frame per callback)"). The capture goroutine is
// both the ring's sole producer and sole consumer here — it pops a frame,
// fills and delivers it, then pushes it back onto the free list before the
// next iteration — so depletion never happens, but the pool still gives
// each callback an independently-owned frame rather than one frame mutated
// in place forever, matching AudioFrame's move-only ownership discipline
// (spec.md §3 Ownership summary).
const framePoolSize = 3

// Callback is invoked once per captured buffer with a frame view owned by
// the engine for the duration of the call (spec.md §4.3 callback
// contract): it must not block, allocate, or retain frame beyond the call,
// but may mutate it in place.
type Callback func(frame *audioframe.Frame)

// Engine is the capture-device acquisition and delivery runtime. The zero
// value is not usable; construct with New.
type Engine struct {
	bk  backend.Backend
	bus *events.Bus

	mu       sync.Mutex
	format   Format
	selected *device.Descriptor
	stream   backend.InputStream
	running  bool
	muted    bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	callback Callback

	levelMu          sync.Mutex
	level            float64
	lastLevelPublish time.Time

	framePool *ringbuffer.Ring[*audioframe.Frame]
	buf       []float32
}

// New constructs an Engine backed by bk, publishing lifecycle and level
// events on bus. bus may be nil in tests.
func New(bk backend.Backend, bus *events.Bus) *Engine {
	return &Engine{bk: bk, bus: bus, format: DefaultFormat()}
}

// Init is a no-op placeholder matching spec.md §4.3's init/shutdown pair;
// backend construction happens in New (mirrors backend.NewAuto already
// having pinged the host API by the time an Engine is handed a Backend).
// Idempotent.
func (e *Engine) Init(context.Context) error { return nil }

// Shutdown stops capture (if running) and releases the current device.
// Idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	_ = e.Stop(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeStreamLocked()
}

// ListInputs enumerates capture devices from the backend.
func (e *Engine) ListInputs(ctx context.Context) ([]device.Descriptor, error) {
	all, err := e.bk.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("inputengine: list devices: %w", err)
	}
	var inputs []device.Descriptor
	for _, d := range all {
		if d.Kind == device.PhysicalInput {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}

// Select closes the current device (if any) and selects deviceID, publishing
// events.DeviceSelected on success or events.DeviceError on failure. If
// capture was running it is restarted on deviceID at once; otherwise the
// device is opened by the next Start. Selecting an unknown id is an error
// (spec.md §4.3).
func (e *Engine) Select(ctx context.Context, deviceID string) error {
	inputs, err := e.ListInputs(ctx)
	if err != nil {
		return err
	}
	var found *device.Descriptor
	for i := range inputs {
		if inputs[i].ID == deviceID {
			found = &inputs[i]
			break
		}
	}
	if found == nil {
		e.publishError(deviceID, fmt.Sprintf("unknown input device %q", deviceID))
		return fmt.Errorf("inputengine: unknown device %q", deviceID)
	}

	e.mu.Lock()
	wasRunning := e.running
	e.mu.Unlock()
	if wasRunning {
		// Stop the capture goroutine first so the Start below reopens
		// rather than returning early on a still-running engine.
		_ = e.Stop(ctx)
	}
	e.mu.Lock()
	if err := e.closeStreamLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	channels := found.MaxChannels
	if channels > 2 {
		channels = 2
	}
	if channels < 1 {
		channels = 1
	}
	e.format.Channels = channels
	e.selected = found
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(events.DeviceSelected, events.DeviceSelectedPayload{Device: *found})
	}

	if wasRunning {
		return e.Start(ctx)
	}
	return nil
}

// SetFormat validates and applies sampleRate/bufferSize (spec.md §4.3),
// reopening the device if capture is currently running.
func (e *Engine) SetFormat(ctx context.Context, sampleRate, bufferSize int) error {
	if err := validateFormat(sampleRate, bufferSize); err != nil {
		return err
	}
	e.mu.Lock()
	wasRunning := e.running
	e.mu.Unlock()
	if wasRunning {
		_ = e.Stop(ctx)
	}
	e.mu.Lock()
	if err := e.closeStreamLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.format.SampleRate = sampleRate
	e.format.BufferSize = bufferSize
	e.mu.Unlock()

	if wasRunning {
		return e.Start(ctx)
	}
	return nil
}

// SetCallback registers fn to receive every captured frame. Replacing the
// callback while running takes effect on the next captured buffer.
func (e *Engine) SetCallback(fn Callback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = fn
}

// SetMuted mutes/unmutes capture; muted frames are delivered as silence
// (the level meter and callback both still run, keeping downstream state
// like Denoiser queues advancing rather than stalling on mute).
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = muted
}

// IsMuted reports the current mute state.
func (e *Engine) IsMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// InputLevel returns the smoothed 0..1 capture level.
func (e *Engine) InputLevel() float64 {
	e.levelMu.Lock()
	defer e.levelMu.Unlock()
	return e.level
}

// Start opens the selected device (if not already open) and begins
// delivering frames on a dedicated capture goroutine, publishing
// events.ProcessingStarted. Idempotent while already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	if e.selected == nil {
		e.mu.Unlock()
		return fmt.Errorf("inputengine: no device selected")
	}
	if e.stream == nil {
		stream, err := e.bk.OpenInputStream(ctx, e.selected.ID, e.format.SampleRate, e.format.Channels, e.format.BufferSize)
		if err != nil {
			e.mu.Unlock()
			e.publishError(e.selected.ID, fmt.Sprintf("open failed: %v", err))
			return fmt.Errorf("inputengine: open %q: %w", e.selected.ID, err)
		}
		e.stream = stream
	}
	pool := ringbuffer.New[*audioframe.Frame](framePoolSize + 1)
	for i := 0; i < framePoolSize; i++ {
		_ = pool.Push(audioframe.New(e.format.Channels, e.format.BufferSize, e.format.SampleRate))
	}
	e.framePool = pool
	e.buf = make([]float32, e.format.Channels*e.format.BufferSize)

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.wg.Add(1)
	stream := e.stream
	buf := e.buf
	e.mu.Unlock()

	observability.Go(runCtx, func() {
		defer e.wg.Done()
		e.captureLoop(runCtx, stream, pool, buf)
	})

	if e.bus != nil {
		e.bus.Publish(events.ProcessingStarted, nil)
	}
	return nil
}

// Stop halts the capture goroutine and publishes events.ProcessingStopped.
// Idempotent.
func (e *Engine) Stop(context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()

	if e.bus != nil {
		e.bus.Publish(events.ProcessingStopped, nil)
	}
	return nil
}

// closeStreamLocked stops capture state and closes the open stream, if
// any. Caller must hold e.mu.
func (e *Engine) closeStreamLocked() error {
	if e.stream == nil {
		return nil
	}
	err := e.stream.Close()
	e.stream = nil
	if err != nil {
		return fmt.Errorf("inputengine: close stream: %w", err)
	}
	return nil
}

// captureLoop is the surrogate real-time audio thread: it blocks on
// stream.Read, deinterleaves into a frame drawn from pool, updates the
// level meter, and invokes the registered callback — allocation-free
// after Start, matching spec.md §5's "audio thread performs no
// allocation" requirement. The frame is returned to pool before the next
// iteration; this goroutine is both the pool's sole producer and sole
// consumer, so Pop never blocks on an empty ring in steady state.
func (e *Engine) captureLoop(ctx context.Context, stream backend.InputStream, pool *ringbuffer.Ring[*audioframe.Frame], buf []float32) {
	deviceID := ""
	e.mu.Lock()
	if e.selected != nil {
		deviceID = e.selected.ID
	}
	e.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(buf); err != nil {
			logger.Errorf(ctx, "inputengine: read failed on %q: %v", deviceID, err)
			e.publishError(deviceID, fmt.Sprintf("read failed: %v", err))
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			return
		}

		frame, err := pool.Pop()
		if err != nil {
			// The pool is exhausted only if a prior callback retained a
			// frame past its call, violating the callback contract
			// (spec.md §4.3); fall back to a fresh allocation rather than
			// stalling capture.
			frame = audioframe.New(e.formatChannels(), e.formatBufferSize(), 0)
		}
		frame.DeinterleaveFrom(buf, e.formatChannels(), e.formatBufferSize())

		e.mu.Lock()
		muted := e.muted
		cb := e.callback
		e.mu.Unlock()

		instant := computeLevel(frame)
		e.levelMu.Lock()
		e.level = emaLevel(e.level, instant)
		level := e.level
		shouldPublish := time.Since(e.lastLevelPublish) >= levelPublishInterval
		if shouldPublish {
			e.lastLevelPublish = time.Now()
		}
		e.levelMu.Unlock()
		if shouldPublish && e.bus != nil {
			e.bus.Publish(events.AudioLevelInput, events.AudioLevelPayload{Level: level})
		}

		if muted {
			frame.Clear()
		}
		if cb != nil {
			cb(frame)
		}
		_ = pool.Push(frame)
	}
}

func (e *Engine) formatChannels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format.Channels
}

func (e *Engine) formatBufferSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.format.BufferSize
}

// levelPublishInterval throttles AudioLevelInput to at most one event per
// 50ms (spec.md §4.3).
const levelPublishInterval = 50 * time.Millisecond

func (e *Engine) publishError(deviceID, message string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.DeviceError, events.DeviceErrorPayload{DeviceID: deviceID, Message: message})
}
