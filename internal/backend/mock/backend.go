// Package mock implements an in-memory Backend used by InputEngine,
// Denoiser, and OutputRouter tests to exercise device enumeration,
// hot-plug, and failure-injection scenarios (spec.md §8 scenario 7)
// without a real sound card. It is not registered in the global backend
// registry — tests construct it directly.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/quietaudio/quiet/internal/backend"
	"github.com/quietaudio/quiet/internal/device"
)

// Backend is a test double that serves a fixed, mutable device list and
// records every stream it opens so a test can inspect or fail them.
type Backend struct {
	mu            sync.Mutex
	devices       []device.Descriptor
	pingErr       error
	inputStreams  map[string]*Stream
	outputStreams map[string]*Stream
}

var _ backend.Backend = (*Backend)(nil)

func New(devices ...device.Descriptor) *Backend {
	return &Backend{devices: devices}
}

func (*Backend) Name() string { return "mock" }

func (b *Backend) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pingErr
}

// SetPingError makes subsequent Ping calls fail, simulating the backend
// itself going away.
func (b *Backend) SetPingError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pingErr = err
}

// SetDevices replaces the device list returned by ListDevices, simulating
// hot-plug/hot-unplug for OutputRouter's scan loop.
func (b *Backend) SetDevices(devices ...device.Descriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = devices
}

func (b *Backend) ListDevices(context.Context) ([]device.Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]device.Descriptor, len(b.devices))
	copy(out, b.devices)
	return out, nil
}

func (b *Backend) findDevice(id string) (device.Descriptor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.devices {
		if d.ID == id {
			return d, true
		}
	}
	return device.Descriptor{}, false
}

func (b *Backend) OpenInputStream(ctx context.Context, deviceID string, sampleRate, channels, bufferSize int) (backend.InputStream, error) {
	if _, ok := b.findDevice(deviceID); !ok {
		return nil, fmt.Errorf("mock: no device %q", deviceID)
	}
	s := &Stream{size: channels * bufferSize}
	b.mu.Lock()
	if b.inputStreams == nil {
		b.inputStreams = map[string]*Stream{}
	}
	b.inputStreams[deviceID] = s
	b.mu.Unlock()
	return s, nil
}

func (b *Backend) OpenOutputStream(ctx context.Context, deviceID string, sampleRate, channels, bufferSize int) (backend.OutputStream, error) {
	if _, ok := b.findDevice(deviceID); !ok {
		return nil, fmt.Errorf("mock: no device %q", deviceID)
	}
	s := &Stream{size: channels * bufferSize}
	b.mu.Lock()
	if b.outputStreams == nil {
		b.outputStreams = map[string]*Stream{}
	}
	b.outputStreams[deviceID] = s
	b.mu.Unlock()
	return s, nil
}

// LastOutputStream returns the most recently opened output Stream for
// deviceID, letting a test inject a write failure into the exact stream a
// component under test is holding (spec.md §8 scenario 7).
func (b *Backend) LastOutputStream(deviceID string) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputStreams[deviceID]
}

// LastInputStream returns the most recently opened input Stream for
// deviceID, letting a test feed it captured samples.
func (b *Backend) LastInputStream(deviceID string) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputStreams[deviceID]
}

// Stream is both a mock InputStream and a mock OutputStream. Read yields
// silence unless Feed has queued samples. Write records every buffer
// written and can be made to fail after N writes, for OutputRouter's
// reconnect test (spec.md §8 scenario 7).
type Stream struct {
	mu         sync.Mutex
	size       int
	closed     bool
	feed       [][]float32
	written    [][]float32
	failAfter  int
	writeCount int
}

var _ backend.InputStream = (*Stream)(nil)
var _ backend.OutputStream = (*Stream)(nil)

// Feed queues one buffer of samples to be returned by the next Read call.
func (s *Stream) Feed(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]float32, len(samples))
	copy(buf, samples)
	s.feed = append(s.feed, buf)
}

// FailAfter lets the first n Write calls succeed and makes every later
// Write call return an error, simulating a device write failure (e.g. the
// virtual-output driver unloading).
func (s *Stream) FailAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
}

// Written returns every buffer accepted by Write so far.
func (s *Stream) Written() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]float32, len(s.written))
	copy(out, s.written)
	return out
}

func (s *Stream) Read(out []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: stream closed")
	}
	if len(s.feed) > 0 {
		n := copy(out, s.feed[0])
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		s.feed = s.feed[1:]
		return nil
	}
	for i := range out {
		out[i] = 0
	}
	return nil
}

func (s *Stream) Write(in []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: stream closed")
	}
	s.writeCount++
	if s.failAfter > 0 && s.writeCount > s.failAfter {
		return fmt.Errorf("mock: injected write failure at call %d", s.writeCount)
	}
	buf := make([]float32, len(in))
	copy(buf, in)
	s.written = append(s.written, buf)
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
