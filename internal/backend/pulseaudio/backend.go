// Package pulseaudio implements the secondary, Linux-only capture/output
// backend on top of github.com/jfreymuth/pulse, adapted from the teacher's
// pkg/audio/backends/pulseaudio to this spec's frame-oriented Backend
// contract. It registers at a lower priority than the portaudio backend
// and is picked automatically when portaudio.Ping fails (no ALSA/WASAPI
// device visible, e.g. inside a container that only exposes PulseAudio).
package pulseaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/quietaudio/quiet/internal/backend"
	"github.com/quietaudio/quiet/internal/device"
)

// Priority is below portaudio.Priority: PulseAudio is the fallback, not
// the default, on platforms where both are usable.
const Priority = 40

func init() {
	backend.Register(Priority, Factory{})
}

type Factory struct{}

func (Factory) NewBackend() (backend.Backend, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to pulseaudio: %w", err)
	}
	return &Backend{client: c}, nil
}

type Backend struct {
	client *pulse.Client
}

var _ backend.Backend = (*Backend)(nil)

func (*Backend) Name() string { return "pulseaudio" }

func (b *Backend) Ping(context.Context) error {
	_, err := b.client.DefaultSink()
	return err
}

func (b *Backend) ListDevices(ctx context.Context) ([]device.Descriptor, error) {
	sources, err := b.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("unable to list pulseaudio sources: %w", err)
	}
	sinks, err := b.client.ListSinks()
	if err != nil {
		return nil, fmt.Errorf("unable to list pulseaudio sinks: %w", err)
	}
	var out []device.Descriptor
	for _, s := range sources {
		out = append(out, device.Descriptor{
			ID:             s.ID(),
			Name:           s.Name(),
			Kind:           device.PhysicalInput,
			MaxChannels:    2,
			SupportedRates: []int{int(s.SampleRate())},
			Connected:      true,
		})
	}
	for _, s := range sinks {
		if !device.LooksLikeVirtualOutput(s.Name()) {
			continue
		}
		out = append(out, device.Descriptor{
			ID:             s.ID(),
			Name:           s.Name(),
			Kind:           device.VirtualOutput,
			Sub:            device.SubkindFromName(s.Name()),
			MaxChannels:    2,
			SupportedRates: []int{int(s.SampleRate())},
			Connected:      true,
		})
	}
	return out, nil
}

func channelMap(channels int) (proto.ChannelMap, error) {
	switch channels {
	case 1:
		return proto.ChannelMap{proto.ChannelMono}, nil
	case 2:
		return proto.ChannelMap{proto.ChannelLeft, proto.ChannelRight}, nil
	default:
		return nil, fmt.Errorf("pulseaudio: do not know how to configure %d channels", channels)
	}
}

func (b *Backend) OpenInputStream(ctx context.Context, deviceID string, sampleRate, channels, bufferSize int) (backend.InputStream, error) {
	chanMap, err := channelMap(channels)
	if err != nil {
		return nil, err
	}
	r := newByteBridge(channels * bufferSize * 4)
	stream, err := b.client.NewRecord(
		pulseWriter{inner: r},
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordChannels(chanMap),
		pulse.RecordSource(findSourceByID(b.client, deviceID)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open pulseaudio record stream on %q: %w", deviceID, err)
	}
	stream.Start()
	if stream.Error() != nil {
		return nil, fmt.Errorf("pulseaudio record stream error: %w", stream.Error())
	}
	return &inputStream{stream: stream, bridge: r}, nil
}

func (b *Backend) OpenOutputStream(ctx context.Context, deviceID string, sampleRate, channels, bufferSize int) (backend.OutputStream, error) {
	chanMap, err := channelMap(channels)
	if err != nil {
		return nil, err
	}
	w := newByteBridge(channels * bufferSize * 4)
	stream, err := b.client.NewPlayback(
		pulseReader{inner: w},
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackChannels(chanMap),
		pulse.PlaybackSink(findSinkByID(b.client, deviceID)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open pulseaudio playback stream on %q: %w", deviceID, err)
	}
	stream.Start()
	if stream.Error() != nil {
		return nil, fmt.Errorf("pulseaudio playback stream error: %w", stream.Error())
	}
	return &outputStream{stream: stream, bridge: w}, nil
}

func findSourceByID(c *pulse.Client, id string) *pulse.Source {
	sources, err := c.ListSources()
	if err != nil {
		return nil
	}
	for _, s := range sources {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

func findSinkByID(c *pulse.Client, id string) *pulse.Sink {
	sinks, err := c.ListSinks()
	if err != nil {
		return nil
	}
	for _, s := range sinks {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// byteBridge hands fixed-size float32 buffers between our Read/Write API
// and jfreymuth/pulse's own byte-stream Reader/Writer callbacks, which run
// on pulse's own goroutine. It is the pulseaudio-specific analogue of the
// teacher's stream_record.go/stream_play.go double-channel handoff.
type byteBridge struct {
	chunkSize int
	toPulse   chan []byte
	fromPulse chan []byte
}

func newByteBridge(chunkSize int) *byteBridge {
	return &byteBridge{
		chunkSize: chunkSize,
		toPulse:   make(chan []byte),
		fromPulse: make(chan []byte),
	}
}

type pulseWriter struct {
	inner *byteBridge
}

var _ pulse.Writer = pulseWriter{}

func (w pulseWriter) Format() byte { return proto.FormatFloat32LE }

func (w pulseWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	w.inner.fromPulse <- buf
	return len(p), nil
}

type pulseReader struct {
	inner *byteBridge
}

var _ pulse.Reader = pulseReader{}

func (r pulseReader) Format() byte { return proto.FormatFloat32LE }

func (r pulseReader) Read(p []byte) (int, error) {
	buf := <-r.inner.toPulse
	n := copy(p, buf)
	return n, nil
}

type inputStream struct {
	mu     sync.Mutex
	stream *pulse.RecordStream
	bridge *byteBridge
}

func (s *inputStream) Read(out []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := len(out) * 4
	buf := <-s.bridge.fromPulse
	if len(buf) != want {
		return fmt.Errorf("pulseaudio: read %d bytes, want %d", len(buf), want)
	}
	floatsFromBytes(buf, out)
	return nil
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream.Stop()
	s.stream.Close()
	return nil
}

type outputStream struct {
	mu     sync.Mutex
	stream *pulse.PlaybackStream
	bridge *byteBridge
}

func (s *outputStream) Write(in []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(in)*4)
	bytesFromFloats(in, buf)
	s.bridge.toPulse <- buf
	return nil
}

func (s *outputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream.Drain()
	s.stream.Close()
	return nil
}
