// Package portaudio implements the primary capture/output backend on top
// of github.com/gordonklaus/portaudio, adapted from the teacher's
// pkg/audio/backends/portaudio (recorder_pcm.go / record_pcm_stream.go /
// play_pcm_stream.go) to this spec's frame-oriented Backend contract
// instead of the teacher's byte-stream RecorderPCM/PlayerPCM.
package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/quietaudio/quiet/internal/backend"
	"github.com/quietaudio/quiet/internal/device"
)

// Priority mirrors the teacher's own portaudio backend priority — its
// devices are preferred over PulseAudio's whenever both are usable.
const Priority = 60

func init() {
	backend.Register(Priority, Factory{})
}

// Factory constructs the PortAudio Backend, initializing the library the
// first time a Backend is requested.
type Factory struct{}

func (Factory) NewBackend() (backend.Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("unable to initialize portaudio: %w", err)
	}
	return &Backend{}, nil
}

// Backend wraps the process-wide PortAudio host API. PortAudio has no
// per-instance handle, so Backend itself carries no state beyond having
// been initialized by its Factory.
type Backend struct{}

var _ backend.Backend = (*Backend)(nil)

func (*Backend) Name() string { return "portaudio" }

func (*Backend) Ping(ctx context.Context) error {
	_, err := portaudio.DefaultInputDevice()
	if err != nil {
		logger.Debugf(ctx, "portaudio: no default input device: %v", err)
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("unable to enumerate portaudio devices: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("portaudio reports zero devices")
	}
	return nil
}

func (*Backend) ListDevices(ctx context.Context) ([]device.Descriptor, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("unable to enumerate portaudio devices: %w", err)
	}
	var out []device.Descriptor
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			out = append(out, device.Descriptor{
				ID:             d.Name,
				Name:           d.Name,
				Kind:           device.PhysicalInput,
				MaxChannels:    d.MaxInputChannels,
				SupportedRates: []int{int(d.DefaultSampleRate)},
				Connected:      true,
			})
		}
		if d.MaxOutputChannels > 0 && device.LooksLikeVirtualOutput(d.Name) {
			out = append(out, device.Descriptor{
				ID:             d.Name,
				Name:           d.Name,
				Kind:           device.VirtualOutput,
				Sub:            device.SubkindFromName(d.Name),
				MaxChannels:    d.MaxOutputChannels,
				SupportedRates: []int{int(d.DefaultSampleRate)},
				Connected:      true,
			})
		}
	}
	return out, nil
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("unable to enumerate portaudio devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no portaudio device named %q", name)
}

func (*Backend) OpenInputStream(ctx context.Context, deviceID string, sampleRate, channels, bufferSize int) (backend.InputStream, error) {
	dev, err := findDevice(deviceID)
	if err != nil {
		return nil, err
	}
	buf := make([]float32, channels*bufferSize)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: bufferSize,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("unable to open input stream on %q: %w", deviceID, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("unable to start input stream on %q: %w", deviceID, err)
	}
	return &inputStream{stream: stream, buf: buf}, nil
}

func (*Backend) OpenOutputStream(ctx context.Context, deviceID string, sampleRate, channels, bufferSize int) (backend.OutputStream, error) {
	dev, err := findDevice(deviceID)
	if err != nil {
		return nil, err
	}
	buf := make([]float32, channels*bufferSize)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: bufferSize,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("unable to open output stream on %q: %w", deviceID, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("unable to start output stream on %q: %w", deviceID, err)
	}
	return &outputStream{stream: stream, buf: buf}, nil
}

type inputStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
}

func (s *inputStream) Read(out []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(out) != len(s.buf) {
		return fmt.Errorf("portaudio: read buffer size mismatch: got %d, want %d", len(out), len(s.buf))
	}
	if err := s.stream.Read(); err != nil {
		return fmt.Errorf("portaudio: read failed: %w", err)
	}
	copy(out, s.buf)
	return nil
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.Close()
}

type outputStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
}

func (s *outputStream) Write(in []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(in) != len(s.buf) {
		return fmt.Errorf("portaudio: write buffer size mismatch: got %d, want %d", len(in), len(s.buf))
	}
	copy(s.buf, in)
	if err := s.stream.Write(); err != nil {
		return fmt.Errorf("portaudio: write failed: %w", err)
	}
	return nil
}

func (s *outputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.Close()
}
