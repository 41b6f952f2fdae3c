// Package backend abstracts the host audio API that InputEngine and
// OutputRouter speak to. It generalizes the teacher's
// pkg/audio/registry + pkg/audio/types split (one registry and one
// priority-ordered auto-selection per direction) from byte-stream
// Recorder/Player factories to the frame-oriented, callback-driven
// contract this spec's InputEngine and OutputRouter need.
package backend

import (
	"context"

	"github.com/quietaudio/quiet/internal/device"
)

// InputStream is a live capture stream opened by a Backend. Read blocks
// until exactly len(buf) interleaved samples are available (buf's length
// must be a multiple of the stream's channel count) or the device fails.
type InputStream interface {
	Read(buf []float32) error
	Close() error
}

// OutputStream is a live playback stream opened by a Backend. Write blocks
// until the host has accepted len(buf) interleaved samples or the device
// fails.
type OutputStream interface {
	Write(buf []float32) error
	Close() error
}

// Backend is one host audio API (PortAudio, PulseAudio, a test mock). Each
// Backend is registered with a priority; InputEngine and OutputRouter pick
// the highest-priority Backend whose Ping succeeds, exactly as the
// teacher's NewRecorderAuto/NewPlayerAuto do for RecorderPCM/PlayerPCM.
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
	ListDevices(ctx context.Context) ([]device.Descriptor, error)
	OpenInputStream(ctx context.Context, deviceID string, sampleRate, channels, bufferSize int) (InputStream, error)
	OpenOutputStream(ctx context.Context, deviceID string, sampleRate, channels, bufferSize int) (OutputStream, error)
}
