package inputengine

import "fmt"

// Format is InputEngine's negotiated capture shape: sample rate, host
// callback buffer size (per channel), and channel count, the latter
// derived from the selected device's capabilities rather than requested
// directly (spec.md §4.3 set_format only parameterizes rate and buffer
// size).
type Format struct {
	SampleRate int
	BufferSize int
	Channels   int
}

// DefaultFormat matches the denoiser's own native contract (48kHz mono),
// so the common case needs no resampling in the Denoiser stage.
func DefaultFormat() Format {
	return Format{SampleRate: 48000, BufferSize: 480, Channels: 1}
}

const (
	minSampleRate = 8000
	maxSampleRate = 192000
	minBufferSize = 32
	maxBufferSize = 8192
)

// validateFormat enforces spec.md §4.3 set_format's bounds: sample rate in
// [8000, 192000], buffer size a power of two in [32, 8192].
func validateFormat(sampleRate, bufferSize int) error {
	if sampleRate < minSampleRate || sampleRate > maxSampleRate {
		return fmt.Errorf("inputengine: sample rate %d out of range [%d, %d]", sampleRate, minSampleRate, maxSampleRate)
	}
	if bufferSize < minBufferSize || bufferSize > maxBufferSize || !isPowerOfTwo(bufferSize) {
		return fmt.Errorf("inputengine: buffer size %d must be a power of two in [%d, %d]", bufferSize, minBufferSize, maxBufferSize)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
