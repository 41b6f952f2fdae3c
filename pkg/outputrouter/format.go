package outputrouter

import (
	"fmt"

	"github.com/quietaudio/quiet/pkg/audioframe"
)

// Format is the negotiated shape Router writes to the open output stream.
type Format struct {
	SampleRate int
	BufferSize int
	Channels   int
}

// DefaultFormat uses the denoiser's native rate and frame size (48kHz,
// 480 samples), in stereo.
func DefaultFormat() Format {
	return Format{SampleRate: 48000, BufferSize: 480, Channels: 2}
}

// errFormatMismatch is returned by adaptInto when frame's sample rate differs
// from the target format's — spec.md §4.5 defers resampling to a future
// enhancement and only adapts channel count for identical rates.
var errFormatMismatch = fmt.Errorf("outputrouter: sample rate mismatch, resampling not implemented")

// adaptInto writes frame's samples into dst, up-mixing or down-mixing
// channels to match dst's channel count (spec.md §4.5 route operation):
// up-mix duplicates the last available source channel; down-mix drops the
// extras. Sample-rate mismatch is not adapted and returns
// errFormatMismatch.
func adaptInto(frame *audioframe.Frame, target Format, dst *audioframe.Frame) error {
	if frame.SampleRate() != 0 && target.SampleRate != 0 && frame.SampleRate() != target.SampleRate {
		return errFormatMismatch
	}
	dst.Resize(target.Channels, frame.Samples(), false)
	dst.SetSampleRate(target.SampleRate)
	srcChannels := frame.Channels()
	if srcChannels == 0 {
		dst.Clear()
		return nil
	}
	for ch := 0; ch < target.Channels; ch++ {
		srcCh := ch
		if srcCh >= srcChannels {
			srcCh = srcChannels - 1
		}
		copy(dst.Channel(ch), frame.Channel(srcCh))
	}
	return nil
}
