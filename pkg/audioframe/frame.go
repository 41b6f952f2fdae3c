// Package audioframe implements the multi-channel planar sample container
// that flows through the capture -> denoise -> route pipeline.
//
// A Frame owns a single allocation holding channels*samples float32 values,
// laid out channel-major (planar) so that SIMD-style per-channel loops walk
// contiguous memory. The allocation is padded and sliced so the sample
// storage starts 32-byte aligned, which is what vectorized loads on
// AVX2/NEON expect; Go gives no alignment guarantee on slice backing arrays,
// so alignment is recovered by over-allocating and trimming the head.
// Channels are packed back to back with no per-channel padding, so channel
// ch starts ch*samples floats in and is 32-byte aligned only when samples
// is a multiple of 8.
package audioframe

import "unsafe"

const alignment = 32

// Frame is a channels x samples planar sample buffer. The zero value is a
// valid, empty Frame (0 channels, 0 samples).
type Frame struct {
	raw        []float32
	channels   []float32 // view into raw, aligned, len == channelCount*sampleCount
	channelCnt int
	sampleCnt  int
	sampleRate int
}

// New allocates a zeroed Frame with the given shape.
func New(channels, samples, sampleRate int) *Frame {
	f := &Frame{}
	f.resizeAllocation(channels, samples)
	f.sampleRate = sampleRate
	return f
}

// Channels returns the channel count.
func (f *Frame) Channels() int { return f.channelCnt }

// Samples returns the per-channel sample count.
func (f *Frame) Samples() int { return f.sampleCnt }

// SampleRate returns the informational sample rate attached at construction.
func (f *Frame) SampleRate() int { return f.sampleRate }

// SetSampleRate updates the informational sample rate without touching data.
func (f *Frame) SetSampleRate(sr int) { f.sampleRate = sr }

// IsEmpty reports whether the frame is in the zero/empty state.
func (f *Frame) IsEmpty() bool { return f.channelCnt == 0 || f.sampleCnt == 0 }

// Channel returns the sample slice for channel ch, or nil if out of range.
// The returned slice aliases the frame's storage; it is valid until the next
// Resize.
func (f *Frame) Channel(ch int) []float32 {
	if ch < 0 || ch >= f.channelCnt {
		return nil
	}
	start := ch * f.sampleCnt
	return f.channels[start : start+f.sampleCnt]
}

// Resize reallocates if the shape differs from the current one; it is
// idempotent when channels/samples are unchanged. clear zero-fills the
// (possibly reused) buffer; pass false to skip the fill when the caller is
// about to overwrite every sample anyway.
func (f *Frame) Resize(channels, samples int, clear bool) {
	if channels == f.channelCnt && samples == f.sampleCnt {
		if clear {
			f.Clear()
		}
		return
	}
	f.resizeAllocation(channels, samples)
}

func (f *Frame) resizeAllocation(channels, samples int) {
	if channels < 0 {
		channels = 0
	}
	if samples < 0 {
		samples = 0
	}
	total := channels * samples
	// Over-allocate by one alignment's worth of float32s so the aligned
	// window always fits, then trim the head to the first aligned index.
	pad := alignment / int(unsafe.Sizeof(float32(0)))
	f.raw = make([]float32, total+pad)
	off := alignedOffset(f.raw)
	f.channels = f.raw[off : off+total]
	f.channelCnt = channels
	f.sampleCnt = samples
}

func alignedOffset(buf []float32) int {
	if len(buf) == 0 {
		return 0
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))
	rem := addr % alignment
	if rem == 0 {
		return 0
	}
	pad := alignment - rem
	return int(pad) / int(unsafe.Sizeof(float32(0)))
}

// Clear zero-fills every sample of every channel.
func (f *Frame) Clear() {
	for i := range f.channels {
		f.channels[i] = 0
	}
}

// ClearChannel zero-fills one channel. Out-of-range ch is a silent no-op.
func (f *Frame) ClearChannel(ch int) {
	c := f.Channel(ch)
	for i := range c {
		c[i] = 0
	}
}

// ClearRange zero-fills [offset, offset+n) of channel ch, clamped to the
// channel's bounds. Out-of-range ch is a silent no-op.
func (f *Frame) ClearRange(ch, offset, n int) {
	c := f.Channel(ch)
	if c == nil {
		return
	}
	start, end := clampRange(len(c), offset, n)
	for i := start; i < end; i++ {
		c[i] = 0
	}
}

func clampRange(length, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > length {
		return length, length
	}
	end := offset + n
	if end > length || n < 0 {
		end = length
	}
	if end < offset {
		end = offset
	}
	return offset, end
}

// Copy returns an independent deep copy of f.
func (f *Frame) Copy() *Frame {
	dst := New(f.channelCnt, f.sampleCnt, f.sampleRate)
	for ch := 0; ch < f.channelCnt; ch++ {
		copy(dst.Channel(ch), f.Channel(ch))
	}
	return dst
}

// Move transfers f's storage into a new Frame and resets f to the empty
// state (0 channels, 0 samples), mirroring a C++ move constructor.
func (f *Frame) Move() *Frame {
	moved := &Frame{
		raw:        f.raw,
		channels:   f.channels,
		channelCnt: f.channelCnt,
		sampleCnt:  f.sampleCnt,
		sampleRate: f.sampleRate,
	}
	f.raw = nil
	f.channels = nil
	f.channelCnt = 0
	f.sampleCnt = 0
	return moved
}
