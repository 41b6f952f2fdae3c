package audioframe

// CopyFrom copies n samples from src channel srcChan (at srcOffset) into
// this frame's channel dstChan (at dstOffset). Out-of-range parameters are
// silently clamped to the overlap between the requested range and both
// buffers' bounds; a fully out-of-range request is a silent no-op.
func (f *Frame) CopyFrom(src *Frame, srcChan, srcOffset, dstChan, dstOffset, n int) {
	s := src.Channel(srcChan)
	d := f.Channel(dstChan)
	if s == nil || d == nil {
		return
	}
	sStart, sEnd := clampRange(len(s), srcOffset, n)
	dStart, dEnd := clampRange(len(d), dstOffset, n)
	k := min(sEnd-sStart, dEnd-dStart)
	if k <= 0 {
		return
	}
	copy(d[dStart:dStart+k], s[sStart:sStart+k])
}

// AddFrom adds gain*src into this frame's channel, bounds-checked exactly
// like CopyFrom. gain defaults to 1 via AddFrom; use AddFromGain for a
// custom gain.
func (f *Frame) AddFrom(src *Frame, srcChan, srcOffset, dstChan, dstOffset, n int) {
	f.AddFromGain(src, srcChan, srcOffset, dstChan, dstOffset, n, 1)
}

func (f *Frame) AddFromGain(src *Frame, srcChan, srcOffset, dstChan, dstOffset, n int, gain float32) {
	s := src.Channel(srcChan)
	d := f.Channel(dstChan)
	if s == nil || d == nil {
		return
	}
	sStart, sEnd := clampRange(len(s), srcOffset, n)
	dStart, dEnd := clampRange(len(d), dstOffset, n)
	k := min(sEnd-sStart, dEnd-dStart)
	for i := 0; i < k; i++ {
		d[dStart+i] += gain * s[sStart+i]
	}
}

// ApplyGain scales every sample of every channel by gain.
func (f *Frame) ApplyGain(gain float32) {
	for i := range f.channels {
		f.channels[i] *= gain
	}
}

// ApplyGainRamp linearly ramps gain from g0 to g1 across n samples of
// channel ch starting at start. Out-of-range ch is a silent no-op; the
// range is clamped to the channel's bounds.
func (f *Frame) ApplyGainRamp(ch, start, n int, g0, g1 float32) {
	c := f.Channel(ch)
	if c == nil || n <= 0 {
		return
	}
	s, e := clampRange(len(c), start, n)
	span := e - s
	if span <= 0 {
		return
	}
	for i := 0; i < span; i++ {
		var t float32
		if n > 1 {
			t = float32(i) / float32(n-1)
		}
		c[s+i] *= g0 + t*(g1-g0)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
