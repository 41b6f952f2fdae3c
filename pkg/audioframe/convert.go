package audioframe

// ToMonoInto averages all source channels into dst's single channel. dst is
// resized to (1, f.Samples(), f.SampleRate()).
func (f *Frame) ToMonoInto(dst *Frame) {
	dst.Resize(1, f.sampleCnt, false)
	dst.SetSampleRate(f.sampleRate)
	out := dst.Channel(0)
	if f.channelCnt == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}
	inv := float32(1) / float32(f.channelCnt)
	for i := 0; i < f.sampleCnt; i++ {
		var sum float32
		for ch := 0; ch < f.channelCnt; ch++ {
			sum += f.Channel(ch)[i]
		}
		out[i] = sum * inv
	}
}

// ToStereoInto expands/collapses f into two channels in dst: mono is
// duplicated to both channels; two-or-more channel sources contribute their
// first two channels verbatim.
func (f *Frame) ToStereoInto(dst *Frame) {
	dst.Resize(2, f.sampleCnt, false)
	dst.SetSampleRate(f.sampleRate)
	if f.channelCnt == 0 {
		dst.ClearChannel(0)
		dst.ClearChannel(1)
		return
	}
	if f.channelCnt == 1 {
		copy(dst.Channel(0), f.Channel(0))
		copy(dst.Channel(1), f.Channel(0))
		return
	}
	copy(dst.Channel(0), f.Channel(0))
	copy(dst.Channel(1), f.Channel(1))
}

// InterleaveInto writes f's samples in sample-major (interleaved) order
// into dst, growing dst as needed.
func (f *Frame) InterleaveInto(dst []float32) []float32 {
	need := f.channelCnt * f.sampleCnt
	if cap(dst) < need {
		dst = make([]float32, need)
	} else {
		dst = dst[:need]
	}
	for s := 0; s < f.sampleCnt; s++ {
		for ch := 0; ch < f.channelCnt; ch++ {
			dst[s*f.channelCnt+ch] = f.Channel(ch)[s]
		}
	}
	return dst
}

// DeinterleaveFrom fills f (resized to (channels, samples, f.SampleRate()))
// from a sample-major slice produced by InterleaveInto. It is the exact
// inverse of InterleaveInto: interleave-then-deinterleave round-trips
// bit-exact.
func (f *Frame) DeinterleaveFrom(src []float32, channels, samples int) {
	f.Resize(channels, samples, false)
	for s := 0; s < samples; s++ {
		for ch := 0; ch < channels; ch++ {
			f.Channel(ch)[s] = src[s*channels+ch]
		}
	}
}
