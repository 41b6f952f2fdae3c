package denoiser

// linearResample stretches or compresses src (read at a fixed ratio) into
// dst, both fixed at FrameSize, by linear interpolation — the same
// distance-step technique as pkg/audio/resampler.Resampler.Read, simplified
// from that package's arbitrary-format byte-stream resampling down to a
// single fixed-length float32-to-float32 case, since Denoiser always reads
// and writes exactly FrameSize samples per call.
//
// ratio is the number of src samples advanced per dst sample (src-rate /
// dst-rate) conceptually, but because both src and dst
// here are fixed at FrameSize samples, what actually changes is how much
// of src's *time* each dst sample represents — an approximation, not a
// true sample-rate change, exactly the "deliberate simplicity trade-off"
// spec.md §4.4 calls out and §9's Open Question (a) asks to flag rather
// than silently upgrade to a windowed-sinc/polyphase resampler.
func linearResample(src []float64, ratio float64, dst []float64) {
	n := len(src)
	for i := range dst {
		srcPos := float64(i) * ratio
		if ratio == 0 {
			dst[i] = src[0]
			continue
		}
		i0 := int(srcPos)
		if i0 >= n-1 {
			dst[i] = src[n-1]
			continue
		}
		frac := srcPos - float64(i0)
		dst[i] = src[i0]*(1-frac) + src[i0+1]*frac
	}
}
