package denoiser

import (
	"math"
	"math/cmplx"

	"github.com/brettbuddin/fourier"
	"github.com/mjibson/go-dsp/fft"
)

// fftSize is the smallest power of two covering FrameSize; go-dsp/fft's
// FFTReal/IFFT are used at this size each call, zero-padding the 480-sample
// frame's tail. No overlap-add is performed between frames — each 480
// samples is windowed, transformed, and reconstructed independently, which
// is the linear-resampler-grade simplification spec.md §9's Open Question
// (a) asks to flag rather than silently upgrade.
const fftSize = 512

// noiseFloorAttack/Decay control how fast the per-bin noise-floor
// tracker follows a drop vs a rise in magnitude: noise estimates should
// fall quickly (the room got quieter) but rise slowly (a word's onset
// should not instantly get counted as "floor").
const (
	noiseFloorAttack = 0.30
	noiseFloorDecay  = 0.01
	spectralGateFloor = 0.05

	// historySamples is the length of the raw-sample history ring that
	// feeds the periodic brettbuddin/fourier refinement pass, which runs
	// every historyRefreshFrames frames.
	historySamples        = 2048
	historyRefreshFrames  = 50
)

// spectralModel is the default, dependency-light Model: an FFT magnitude
// spectral gate with a tracked noise floor, in the tradition of classic
// spectral-subtraction noise suppressors. It produces a genuine VAD
// estimate from the ratio of above-floor to total spectral energy, rather
// than a hand-tuned heuristic — the in-pack analogue of
// pkg/interpolation/fourier's spectral-sieve peak detector, repurposed
// from gap-filling to noise-floor subtraction.
type spectralModel struct {
	window     [fftSize]float64
	noiseFloor [fftSize/2 + 1]float64
	floorInit  bool

	history     [historySamples]float64
	historyPos  int
	historyLen  int
	framesSeen  int

	scratchTime [fftSize]float64
	scratchFreq []complex128

	// mags, gains, out, and coeffsBuf are preallocated once here rather
	// than made per call: Process runs on the audio thread and spec.md's
	// "no allocation inside process after init" invariant applies to the
	// default model exactly as it does to the resampler and queues above
	// it in Denoiser.
	mags      [fftSize/2 + 1]float64
	gains     [fftSize/2 + 1]float64
	out       [FrameSize]int16
	coeffsBuf [fftSize]complex128
}

func newSpectralModel() (*spectralModel, error) {
	m := &spectralModel{}
	for i := range m.window {
		// Hann window; a single non-overlapped window per frame trades
		// some spectral leakage for zero added latency.
		m.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return m, nil
}

func (m *spectralModel) Close() error { return nil }

func (m *spectralModel) Process(pcm []int16) (out []int16, vad float64, err error) {
	if len(pcm) != FrameSize {
		return nil, 0, errFrameSize(len(pcm))
	}

	for i, s := range pcm {
		v := float64(s) / 32768
		m.recordHistory(v)
		m.scratchTime[i] = v * m.window[i]
	}
	for i := FrameSize; i < fftSize; i++ {
		m.scratchTime[i] = 0
	}

	// FFTReal/IFFT allocate their returned slices internally on every
	// call regardless of what we pass in; that allocation is not ours to
	// hoist away without replacing go-dsp/fft (see DESIGN.md).
	m.scratchFreq = fft.FFTReal(m.scratchTime[:])

	mags := m.mags[:]
	for i := range mags {
		mags[i] = cmplx.Abs(m.scratchFreq[i])
	}
	m.updateNoiseFloor(mags)

	var aboveEnergy, totalEnergy float64
	gains := m.gains[:]
	for i, mag := range mags {
		totalEnergy += mag * mag
		floor := m.noiseFloor[i]
		if mag > floor {
			aboveEnergy += (mag - floor) * (mag - floor)
		}
		gain := spectralGateFloor
		if mag > 0 {
			gain = math.Max(spectralGateFloor, 1-floor/mag)
		}
		gains[i] = gain
	}
	if m.framesSeen%historyRefreshFrames == 0 {
		m.refineFloorFromHistory()
	}
	m.framesSeen++

	if totalEnergy <= 0 {
		vad = 0
	} else {
		vad = clamp01(aboveEnergy / totalEnergy)
	}

	for i := 0; i <= fftSize/2; i++ {
		m.scratchFreq[i] *= complex(gains[i], 0)
		if i > 0 && i < fftSize/2 {
			m.scratchFreq[fftSize-i] = cmplx.Conj(m.scratchFreq[i])
		}
	}

	timeDomain := fft.IFFT(m.scratchFreq)

	out = m.out[:]
	for i := 0; i < FrameSize; i++ {
		v := real(timeDomain[i])
		// Undo the analysis window's amplitude scaling; floor avoids a
		// divide-by-near-zero blowup at the window's edges.
		w := m.window[i]
		if w > 1e-3 {
			v /= w
		}
		out[i] = floatToInt16(v)
	}
	return out, vad, nil
}

func (m *spectralModel) recordHistory(v float64) {
	m.history[m.historyPos] = v
	m.historyPos = (m.historyPos + 1) % historySamples
	if m.historyLen < historySamples {
		m.historyLen++
	}
}

func (m *spectralModel) updateNoiseFloor(mags []float64) {
	if !m.floorInit {
		copy(m.noiseFloor[:], mags)
		m.floorInit = true
		return
	}
	for i, mag := range mags {
		if mag < m.noiseFloor[i] {
			m.noiseFloor[i] += noiseFloorAttack * (mag - m.noiseFloor[i])
		} else {
			m.noiseFloor[i] += noiseFloorDecay * (mag - m.noiseFloor[i])
		}
	}
}

// refineFloorFromHistory periodically re-estimates the noise floor from
// the most recent raw samples via brettbuddin/fourier.Forward, the same
// FFT call pkg/interpolation/fourier uses. The window is the largest power
// of two that fits the available history, capped at fftSize, so at most
// the last 512 samples of history are analysed.
func (m *spectralModel) refineFloorFromHistory() {
	if m.historyLen < 64 {
		return
	}
	n := largestPowerOfTwo(m.historyLen)
	if n > fftSize {
		n = fftSize
	}
	coeffs := m.coeffsBuf[:n]
	for i := 0; i < n; i++ {
		idx := (m.historyPos - n + i + len(m.history)) % len(m.history)
		coeffs[i] = complex(m.history[idx], 0)
	}
	if err := fourier.Forward(coeffs); err != nil {
		return
	}
	binsPerAux := (fftSize/2 + 1)
	for i := 0; i < binsPerAux && i < n/2; i++ {
		aux := cmplx.Abs(coeffs[i]) / float64(n)
		if aux < m.noiseFloor[i] {
			m.noiseFloor[i] = 0.5*m.noiseFloor[i] + 0.5*aux
		}
	}
}

// largestPowerOfTwo is ported verbatim from pkg/interpolation/fourier's
// helper of the same name.
func largestPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func floatToInt16(v float64) int16 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(math.Round(v * 32767))
}
