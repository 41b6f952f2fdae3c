package denoiser

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietaudio/quiet/pkg/audioframe"
)

func newDenoiser(t *testing.T, sampleRate int) *Denoiser {
	t.Helper()
	d := New(nil)
	require.NoError(t, d.Init(context.Background(), sampleRate))
	t.Cleanup(func() { require.NoError(t, d.Shutdown()) })
	return d
}

func fillTone(frame *audioframe.Frame, freqHz, sampleRate float64, amp float32) {
	for ch := 0; ch < frame.Channels(); ch++ {
		samples := frame.Channel(ch)
		for i := range samples {
			samples[i] = amp * float32(math.Sin(2*math.Pi*float64(i)*freqHz/sampleRate))
		}
	}
}

func TestDisabledPassesThroughBitExact(t *testing.T) {
	d := newDenoiser(t, 48000)
	d.SetConfig(Config{Enabled: false})

	frame := audioframe.New(1, FrameSize, 48000)
	fillTone(frame, 440, 48000, 0.5)
	before := append([]float32(nil), frame.Channel(0)...)

	require.NoError(t, d.Process(frame))
	require.Equal(t, before, frame.Channel(0))
}

func TestSilenceInSilenceOut(t *testing.T) {
	d := newDenoiser(t, 48000)
	frame := audioframe.New(1, FrameSize*4, 48000)

	require.NoError(t, d.Process(frame))
	for _, v := range frame.Channel(0) {
		require.Equal(t, float32(0), v)
	}
}

func TestProcessRejectsEmptyFrame(t *testing.T) {
	d := newDenoiser(t, 48000)
	err := d.Process(audioframe.New(0, 0, 48000))
	require.Error(t, err)
}

func TestStereoUpdatesStatsOncePerCall(t *testing.T) {
	d := newDenoiser(t, 48000)
	frame := audioframe.New(2, FrameSize*3, 48000)
	fillTone(frame, 220, 48000, 0.3)

	require.NoError(t, d.Process(frame))
	stats := d.Stats()
	require.EqualValues(t, 1, stats.FramesProcessed)
}

func TestResampledSampleRateDrainsWithoutPanic(t *testing.T) {
	d := newDenoiser(t, 16000)
	frame := audioframe.New(1, FrameSize*5, 16000)
	fillTone(frame, 300, 16000, 0.4)

	require.NoError(t, d.Process(frame))
	require.Equal(t, FrameSize*5, len(frame.Channel(0)))
}

func TestSetConfigIsObservedByGetConfig(t *testing.T) {
	d := newDenoiser(t, 48000)
	cfg := Config{Enabled: true, Strength: StrengthHigh, VADThreshold: 0.6, Adaptive: false}
	d.SetConfig(cfg)
	require.Equal(t, cfg, d.GetConfig())
}

func TestResetStatsZeroesCounters(t *testing.T) {
	d := newDenoiser(t, 48000)
	frame := audioframe.New(1, FrameSize, 48000)
	fillTone(frame, 500, 48000, 0.5)
	require.NoError(t, d.Process(frame))
	require.NotZero(t, d.Stats().FramesProcessed)

	d.ResetStats()
	require.Zero(t, d.Stats().FramesProcessed)
}

// TestSpectralModelProcessAllocations exercises Testable Property #4 (no
// allocation on the audio thread after init) against the default spectral
// model directly, rather than through Denoiser.Process, to isolate the
// model's own hot path from queue/resampler/stats bookkeeping already
// covered by sampleQueue's own preallocated-scratch design.
//
// This does not assert zero: mjibson/go-dsp/fft's FFTReal and IFFT both
// allocate their returned slices internally on every call, a residual cost
// documented in DESIGN.md's Open Questions rather than eliminable from this
// package. The bound below pins that known floor so a regression that adds
// further allocations on top of it still fails the test.
func TestSpectralModelProcessAllocations(t *testing.T) {
	m, err := newSpectralModel()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Close()) })

	pcm := make([]int16, FrameSize)
	for i := range pcm {
		pcm[i] = int16(1000 * math.Sin(2*math.Pi*float64(i)*440/ModelSampleRate))
	}

	// Warm up: the first call initializes the noise floor and primes
	// history, neither of which repeats on steady-state calls.
	_, _, err = m.Process(pcm)
	require.NoError(t, err)

	allocs := testing.AllocsPerRun(20, func() {
		_, _, err := m.Process(pcm)
		require.NoError(t, err)
	})
	require.LessOrEqualf(t, allocs, float64(2), "spectral model Process allocated %v times per call, want <= 2 (go-dsp/fft's FFTReal+IFFT floor)", allocs)
}
