package audioframe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyFromBitExact(t *testing.T) {
	src := New(1, 8, 48000)
	for i := 0; i < 8; i++ {
		src.Channel(0)[i] = float32(i) + 0.5
	}
	dst := New(1, 8, 48000)
	dst.CopyFrom(src, 0, 2, 0, 0, 4)
	require.Equal(t, src.Channel(0)[2:6], dst.Channel(0)[0:4])
}

func TestClearIsPositiveZero(t *testing.T) {
	f := New(2, 16, 48000)
	for ch := 0; ch < 2; ch++ {
		for i := range f.Channel(ch) {
			f.Channel(ch)[i] = -3.5
		}
	}
	f.Clear()
	for ch := 0; ch < 2; ch++ {
		for _, v := range f.Channel(ch) {
			require.Equal(t, float32(0), v)
			require.False(t, isNegativeZero(v))
		}
	}
}

func isNegativeZero(v float32) bool {
	return v == 0 && (1/v) < 0
}

func TestInterleaveRoundTrip(t *testing.T) {
	f := New(2, 5, 44100)
	for ch := 0; ch < 2; ch++ {
		for i := 0; i < 5; i++ {
			f.Channel(ch)[i] = float32(ch*10 + i)
		}
	}
	buf := f.InterleaveInto(nil)

	back := New(0, 0, 0)
	back.DeinterleaveFrom(buf, 2, 5)

	for ch := 0; ch < 2; ch++ {
		require.Equal(t, f.Channel(ch), back.Channel(ch))
	}
}

func TestResizeIdempotent(t *testing.T) {
	f := New(2, 100, 48000)
	f.Channel(0)[0] = 1
	f.Resize(2, 100, false)
	require.Equal(t, float32(1), f.Channel(0)[0])
}

func TestToMonoAverages(t *testing.T) {
	f := New(2, 3, 48000)
	copy(f.Channel(0), []float32{1, 2, 3})
	copy(f.Channel(1), []float32{3, 2, 1})
	dst := New(0, 0, 0)
	f.ToMonoInto(dst)
	require.Equal(t, []float32{2, 2, 2}, dst.Channel(0))
}

func TestMoveEmptiesSource(t *testing.T) {
	f := New(1, 4, 48000)
	moved := f.Move()
	require.Equal(t, 0, f.Channels())
	require.Equal(t, 0, f.Samples())
	require.Equal(t, 4, moved.Samples())
}

func TestApplyGainRamp(t *testing.T) {
	f := New(1, 4, 48000)
	copy(f.Channel(0), []float32{1, 1, 1, 1})
	f.ApplyGainRamp(0, 0, 4, 0, 1)
	require.InDelta(t, 0, f.Channel(0)[0], 1e-6)
	require.InDelta(t, 1, f.Channel(0)[3], 1e-6)
}

func TestOutOfRangeIsSilent(t *testing.T) {
	f := New(1, 4, 48000)
	require.NotPanics(t, func() {
		f.ClearRange(5, 0, 10)
		f.CopyFrom(f, 9, 0, 0, 0, 4)
	})
	require.Equal(t, 0.0, f.RMS(9, 0, 4))
}
