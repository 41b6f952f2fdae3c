//go:build rnnoise

package denoiser

import (
	"fmt"
	"unsafe"
)

/*
#cgo pkg-config: rnnoise
#cgo CFLAGS: -march=native
#include <rnnoise.h>
*/
import "C"

// rnnoiseModel binds the real RNNoise library, adapted directly from the
// teacher's pkg/noisesuppression/implementations/rnnoise/rnnoise.go. Unlike
// the teacher's RNNoise type, which held one DenoiseState per channel
// internally, each rnnoiseModel here wraps exactly one DenoiseState —
// Denoiser.Init already allocates one Model per channel, so the
// multi-channel fan-out the teacher did inside RNNoise.SuppressNoise is
// Denoiser's job here, not the model's.
type rnnoiseModel struct {
	state *C.DenoiseState
	in    [FrameSize]C.float
	out   [FrameSize]C.float
}

func newRNNoiseModel() (Model, error) {
	if int(C.rnnoise_get_frame_size()) != FrameSize {
		return nil, fmt.Errorf("denoiser: librnnoise frame size %d does not match FrameSize %d",
			int(C.rnnoise_get_frame_size()), FrameSize)
	}
	state := C.rnnoise_create(nil)
	if state == nil {
		return nil, fmt.Errorf("denoiser: rnnoise_create failed")
	}
	return &rnnoiseModel{state: state}, nil
}

func (m *rnnoiseModel) Process(pcm []int16) (out []int16, vad float64, err error) {
	if len(pcm) != FrameSize {
		return nil, 0, errFrameSize(len(pcm))
	}
	for i, s := range pcm {
		m.in[i] = C.float(s)
	}
	prob := C.rnnoise_process_frame(
		m.state,
		(*C.float)(unsafe.Pointer(&m.out[0])),
		(*C.float)(unsafe.Pointer(&m.in[0])),
	)
	result := make([]int16, FrameSize)
	for i := 0; i < FrameSize; i++ {
		v := float64(m.out[i])
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		result[i] = int16(v)
	}
	return result, float64(prob), nil
}

func (m *rnnoiseModel) Close() error {
	if m.state == nil {
		return fmt.Errorf("denoiser: rnnoise model double-close")
	}
	C.rnnoise_destroy(m.state)
	m.state = nil
	return nil
}
