package denoiser

import "fmt"

// FrameSize and ModelSampleRate are the RNNoise contract Denoiser adapts
// every input to (spec.md §4.4): exactly 480 samples at 48kHz mono.
const (
	FrameSize       = 480
	ModelSampleRate = 48000
)

// Model is one interchangeable denoise-model backend. It always consumes
// and produces exactly FrameSize int16 samples at ModelSampleRate; all
// resampling and channel handling happens in Denoiser, outside the Model.
// This is the "sealed variant selected at init" §9 asks for, generalized
// from the teacher's process-I/O backend selector to a denoise-model
// selector: model_spectral.go (default), model_fvad.go (+build fvad),
// model_rnnoise.go (+build rnnoise).
type Model interface {
	// Process denoises exactly FrameSize samples in place semantics (the
	// returned slice may alias the input) and reports the voice-activity
	// probability RNNoise's own contract defines: p in [0,1].
	Process(pcm []int16) (out []int16, vad float64, err error)
	Close() error
}

func errFrameSize(got int) error {
	return fmt.Errorf("denoiser: model requires exactly %d samples, got %d", FrameSize, got)
}

// NewModel constructs the Model implementation selected at build time.
// Exactly one of the build-tagged files below provides the non-default
// branch; without a tag, newModel resolves to the spectral-gate model.
func NewModel() (Model, error) {
	m, err := newModel()
	if err != nil {
		return nil, fmt.Errorf("denoiser: unable to construct model: %w", err)
	}
	return m, nil
}
