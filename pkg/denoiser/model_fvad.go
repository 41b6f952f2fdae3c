//go:build fvad

package denoiser

import (
	"fmt"

	"github.com/josharian/fvad"
)

// fvadModel wraps another Model and replaces its voice-activity estimate
// with a decision from libfvad (WebRTC's VAD), leaving the denoised
// samples from the wrapped model untouched. This mirrors the teacher's own
// optional-backend-via-build-tag pattern (pkg/noisesuppression/implementations/rnnoise's
// `rnnoise` tag) applied to the VAD half of the contract instead of the
// whole model.
type fvadModel struct {
	inner Model
	vad   *fvad.Instance
}

func newFVADModel(inner Model) (Model, error) {
	v, err := fvad.New()
	if err != nil {
		return nil, fmt.Errorf("denoiser: unable to construct fvad instance: %w", err)
	}
	if err := v.SetSampleRate(ModelSampleRate); err != nil {
		return nil, fmt.Errorf("denoiser: fvad SetSampleRate: %w", err)
	}
	if err := v.SetMode(fvad.Aggressive); err != nil {
		return nil, fmt.Errorf("denoiser: fvad SetMode: %w", err)
	}
	return &fvadModel{inner: inner, vad: v}, nil
}

func (m *fvadModel) Process(pcm []int16) ([]int16, float64, error) {
	out, _, err := m.inner.Process(pcm)
	if err != nil {
		return nil, 0, err
	}
	active, err := m.vad.Process(pcm)
	if err != nil {
		return nil, 0, fmt.Errorf("denoiser: fvad Process: %w", err)
	}
	vad := 0.0
	if active {
		vad = 1.0
	}
	return out, vad, nil
}

func (m *fvadModel) Close() error {
	m.vad.Free()
	return m.inner.Close()
}
