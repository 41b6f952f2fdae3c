//go:build fvad && !rnnoise

package denoiser

func newModel() (Model, error) {
	spectral, err := newSpectralModel()
	if err != nil {
		return nil, err
	}
	return newFVADModel(spectral)
}
