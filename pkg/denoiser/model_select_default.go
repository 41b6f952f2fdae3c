//go:build !fvad && !rnnoise

package denoiser

func newModel() (Model, error) {
	return newSpectralModel()
}
