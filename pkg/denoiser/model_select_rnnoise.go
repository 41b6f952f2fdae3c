//go:build rnnoise

package denoiser

func newModel() (Model, error) {
	return newRNNoiseModel()
}
