package denoiser

// Strength is the user-selected base attenuation tier (spec.md §4.4,
// strength shaping).
type Strength string

const (
	StrengthLow    Strength = "low"
	StrengthMedium Strength = "medium"
	StrengthHigh   Strength = "high"
)

// baseFactor is the per-strength base attenuation factor used by the
// strength-shaping stage.
func (s Strength) baseFactor() float64 {
	switch s {
	case StrengthLow:
		return 0.5
	case StrengthHigh:
		return 0.9
	default:
		return 0.7
	}
}

// Config is the mutable denoiser configuration. Mutations publish
// events.NoiseReductionChanged; reads observe the last-written value
// within one frame (guarded by Denoiser.mu, a short lock held only for
// the snapshot).
type Config struct {
	Enabled      bool
	Strength     Strength
	VADThreshold float64
	Adaptive     bool
}

// DefaultConfig matches the host application's built-in defaults (the same
// values internal/config.Default writes into a FileConfig).
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Strength:     StrengthMedium,
		VADThreshold: 0.5,
		Adaptive:     true,
	}
}
