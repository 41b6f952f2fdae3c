package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Audio.SampleRate = 44100
	cfg.Processing.ReductionLevel = "high"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestDenoiserConfigTranslation(t *testing.T) {
	cfg := Default()
	cfg.Processing.ReductionLevel = "low"
	cfg.Processing.VADThreshold = 0.3
	dc := cfg.DenoiserConfig()
	require.Equal(t, "low", string(dc.Strength))
	require.Equal(t, 0.3, dc.VADThreshold)
}
