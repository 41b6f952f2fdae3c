// Package config loads and persists the JSON configuration file spec.md
// §6 describes: the construction-time collaborator that seeds
// Denoiser.Config, InputEngine's format, and OutputRouter's format.
// Path resolution follows original_source/'s ConfigurationManager.cpp
// getConfigDirectory(): %APPDATA%/QUIET on Windows, $HOME/.config/quiet
// elsewhere.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/quietaudio/quiet/pkg/denoiser"
	"github.com/quietaudio/quiet/pkg/inputengine"
	"github.com/quietaudio/quiet/pkg/outputrouter"
)

// FileConfig mirrors spec.md §6's recognized keys exactly.
type FileConfig struct {
	Audio struct {
		SampleRate    int    `json:"sample_rate"`
		BufferSize    int    `json:"buffer_size"`
		InputDeviceID string `json:"input_device_id"`
	} `json:"audio"`
	Processing struct {
		NoiseReductionEnabled bool    `json:"noise_reduction_enabled"`
		ReductionLevel        string  `json:"reduction_level"`
		VADThreshold          float64 `json:"vad_threshold"`
		AdaptiveMode          bool    `json:"adaptive_mode"`
	} `json:"processing"`
	VirtualDevice struct {
		Channels   int `json:"channels"`
		SampleRate int `json:"sample_rate"`
	} `json:"virtual_device"`
}

// Default returns the host application's built-in defaults, used both as
// the seed for a freshly-created config file and as the fallback when a
// key is absent from a loaded one.
func Default() *FileConfig {
	c := &FileConfig{}
	c.Audio.SampleRate = 48000
	c.Audio.BufferSize = 480
	c.Processing.NoiseReductionEnabled = true
	c.Processing.ReductionLevel = string(denoiser.StrengthMedium)
	c.Processing.VADThreshold = 0.5
	c.Processing.AdaptiveMode = true
	c.VirtualDevice.Channels = 2
	c.VirtualDevice.SampleRate = 48000
	return c
}

// DefaultPath resolves the OS-conventional config file location.
func DefaultPath() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "QUIET", "config.json")
		}
	}
	home := os.Getenv("HOME")
	return filepath.Join(home, ".config", "quiet", "config.json")
}

// Load reads path, falling back to Default() if the file does not exist —
// mirroring ConfigurationManager::load returning true (success) on a
// missing file and keeping built-in defaults, rather than treating it as
// an error.
func Load(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// Save atomically writes cfg to path: it writes to path+".tmp" then
// renames over path, so a crash mid-write never leaves a truncated
// config file behind.
func Save(path string, cfg *FileConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir %q: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename %q -> %q: %w", tmp, path, err)
	}
	return nil
}

// DenoiserConfig translates the loaded file into a denoiser.Config.
func (c *FileConfig) DenoiserConfig() denoiser.Config {
	return denoiser.Config{
		Enabled:      c.Processing.NoiseReductionEnabled,
		Strength:     denoiser.Strength(c.Processing.ReductionLevel),
		VADThreshold: c.Processing.VADThreshold,
		Adaptive:     c.Processing.AdaptiveMode,
	}
}

// InputFormat translates the loaded file into an inputengine.Format.
func (c *FileConfig) InputFormat() inputengine.Format {
	f := inputengine.DefaultFormat()
	if c.Audio.SampleRate != 0 {
		f.SampleRate = c.Audio.SampleRate
	}
	if c.Audio.BufferSize != 0 {
		f.BufferSize = c.Audio.BufferSize
	}
	return f
}

// OutputFormat translates the loaded file into an outputrouter.Format.
func (c *FileConfig) OutputFormat() outputrouter.Format {
	f := outputrouter.DefaultFormat()
	if c.VirtualDevice.SampleRate != 0 {
		f.SampleRate = c.VirtualDevice.SampleRate
	}
	if c.VirtualDevice.Channels != 0 {
		f.Channels = c.VirtualDevice.Channels
	}
	return f
}
