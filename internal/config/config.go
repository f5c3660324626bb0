// Package config provides the spectrum server configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-spectrum/dsp"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultPort      = 8080
	DefaultFrameRate = 20 // spectrum frames per second pushed to consumers
)

// validate is the shared validator instance for config validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// SystemConfig holds server-level settings.
type SystemConfig struct {
	Port int `json:"port" validate:"omitempty,gte=1,lte=65535"` // HTTP server port
}

// AudioConfig holds capture device settings.
type AudioConfig struct {
	Device    string `json:"device" validate:"omitempty,max=512"` // endpoint id, empty = default endpoint
	Autostart bool   `json:"autostart"`                           // start capturing at boot
}

// SpectrumConfig holds analysis and delivery parameters.
type SpectrumConfig struct {
	Bands     int     `json:"bands" validate:"omitempty,gte=1,lte=64"`
	ChunkSize int     `json:"chunk_size" validate:"omitempty,gte=256,lte=8192"`
	Dancy     float64 `json:"dancy" validate:"omitempty,gt=0,lte=64"`
	FrameRate int     `json:"frame_rate" validate:"omitempty,gte=1,lte=60"`
}

// LogConfig holds capture event log settings.
type LogConfig struct {
	EventPath string `json:"event_path" validate:"omitempty,max=4096"` // JSON lines event file, empty = disabled
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System   SystemConfig   `json:"system"`
	Audio    AudioConfig    `json:"audio"`
	Spectrum SpectrumConfig `json:"spectrum"`
	Log      LogConfig      `json:"log"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System:   SystemConfig{Port: DefaultPort},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default one if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		c.applyDefaults()
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	c.applyDefaults()
	return c.validateLocked()
}

// validateLocked checks all configuration fields for correctness.
func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// The power-of-two constraint has no validator tag.
	if !dsp.ValidChunkSize(c.Spectrum.ChunkSize) {
		return fmt.Errorf("invalid chunk_size %d: must be a power of two in [%d, %d]",
			c.Spectrum.ChunkSize, dsp.MinChunkSize, dsp.MaxChunkSize)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultPort
	}
	if c.Spectrum.Bands == 0 {
		c.Spectrum.Bands = dsp.DefaultBands
	}
	if c.Spectrum.ChunkSize == 0 {
		c.Spectrum.ChunkSize = dsp.DefaultChunkSize
	}
	if c.Spectrum.Dancy == 0 {
		c.Spectrum.Dancy = dsp.DefaultDancy
	}
	if c.Spectrum.FrameRate == 0 {
		c.Spectrum.FrameRate = DefaultFrameRate
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(c.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	Port      int
	Device    string
	Autostart bool
	Bands     int
	ChunkSize int
	Dancy     float64
	FrameRate int
	EventPath string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Port:      c.System.Port,
		Device:    c.Audio.Device,
		Autostart: c.Audio.Autostart,
		Bands:     c.Spectrum.Bands,
		ChunkSize: c.Spectrum.ChunkSize,
		Dancy:     c.Spectrum.Dancy,
		FrameRate: c.Spectrum.FrameRate,
		EventPath: c.Log.EventPath,
	}
}

// SetDevice updates the capture device and saves the configuration.
func (c *Config) SetDevice(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Device = id
	return c.saveLocked()
}

// SetSpectrum updates the analysis parameters and saves the configuration.
// Zero values keep the current setting.
func (c *Config) SetSpectrum(bands, chunkSize, frameRate int, dancy float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.Spectrum
	if bands != 0 {
		c.Spectrum.Bands = bands
	}
	if chunkSize != 0 {
		c.Spectrum.ChunkSize = chunkSize
	}
	if frameRate != 0 {
		c.Spectrum.FrameRate = frameRate
	}
	if dancy != 0 {
		c.Spectrum.Dancy = dancy
	}
	if err := c.validateLocked(); err != nil {
		c.Spectrum = prev
		return err
	}
	return c.saveLocked()
}
