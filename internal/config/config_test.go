package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := configPath(t)

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snapshot := cfg.Snapshot()
	assert.Equal(t, DefaultPort, snapshot.Port)
	assert.Equal(t, 64, snapshot.Bands)
	assert.Equal(t, 1024, snapshot.ChunkSize)
	assert.Equal(t, 12.0, snapshot.Dancy)
	assert.Equal(t, DefaultFrameRate, snapshot.FrameRate)
	assert.Empty(t, snapshot.Device)
	assert.False(t, snapshot.Autostart)

	// The default file must have been written.
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadExistingConfig(t *testing.T) {
	path := configPath(t)
	data := `{
		"system": {"port": 9090},
		"audio": {"device": "speakers", "autostart": true},
		"spectrum": {"bands": 32, "chunk_size": 2048, "dancy": 6, "frame_rate": 30},
		"log": {"event_path": "events.jsonl"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snapshot := cfg.Snapshot()
	assert.Equal(t, 9090, snapshot.Port)
	assert.Equal(t, "speakers", snapshot.Device)
	assert.True(t, snapshot.Autostart)
	assert.Equal(t, 32, snapshot.Bands)
	assert.Equal(t, 2048, snapshot.ChunkSize)
	assert.Equal(t, 6.0, snapshot.Dancy)
	assert.Equal(t, 30, snapshot.FrameRate)
	assert.Equal(t, "events.jsonl", snapshot.EventPath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"port out of range":        `{"system": {"port": 99999}}`,
		"bands out of range":       `{"spectrum": {"bands": 100}}`,
		"chunk size out of range":  `{"spectrum": {"chunk_size": 65536}}`,
		"chunk not a power of two": `{"spectrum": {"chunk_size": 1000}}`,
		"dancy out of range":       `{"spectrum": {"dancy": 100}}`,
		"frame rate out of range":  `{"spectrum": {"frame_rate": 500}}`,
		"malformed JSON":           `{`,
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := configPath(t)
			require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

			cfg := New(path)
			assert.Error(t, cfg.Load())
		})
	}
}

func TestSetDevicePersists(t *testing.T) {
	path := configPath(t)
	cfg := New(path)
	require.NoError(t, cfg.Load())

	require.NoError(t, cfg.SetDevice("hdmi-1"))
	assert.Equal(t, "hdmi-1", cfg.Snapshot().Device)

	// A fresh load sees the stored value.
	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "hdmi-1", reloaded.Snapshot().Device)
}

func TestSetSpectrumKeepsUnsetValues(t *testing.T) {
	cfg := New(configPath(t))
	require.NoError(t, cfg.Load())

	require.NoError(t, cfg.SetSpectrum(32, 0, 0, 0))
	snapshot := cfg.Snapshot()
	assert.Equal(t, 32, snapshot.Bands)
	assert.Equal(t, 1024, snapshot.ChunkSize, "zero chunk size keeps the current value")
	assert.Equal(t, 12.0, snapshot.Dancy)

	require.NoError(t, cfg.SetSpectrum(0, 4096, 10, 4))
	snapshot = cfg.Snapshot()
	assert.Equal(t, 32, snapshot.Bands)
	assert.Equal(t, 4096, snapshot.ChunkSize)
	assert.Equal(t, 4.0, snapshot.Dancy)
	assert.Equal(t, 10, snapshot.FrameRate)
}

func TestSetSpectrumRejectsInvalid(t *testing.T) {
	cfg := New(configPath(t))
	require.NoError(t, cfg.Load())

	assert.Error(t, cfg.SetSpectrum(0, 1000, 0, 0), "non power of two")
	assert.Error(t, cfg.SetSpectrum(200, 0, 0, 0), "too many bands")

	// Rejected updates must leave the held values untouched.
	snapshot := cfg.Snapshot()
	assert.Equal(t, 64, snapshot.Bands)
	assert.Equal(t, 1024, snapshot.ChunkSize)
}
