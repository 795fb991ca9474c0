package levmarq

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 256, cfg.MaxWindow)
	assert.Equal(t, 1, cfg.Interpolation)
	assert.Equal(t, 100, cfg.MaxIterations)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
	assert.Equal(t, 1000, cfg.SamplesPerEvent)
	assert.Equal(t, 1024, cfg.ChunkEvents)
	assert.Equal(t, 8, cfg.BufferCapacity)
	assert.Equal(t, 1.0, cfg.DampingInit)
	assert.Equal(t, 2.0, cfg.DampingScale)
	assert.Equal(t, 0.2, cfg.AcceptThreshold)
	assert.Equal(t, 0.8, cfg.ExpandThreshold)
	assert.Equal(t, 1e-6, cfg.Tolerance)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "levmarq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_window: 64
threads: 8
tolerance: 1e-8
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.MaxWindow)
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, 1e-8, cfg.Tolerance)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, DefaultAcceptThreshold, cfg.AcceptThreshold)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbled := filepath.Join(dir, "garbled.yaml")
	require.NoError(t, os.WriteFile(garbled, []byte("threads: [1, 2"), 0644))
	_, err = LoadConfig(garbled)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("damping_scale: 1\n"), 0644))
	_, err = LoadConfig(invalid)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "damping_scale")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"Negative_Window", func(c *Config) { c.MaxWindow = -1 }, "max_window"},
		{"No_Interpolation", func(c *Config) { c.Interpolation = 0 }, "interpolation"},
		{"No_Iterations", func(c *Config) { c.MaxIterations = 0 }, "max_iterations"},
		{"No_Threads", func(c *Config) { c.Threads = 0 }, "threads"},
		{"Too_Many_Threads", func(c *Config) { c.Threads = MaxThreadsPerBlock + 1 }, "threads"},
		{"No_Workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"No_Samples", func(c *Config) { c.SamplesPerEvent = 0 }, "samples_per_event"},
		{"No_Chunk", func(c *Config) { c.ChunkEvents = 0 }, "chunk_events"},
		{"No_Buffer", func(c *Config) { c.BufferCapacity = 0 }, "buffer_capacity"},
		{"Zero_Damping", func(c *Config) { c.DampingInit = 0 }, "damping_init"},
		{"Shrinking_Scale", func(c *Config) { c.DampingScale = 0.5 }, "damping_scale"},
		{"Thresholds_Swapped", func(c *Config) { c.AcceptThreshold, c.ExpandThreshold = 0.9, 0.1 }, "accept_threshold"},
		{"Zero_Tolerance", func(c *Config) { c.Tolerance = 0 }, "tolerance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigMarshalRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interpolation = 4
	cfg.ExpandThreshold = 0.75

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "interpolation: 4")

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, cfg, back)
}
