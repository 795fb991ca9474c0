// Package levmarq configuration constants and the dispatch configuration
package levmarq

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Window and sampling defaults
const (
	// Maximum window width an event may request (sizes the scratch partition)
	DefaultMaxWindow = 256

	// Interpolated positions per stored sample
	DefaultInterpolation = 1

	// Samples stored per event
	DefaultSamplesPerEvent = 1000
)

// Solver loop defaults
const (
	// Hard bound on iterations per event
	DefaultMaxIterations = 100

	// Initial Levenberg damping factor
	DefaultDampingInit = 1.0

	// Factor mu is multiplied or divided by
	DefaultDampingScale = 2.0

	// Gain ratio at or below which a step is rejected
	DefaultAcceptThreshold = 0.2

	// Gain ratio at or above which damping is relaxed
	DefaultExpandThreshold = 0.8

	// Largest accepted step component that still counts as converged
	DefaultTolerance = 1e-6
)

// Thread and block dimensions
const (
	// Cooperating workers per event
	DefaultThreads = 4

	// Upper bound on workers per event
	MaxThreadsPerBlock = 128
)

// Pipeline defaults
const (
	// Events per chunk handed to one launch
	DefaultChunkEvents = 1024

	// Chunks held by each bounded buffer
	DefaultBufferCapacity = 8
)

// Config holds the process-wide, immutable parameters of a Dispatcher.
type Config struct {
	MaxWindow       int     `yaml:"max_window"`
	Interpolation   int     `yaml:"interpolation"`
	MaxIterations   int     `yaml:"max_iterations"`
	Threads         int     `yaml:"threads"`
	Workers         int     `yaml:"workers"`
	SamplesPerEvent int     `yaml:"samples_per_event"`
	ChunkEvents     int     `yaml:"chunk_events"`
	BufferCapacity  int     `yaml:"buffer_capacity"`
	DampingInit     float64 `yaml:"damping_init"`
	DampingScale    float64 `yaml:"damping_scale"`
	AcceptThreshold float64 `yaml:"accept_threshold"`
	ExpandThreshold float64 `yaml:"expand_threshold"`
	Tolerance       float64 `yaml:"tolerance"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxWindow:       DefaultMaxWindow,
		Interpolation:   DefaultInterpolation,
		MaxIterations:   DefaultMaxIterations,
		Threads:         DefaultThreads,
		Workers:         runtime.GOMAXPROCS(0),
		SamplesPerEvent: DefaultSamplesPerEvent,
		ChunkEvents:     DefaultChunkEvents,
		BufferCapacity:  DefaultBufferCapacity,
		DampingInit:     DefaultDampingInit,
		DampingScale:    DefaultDampingScale,
		AcceptThreshold: DefaultAcceptThreshold,
		ExpandThreshold: DefaultExpandThreshold,
		Tolerance:       DefaultTolerance,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, withContext(ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first unusable field.
func (c Config) Validate() error {
	switch {
	case c.MaxWindow < 0:
		return withContext(ErrInvalidConfig, "max_window must be >= 0", nil)
	case c.Interpolation < 1:
		return withContext(ErrInvalidConfig, "interpolation must be >= 1", nil)
	case c.MaxIterations < 1:
		return withContext(ErrInvalidConfig, "max_iterations must be >= 1", nil)
	case c.Threads < 1 || c.Threads > MaxThreadsPerBlock:
		return withContext(ErrInvalidConfig, fmt.Sprintf("threads must be in [1, %d]", MaxThreadsPerBlock), nil)
	case c.Workers < 1:
		return withContext(ErrInvalidConfig, "workers must be >= 1", nil)
	case c.SamplesPerEvent < 1:
		return withContext(ErrInvalidConfig, "samples_per_event must be >= 1", nil)
	case c.ChunkEvents < 1:
		return withContext(ErrInvalidConfig, "chunk_events must be >= 1", nil)
	case c.BufferCapacity < 1:
		return withContext(ErrInvalidConfig, "buffer_capacity must be >= 1", nil)
	case !finitePositive(c.DampingInit):
		return withContext(ErrInvalidConfig, "damping_init must be finite and > 0", nil)
	case !finitePositive(c.DampingScale) || c.DampingScale <= 1:
		return withContext(ErrInvalidConfig, "damping_scale must be finite and > 1", nil)
	case !(c.AcceptThreshold < c.ExpandThreshold):
		return withContext(ErrInvalidConfig, "accept_threshold must be below expand_threshold", nil)
	case !finitePositive(c.Tolerance):
		return withContext(ErrInvalidConfig, "tolerance must be finite and > 0", nil)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
