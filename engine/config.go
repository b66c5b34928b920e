// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/ik5/audmix/audio"
)

// Latency selects the output stream latency class. The device layer maps
// it onto the driver's suggested low/high latency values.
type Latency int

const (
	LatencyLow Latency = iota
	LatencyMedium
	LatencyHigh
)

func (l Latency) String() string {
	switch l {
	case LatencyLow:
		return "low"
	case LatencyMedium:
		return "medium"
	case LatencyHigh:
		return "high"
	}
	return "unknown"
}

// UnmarshalYAML accepts "low", "medium" or "high".
func (l *Latency) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("%w", err)
	}
	switch s {
	case "low":
		*l = LatencyLow
	case "medium", "":
		*l = LatencyMedium
	case "high":
		*l = LatencyHigh
	default:
		return fmt.Errorf("%w: latency %q", ErrInvalidArgument, s)
	}
	return nil
}

// MarshalYAML emits the string form.
func (l Latency) MarshalYAML() (any, error) {
	return l.String(), nil
}

// Config holds the immutable engine parameters. Zero-value fields are
// replaced with defaults by New.
type Config struct {
	// SampleRate is the output rate in Hz.
	SampleRate int `yaml:"sample_rate"`
	// BufferSize is the number of frames produced per callback.
	BufferSize int `yaml:"buffer_size"`
	// Channels is the output channel count, 1 or 2.
	Channels int `yaml:"channels"`
	// MaxTracks caps the number of simultaneously playing (or fading)
	// tracks; up to 4×MaxTracks tracks may be loaded.
	MaxTracks int `yaml:"max_tracks"`
	// Device names the output device; empty selects the default.
	Device string `yaml:"device"`
	// Latency is the requested stream latency class.
	Latency Latency `yaml:"latency"`
	// EnableStreaming permits ring-buffer backed tracks.
	EnableStreaming *bool `yaml:"enable_streaming"`
}

// DefaultConfig returns the engine defaults: 48 kHz stereo, 1024-frame
// buffers, 32 tracks, medium latency, streaming enabled.
func DefaultConfig() Config {
	enabled := true
	return Config{
		SampleRate:      48000,
		BufferSize:      1024,
		Channels:        2,
		MaxTracks:       32,
		Latency:         LatencyMedium,
		EnableStreaming: &enabled,
	}
}

// LoadConfig reads a YAML configuration file, filling unset fields with
// defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = def.SampleRate
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
	if c.Channels == 0 {
		c.Channels = def.Channels
	}
	if c.MaxTracks == 0 {
		c.MaxTracks = def.MaxTracks
	}
	if c.EnableStreaming == nil {
		c.EnableStreaming = def.EnableStreaming
	}
}

func (c Config) validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidArgument, c.SampleRate)
	}
	if c.BufferSize < 64 || c.BufferSize > 1<<16 {
		return fmt.Errorf("%w: buffer size %d", ErrInvalidArgument, c.BufferSize)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("%w: channels %d", ErrInvalidArgument, c.Channels)
	}
	if c.MaxTracks < 1 {
		return fmt.Errorf("%w: max tracks %d", ErrInvalidArgument, c.MaxTracks)
	}
	return nil
}

func (c Config) streamingEnabled() bool {
	return c.EnableStreaming == nil || *c.EnableStreaming
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithLogger sets the engine logger. Background goroutines log through
// it; the audio callback never does.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRegistry sets the decoder registry used to resolve file sources.
func WithRegistry(reg *audio.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithAnalyzer registers a loudness analyzer under the given method name,
// replacing any built-in of the same name.
func WithAnalyzer(name string, a Analyzer) Option {
	return func(e *Engine) { e.analyzers[name] = a }
}
