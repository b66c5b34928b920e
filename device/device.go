// SPDX-License-Identifier: EPL-2.0

package device

import (
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/ik5/audmix/engine"
)

// Stream is a portaudio output stream that pulls mixed frames from a
// callback. It implements engine.OutputStream.
type Stream struct {
	stream *portaudio.Stream
	opened bool
}

// Open initializes portaudio and opens an output stream matching the
// engine configuration. cb is invoked on the audio thread with an
// interleaved buffer of cfg.BufferSize*cfg.Channels float32 values to
// fill; pass engine.Callback.
func Open(cfg engine.Config, cb func([]float32)) (*Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	info, err := outputDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	params := portaudio.HighLatencyParameters(nil, info)
	if cfg.Latency == engine.LatencyLow {
		params = portaudio.LowLatencyParameters(nil, info)
	}
	params.Output.Channels = cfg.Channels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.BufferSize
	if cfg.Latency == engine.LatencyMedium {
		params.Output.Latency = (info.DefaultLowOutputLatency + info.DefaultHighOutputLatency) / 2
	}

	stream, err := portaudio.OpenStream(params, func(out []float32) {
		cb(out)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening output stream: %w", err)
	}

	return &Stream{stream: stream, opened: true}, nil
}

// Start begins pulling audio.
func (s *Stream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("starting output stream: %w", err)
	}
	return nil
}

// Stop blocks until the device has played out its buffers and returned
// from the final callback.
func (s *Stream) Stop() error {
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("stopping output stream: %w", err)
	}
	return nil
}

// Close releases the stream and tears down portaudio.
func (s *Stream) Close() error {
	if !s.opened {
		return nil
	}
	s.opened = false
	err := s.stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	if err != nil {
		return fmt.Errorf("closing output stream: %w", err)
	}
	return nil
}

// Latency reports the stream's actual output latency.
func (s *Stream) Latency() time.Duration {
	return s.stream.Info().OutputLatency
}

// outputDevice resolves a device by name, or the default output device
// for an empty name.
func outputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		info, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("default output device: %w", err)
		}
		return info, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	for _, info := range devices {
		if info.Name == name && info.MaxOutputChannels > 0 {
			return info, nil
		}
	}
	return nil, fmt.Errorf("no output device named %q", name)
}

// Devices lists the names of available output devices. portaudio is
// initialized and torn down around the query, so this works before
// Open.
func Devices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	var names []string
	for _, info := range devices {
		if info.MaxOutputChannels > 0 {
			names = append(names, info.Name)
		}
	}
	return names, nil
}
