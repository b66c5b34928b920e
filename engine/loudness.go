// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"io"
	"math"

	"github.com/ik5/audmix/audio"
)

// Analyzer estimates the perceived level of an interleaved float32 block
// on a linear scale, where doubling the result reads as roughly twice as
// loud a gain target. Analyzers run on caller goroutines, never the
// audio thread, so implementations may be as expensive as they like.
type Analyzer interface {
	Measure(samples []float32, channels, rate int) float64
}

// Built-in analyzer method names accepted by MatchLoudness.
const (
	MethodRMS       = "rms"
	MethodPeak      = "peak"
	MethodLUFS      = "lufs"
	MethodAWeighted = "a_weighted"
)

func registerBuiltinAnalyzers(m map[string]Analyzer) {
	m[MethodRMS] = rmsAnalyzer{}
	m[MethodPeak] = peakAnalyzer{}
	m[MethodLUFS] = lufsAnalyzer{}
	m[MethodAWeighted] = aWeightedAnalyzer{}
}

// rmsAnalyzer is the engine's reference level estimator.
type rmsAnalyzer struct{}

func (rmsAnalyzer) Measure(samples []float32, channels, rate int) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

type peakAnalyzer struct{}

func (peakAnalyzer) Measure(samples []float32, channels, rate int) float64 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return float64(peak)
}

// lufsAnalyzer is a simplified integrated-loudness estimate: the stream
// is cut into 400 ms blocks, near-silent blocks are gated out, and the
// rest contribute their mean square. No K-weighting filter; the result
// stays on the same linear scale as the RMS analyzer.
type lufsAnalyzer struct{}

func (lufsAnalyzer) Measure(samples []float32, channels, rate int) float64 {
	if len(samples) == 0 || rate <= 0 || channels <= 0 {
		return 0
	}
	block := rate * channels * 2 / 5 // 400 ms of interleaved samples
	if block <= 0 || block > len(samples) {
		block = len(samples)
	}
	const gate = 1e-7 // roughly -70 dBFS mean square
	var sum float64
	var counted int
	for off := 0; off+block <= len(samples); off += block {
		var ms float64
		for _, s := range samples[off : off+block] {
			ms += float64(s) * float64(s)
		}
		ms /= float64(block)
		if ms < gate {
			continue
		}
		sum += ms
		counted++
	}
	if counted == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(counted))
}

// aWeightedAnalyzer approximates A-weighting with a first-order
// high-pass emphasis before the RMS sum, de-weighting low-frequency
// energy the ear discounts.
type aWeightedAnalyzer struct{}

func (aWeightedAnalyzer) Measure(samples []float32, channels, rate int) float64 {
	if channels <= 0 || len(samples) < channels {
		return 0
	}
	frames := len(samples) / channels
	var sum float64
	prev := make([]float64, channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			x := float64(samples[i*channels+c])
			y := x - 0.95*prev[c]
			prev[c] = x
			sum += y * y
		}
	}
	return math.Sqrt(sum / float64(frames*channels))
}

// analyzerFor resolves a method name, falling back to RMS when the
// method is unknown or no plug-in was registered for it.
func (e *Engine) analyzerFor(method string) Analyzer {
	if a, ok := e.analyzers[method]; ok {
		return a
	}
	e.logger.Debug("unknown loudness method, using rms", "method", method)
	return e.analyzers[MethodRMS]
}

// matchProbeSeconds bounds how much audio MatchLoudness decodes per
// track.
const matchProbeSeconds = 10

// MatchLoudness measures both tracks with the named method and returns a
// volume pair that brings each to the target level. Unknown methods fall
// back to RMS. Results are clamped to [0, MaxVolume].
func (e *Engine) MatchLoudness(aID, bID string, target float64, method string) (volA, volB float64, err error) {
	if target <= 0 {
		return 0, 0, fmt.Errorf("%w: loudness target %v", ErrInvalidArgument, target)
	}
	a, err := e.track(aID)
	if err != nil {
		return 0, 0, err
	}
	b, err := e.track(bID)
	if err != nil {
		return 0, 0, err
	}

	analyzer := e.analyzerFor(method)
	la, err := e.measureTrack(a, analyzer)
	if err != nil {
		return 0, 0, err
	}
	lb, err := e.measureTrack(b, analyzer)
	if err != nil {
		return 0, 0, err
	}
	return volumeFor(target, la), volumeFor(target, lb), nil
}

func volumeFor(target, level float64) float64 {
	if level <= 0 {
		return 1.0
	}
	v := target / level
	if v > MaxVolume {
		v = MaxVolume
	}
	return v
}

// measureTrack runs the analyzer over the track's samples: the whole
// buffer for preloaded tracks, a decoded head for streaming ones.
// Streaming sources are pulled through the cubic resampler and mono
// mixer first, so every measurement happens in one domain (engine rate,
// mono) regardless of the source's rate and channel layout.
func (e *Engine) measureTrack(t *Track, analyzer Analyzer) (float64, error) {
	if t.mode == modePreloaded {
		return analyzer.Measure(t.data, t.srcChannels, t.srcRate), nil
	}
	src, err := t.opener()
	if err != nil {
		return 0, err
	}
	pipe := audio.NewMonoMixer(audio.NewResampler(src, e.cfg.SampleRate))
	defer pipe.Close()
	samples, err := readSampleHead(pipe, e.cfg.SampleRate*matchProbeSeconds)
	if err != nil {
		return 0, err
	}
	return analyzer.Measure(samples, 1, e.cfg.SampleRate), nil
}

// readSampleHead reads up to limit samples from a source.
func readSampleHead(src audio.Source, limit int) ([]float32, error) {
	out := make([]float32, 0, min(limit, 1<<20))
	buf := make([]float32, 4096)
	for len(out) < limit {
		n, err := src.ReadSamples(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	return out, nil
}
