package audio

import (
	"github.com/ik5/audmix/internal/audiotest"
)

// Thin aliases over internal/audiotest so the tests in this package read
// naturally. The returned *audiotest.MockSource implements Source.

func newSilentSource(sampleRate, channels, totalSamples int) *audiotest.MockSource {
	return audiotest.NewSilentSource(sampleRate, channels, totalSamples)
}

func newSineSource(sampleRate, channels, totalSamples int, frequency float64) *audiotest.MockSource {
	return audiotest.NewSineSource(sampleRate, channels, totalSamples, frequency)
}

func newConstantSource(sampleRate, channels, totalSamples int, value float32) *audiotest.MockSource {
	return audiotest.NewConstantSource(sampleRate, channels, totalSamples, value)
}

// newChannelSource emits +0.25 on the left channel and -0.25 on every
// other, to catch channel mix-ups.
func newChannelSource(sampleRate, channels, totalFrames int) *audiotest.MockSource {
	return newChannelSourceValues(sampleRate, channels, totalFrames, 0.25, -0.25)
}

// newChannelSourceValues emits left on channel 0 and right elsewhere.
func newChannelSourceValues(sampleRate, channels, totalFrames int, left, right float32) *audiotest.MockSource {
	return audiotest.NewMockSource(sampleRate, channels, totalFrames, func(frame, channel int) float32 {
		if channel == 0 {
			return left
		}
		return right
	})
}
