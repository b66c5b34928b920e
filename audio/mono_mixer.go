// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// MonoMixer folds a multi-channel source down to mono by averaging the
// channels of each frame. Mono input passes through untouched.
//
// Chained after a Resampler it normalizes any source to a common
// domain, which is how the engine's loudness measurement compares
// tracks with different layouts.
type MonoMixer struct {
	src Source
	tmp []float32
}

func NewMonoMixer(src Source) *MonoMixer {
	return &MonoMixer{
		src: src,
		tmp: make([]float32, 4096),
	}
}

func (m *MonoMixer) SampleRate() int { return m.src.SampleRate() }
func (m *MonoMixer) Channels() int   { return 1 }
func (m *MonoMixer) BufSize() int    { return m.src.BufSize() }

// Close releases the wrapped source.
func (m *MonoMixer) Close() error {
	if err := m.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// ReadSamples fills dst with mono samples, one per source frame, and
// returns the number of frames written.
func (m *MonoMixer) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	ch := m.src.Channels()
	if ch == 1 {
		return m.src.ReadSamples(dst)
	}

	need := len(dst) * ch
	if len(m.tmp) < need {
		m.tmp = make([]float32, need)
	}

	n, err := m.src.ReadSamples(m.tmp[:need])
	if n == 0 {
		return 0, err
	}

	frames := n / ch
	scale := 1 / float32(ch)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += m.tmp[f*ch+c]
		}
		dst[f] = sum * scale
	}

	return frames, err
}
