// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Start(nil))
	t.Cleanup(func() {
		if e.Running() {
			e.Shutdown()
		}
	})
	return e
}

// pull runs n callbacks and returns their concatenated output.
func pull(e *Engine, n int) []float32 {
	size := e.cfg.BufferSize * e.cfg.Channels
	out := make([]float32, 0, n*size)
	buf := make([]float32, size)
	for i := 0; i < n; i++ {
		e.Callback(buf)
		out = append(out, buf...)
	}
	return out
}

func stereoSine(frames int, freq, rate float64) []float32 {
	buf := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		s := float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
		buf[2*i] = s
		buf[2*i+1] = s
	}
	return buf
}

// TestMixerSineIdentity plays a full-scale stereo sine at the engine
// rate and checks the output is the input, bit for bit, at unit gain.
func TestMixerSineIdentity(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{SampleRate: 48000, BufferSize: 1024, Channels: 2})
	src := stereoSine(96000, 440, 48000)
	require.NoError(t, e.LoadTrack("sine", BufferStereo(src, 48000)))
	require.NoError(t, e.Play("sine", WithVolume(1.0)))

	out := pull(e, 47)[:48000*2]

	// Unit gain, matching rates and channels: the fast path must be an
	// exact pass-through.
	for i := range out {
		if out[i] != src[i] {
			t.Fatalf("sample %d: got %v want %v", i, out[i], src[i])
		}
	}

	var peak, sum float64
	for _, s := range out {
		v := float64(s)
		if math.Abs(v) > peak {
			peak = math.Abs(v)
		}
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(out)))
	assert.Greater(t, peak, 0.9999)
	assert.InDelta(t, 0.707, rms, 0.01)

	// One 440 Hz period at 48 kHz is ~109 frames.
	assert.InDelta(t, float64(out[0]), float64(out[109*2]), 6e-3)
}

// TestMixerResample44100 plays one second of mono 44.1 kHz audio and
// checks it lasts one second of output, within a frame, at full level.
func TestMixerResample44100(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{SampleRate: 48000, BufferSize: 1024, Channels: 2})
	src := make([]float32, 44100)
	for i := range src {
		src[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 44100))
	}
	require.NoError(t, e.LoadTrack("m", BufferMono(src, 44100)))
	require.NoError(t, e.Play("m"))

	var out []float32
	buf := make([]float32, e.cfg.BufferSize*2)
	for i := 0; i < 60; i++ {
		e.Callback(buf)
		out = append(out, buf...)
		info, err := e.GetTrackInfo("m")
		require.NoError(t, err)
		if info.State == StateIdle || info.State == StateEnding {
			break
		}
	}

	// Trailing frames of the final callback are silence; find the last
	// audible frame.
	last := 0
	var peak float64
	for i := 0; i < len(out)/2; i++ {
		v := math.Abs(float64(out[2*i]))
		if v > 1e-4 {
			last = i
		}
		if v > peak {
			peak = v
		}
	}
	assert.InDelta(t, 48000, last, float64(e.cfg.BufferSize))
	assert.InDelta(t, 1.0, peak, 0.02)
}

// TestMixerLoopWrap seeks near the end of a looping track and checks
// the next block stitches end and start together with the right cursor.
func TestMixerLoopWrap(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{SampleRate: 48000, BufferSize: 1024, Channels: 2})
	src := make([]float32, 1000)
	for i := range src {
		src[i] = float32(i) / 1000
	}
	require.NoError(t, e.LoadTrack("loop", BufferMono(src, 48000)))
	require.NoError(t, e.Play("loop", WithLoop(true), WithSeek(900.0/48000)))

	out := pull(e, 1)

	for i := 0; i < 100; i++ {
		require.Equal(t, src[900+i], out[2*i], "frame %d should come from source frame %d", i, 900+i)
	}
	for i := 100; i < 1024; i++ {
		require.Equal(t, src[i-100], out[2*i], "frame %d should come from source frame %d", i, i-100)
	}

	tr, err := e.track("loop")
	require.NoError(t, err)
	assert.Equal(t, 924.0, tr.cursor.Load())
}

// TestMixerMuteUnmute checks output drops to silence within a few
// callbacks of Mute and recovers to the pre-mute level after Unmute.
func TestMixerMuteUnmute(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{SampleRate: 48000, BufferSize: 1024, Channels: 2})
	src := stereoSine(480000, 440, 48000)
	require.NoError(t, e.LoadTrack("s", BufferStereo(src, 48000)))
	require.NoError(t, e.Play("s", WithVolume(0.8), WithLoop(true)))

	before := blockPeak(pull(e, 2))
	require.Greater(t, before, 0.7)

	require.NoError(t, e.Mute("s"))
	pull(e, 4)
	muted := blockPeak(pull(e, 1))
	assert.Less(t, muted, 1e-3)

	require.NoError(t, e.Unmute("s"))
	pull(e, 4)
	after := blockPeak(pull(e, 1))
	assert.InDelta(t, before, after, before*0.05)
}

func blockPeak(block []float32) float64 {
	var peak float64
	for _, s := range block {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return peak
}

// TestMixerFadeInReachesTarget checks the fade ramp is monotonic and
// lands exactly on the target when the countdown hits zero.
func TestMixerFadeInReachesTarget(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{SampleRate: 48000, BufferSize: 1024, Channels: 2})
	src := make([]float32, 480000)
	for i := range src {
		src[i] = 0.5
	}
	require.NoError(t, e.LoadTrack("c", BufferMono(src, 48000)))
	require.NoError(t, e.Play("c",
		WithVolume(0.9),
		WithFadeIn(time.Duration(2048)*time.Second/48000),
		WithLoop(true)))

	tr, err := e.track("c")
	require.NoError(t, err)

	prev := -1.0
	for i := 0; i < 3; i++ {
		pull(e, 1)
		cur := tr.currentVol.Load()
		require.GreaterOrEqual(t, cur, prev, "fade must be monotonic")
		prev = cur
	}
	assert.Equal(t, 0.9, tr.currentVol.Load(), "gain must land exactly on target")
	assert.Equal(t, StatePlaying, State(tr.state.Load()), "fade-in commits to playing")
}

// TestMixerFadeOutCompletes checks a faded stop ends in idle with the
// cursor reset and the completion callback delivered.
func TestMixerFadeOutCompletes(t *testing.T) {
	t.Parallel()

	done := make(chan bool, 1)
	e := newTestEngine(t, Config{SampleRate: 48000, BufferSize: 1024, Channels: 2})
	src := make([]float32, 480000)
	for i := range src {
		src[i] = 0.5
	}
	require.NoError(t, e.LoadTrack("c", BufferMono(src, 48000),
		WithOnComplete(func(id string, ok bool, err error) { done <- ok })))
	require.NoError(t, e.Play("c", WithLoop(true)))
	pull(e, 2)

	require.NoError(t, e.Stop("c", WithFadeOut(30*time.Millisecond)))
	for i := 0; i < 5; i++ {
		pull(e, 1)
	}

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}

	info, err := e.GetTrackInfo("c")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, info.State)
	assert.Equal(t, 0.0, info.Position)
}

// TestMixerHardClip sums two hot tracks and checks the output is
// clipped to [-1, 1] with the peak stat reflecting the clip.
func TestMixerHardClip(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{SampleRate: 48000, BufferSize: 256, Channels: 1})
	src := make([]float32, 48000)
	for i := range src {
		src[i] = 0.8
	}
	require.NoError(t, e.LoadTrack("a", BufferMono(src, 48000)))
	require.NoError(t, e.LoadTrack("b", BufferMono(src, 48000)))
	require.NoError(t, e.Play("a"))
	require.NoError(t, e.Play("b"))

	out := pull(e, 2)
	for i, s := range out {
		require.LessOrEqual(t, s, float32(1.0), "sample %d above full scale", i)
		require.GreaterOrEqual(t, s, float32(-1.0), "sample %d below full scale", i)
	}
	assert.Equal(t, float32(1.0), out[0], "0.8 + 0.8 must clip to 1.0")
	assert.Equal(t, 1.0, e.GetPerformanceStats().PeakLevel)
}

// TestMixerSpeedDouble checks a 2x speed track consumes source frames
// twice as fast.
func TestMixerSpeedDouble(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{SampleRate: 48000, BufferSize: 1024, Channels: 1})
	src := make([]float32, 96000)
	for i := range src {
		src[i] = float32(i) / 96000
	}
	require.NoError(t, e.LoadTrack("r", BufferMono(src, 48000), WithSpeed(2.0)))
	require.NoError(t, e.Play("r"))

	pull(e, 10)
	tr, err := e.track("r")
	require.NoError(t, err)
	assert.InDelta(t, 10*1024*2, tr.cursor.Load(), 1)
}

// TestMixerSnapshotContention checks the callback keeps producing from
// its previous snapshot while the track map lock is held elsewhere.
func TestMixerSnapshotContention(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{SampleRate: 48000, BufferSize: 256, Channels: 1})
	src := make([]float32, 48000)
	for i := range src {
		src[i] = 0.5
	}
	require.NoError(t, e.LoadTrack("c", BufferMono(src, 48000)))
	require.NoError(t, e.Play("c", WithLoop(true)))
	pull(e, 1)

	e.mu.Lock()
	out := pull(e, 1)
	e.mu.Unlock()

	assert.Equal(t, float32(0.5), out[0], "stale snapshot must still mix")
}
