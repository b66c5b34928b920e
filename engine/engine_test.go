// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constMono(frames int, v float32) []float32 {
	buf := make([]float32, frames)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

func TestEngineLifecycle(t *testing.T) {
	t.Parallel()

	e, err := New(Config{})
	require.NoError(t, err)

	// Commands before Start are rejected.
	err = e.LoadTrack("x", BufferMono(constMono(100, 0.5), 0))
	assert.ErrorIs(t, err, ErrEngineNotRunning)
	assert.ErrorIs(t, e.Play("x"), ErrEngineNotRunning)

	require.NoError(t, e.Start(nil))
	assert.True(t, e.Running())

	require.NoError(t, e.LoadTrack("x", BufferMono(constMono(100, 0.5), 0)))
	require.NoError(t, e.Shutdown())
	assert.False(t, e.Running())

	assert.ErrorIs(t, e.Play("x"), ErrEngineNotRunning)
	assert.ErrorIs(t, e.Shutdown(), ErrEngineNotRunning)
}

func TestEngineConfigDefaults(t *testing.T) {
	t.Parallel()

	e, err := New(Config{})
	require.NoError(t, err)
	cfg := e.Config()
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 32, cfg.MaxTracks)

	_, err = New(Config{Channels: 6})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = New(Config{SampleRate: 100})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLoadUnloadRoundTrip(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})

	before := e.GetTrackCount()
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(1000, 0.1), 48000)))
	assert.Equal(t, before.Loaded+1, e.GetTrackCount().Loaded)
	assert.Equal(t, []string{"a"}, e.ListTracks())

	require.NoError(t, e.UnloadTrack("a"))
	assert.Equal(t, before, e.GetTrackCount())
	assert.Empty(t, e.ListTracks())

	assert.ErrorIs(t, e.UnloadTrack("a"), ErrTrackNotFound)
}

func TestLoadReplaceSameID(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})

	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(1000, 0.1), 48000)))
	require.NoError(t, e.Play("a", WithLoop(true)))

	// Replacing stops and swaps atomically; the new track starts idle.
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(2000, 0.2), 48000)))
	info, err := e.GetTrackInfo("a")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, info.State)
	assert.InDelta(t, 2000.0/48000, info.Duration, 1e-9)
	assert.Equal(t, 1, e.GetTrackCount().Loaded)

	// With replacement disabled the old track survives.
	err = e.LoadTrack("a", BufferMono(constMono(3000, 0.3), 48000), WithReplace(false))
	assert.ErrorIs(t, err, ErrTrackExists)
	info, err = e.GetTrackInfo("a")
	require.NoError(t, err)
	assert.InDelta(t, 2000.0/48000, info.Duration, 1e-9)
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})

	assert.ErrorIs(t, e.LoadTrack("", BufferMono(constMono(10, 0), 0)), ErrInvalidArgument)
	assert.ErrorIs(t, e.LoadTrack("x", BufferMono(nil, 0)), ErrInvalidArgument)
	assert.ErrorIs(t, e.LoadTrack("x", BufferStereo(constMono(11, 0), 0)), ErrInvalidArgument)
	assert.ErrorIs(t, e.LoadTrack("x", BufferMono(constMono(10, 0), 0), WithSpeed(9)), ErrInvalidArgument)
	assert.ErrorIs(t, e.LoadTrack("x", File("nope.xyz")), ErrUnsupportedFormat)
}

func TestLoadAutoNormalize(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	require.NoError(t, e.LoadTrack("quiet", BufferMono(constMono(1000, 0.1), 48000), WithAutoNormalize()))

	tr, err := e.track("quiet")
	require.NoError(t, err)
	var peak float32
	for _, s := range tr.data {
		if s > peak {
			peak = s
		}
	}
	assert.InDelta(t, 0.95, float64(peak), 1e-4)
}

func TestPlayErrors(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	assert.ErrorIs(t, e.Play("ghost"), ErrTrackNotFound)

	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(48000, 0.1), 48000)))
	require.NoError(t, e.Play("a"))
	assert.ErrorIs(t, e.Play("a"), ErrInvalidArgument, "double play must fail")
	assert.ErrorIs(t, e.Play("a", WithVolume(5)), ErrInvalidArgument)
}

func TestPlayCapacity(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{MaxTracks: 2})
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, e.LoadTrack(id, BufferMono(constMono(48000, 0.1), 48000)))
	}
	require.NoError(t, e.Play("a"))
	require.NoError(t, e.Play("b"))

	err := e.Play("c")
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	info, _ := e.GetTrackInfo("c")
	assert.Equal(t, StateIdle, info.State, "failed play must not change state")

	// Paused tracks do not count toward the cap.
	require.NoError(t, e.Pause("a"))
	require.NoError(t, e.Play("c"))
}

func TestPauseResumePreservesCursor(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(480000, 0.1), 48000)))
	require.NoError(t, e.Play("a"))
	pull(e, 3)

	require.NoError(t, e.Pause("a"))
	tr, err := e.track("a")
	require.NoError(t, err)
	at := tr.cursor.Load()
	assert.Equal(t, 3.0*1024, at)

	// Paused tracks produce nothing and hold position.
	out := pull(e, 2)
	assert.Equal(t, float32(0), out[0])
	assert.Equal(t, at, tr.cursor.Load())

	info, _ := e.GetTrackInfo("a")
	assert.True(t, info.Paused)
	assert.Equal(t, []string{"a"}, e.GetPausedTracks())

	require.NoError(t, e.Resume("a"))
	pull(e, 1)
	assert.Equal(t, at+1024, tr.cursor.Load(), "resume continues from the held cursor")

	assert.ErrorIs(t, e.Resume("a"), errTrackNotPaused)
	require.NoError(t, e.Pause("a"), "playing again, pause is legal")
}

func TestStopResetsCursorAndReports(t *testing.T) {
	t.Parallel()

	done := make(chan bool, 1)
	e := newTestEngine(t, Config{})
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(480000, 0.1), 48000),
		WithOnComplete(func(id string, ok bool, err error) { done <- ok })))
	require.NoError(t, e.Play("a"))
	pull(e, 2)

	require.NoError(t, e.Stop("a"))
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stop must report completion")
	}

	pull(e, 1)
	info, _ := e.GetTrackInfo("a")
	assert.Equal(t, StateIdle, info.State)
	assert.Equal(t, 0.0, info.Position)

	// Stopping an idle track is a quiet no-op.
	require.NoError(t, e.Stop("a"))
}

func TestSetVolumeSpeedLoopValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(48000, 0.1), 48000)))

	assert.ErrorIs(t, e.SetVolume("a", -0.1), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetVolume("a", 2.5), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetSpeed("a", 0.05), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetSpeed("a", 4.5), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetVolume("ghost", 0.5), ErrTrackNotFound)

	require.NoError(t, e.SetVolume("a", 0.5))
	require.NoError(t, e.SetSpeed("a", 1.5))
	require.NoError(t, e.SetLoop("a", true))

	info, err := e.GetTrackInfo("a")
	require.NoError(t, err)
	assert.Equal(t, 0.5, info.Volume)
	assert.Equal(t, 1.5, info.Speed)
	assert.True(t, info.Loop)
}

func TestMuteUnmuteRestoresTarget(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(48000, 0.1), 48000)))
	require.NoError(t, e.SetVolume("a", 0.73))

	require.NoError(t, e.Mute("a"))
	info, _ := e.GetTrackInfo("a")
	assert.True(t, info.Muted)

	// Double mute must not clobber the saved volume.
	require.NoError(t, e.Mute("a"))

	require.NoError(t, e.Unmute("a"))
	info, _ = e.GetTrackInfo("a")
	assert.False(t, info.Muted)
	assert.Equal(t, 0.73, info.Volume, "unmute must restore the exact pre-mute volume")

	// Unmute on an unmuted track is a no-op.
	require.NoError(t, e.Unmute("a"))
}

func TestSeekLandsWithinOneCallback(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(480000, 0.1), 48000)))
	require.NoError(t, e.Play("a"))
	pull(e, 2)

	const target = 3.5
	require.NoError(t, e.Seek("a", target))
	pull(e, 1)

	info, err := e.GetTrackInfo("a")
	require.NoError(t, err)
	period := float64(e.cfg.BufferSize) / float64(e.cfg.SampleRate)
	assert.GreaterOrEqual(t, info.Position, target)
	assert.LessOrEqual(t, info.Position, target+period+1e-9)

	assert.ErrorIs(t, e.Seek("a", -1), ErrInvalidArgument)
	assert.ErrorIs(t, e.Seek("a", 100), ErrInvalidArgument)
}

func TestTrackInfoFields(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(44100, 0.1), 44100)))

	info, err := e.GetTrackInfo("a")
	require.NoError(t, err)
	assert.Equal(t, "a", info.ID)
	assert.Equal(t, 44100, info.SampleRate)
	assert.Equal(t, 48000, info.EngineSampleRate)
	assert.InDelta(t, 44100.0/48000, info.SampleRateRatio, 1e-12)
	assert.InDelta(t, 1.0, info.Duration, 1e-9)
	assert.False(t, info.Streaming)

	_, err = e.GetTrackInfo("ghost")
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestNaturalEndFiresOnComplete(t *testing.T) {
	t.Parallel()

	done := make(chan bool, 1)
	e := newTestEngine(t, Config{BufferSize: 256})
	require.NoError(t, e.LoadTrack("short", BufferMono(constMono(1000, 0.5), 48000),
		WithOnComplete(func(id string, ok bool, err error) { done <- ok })))
	require.NoError(t, e.Play("short"))

	deadline := time.After(2 * time.Second)
	for {
		pull(e, 1)
		select {
		case ok := <-done:
			assert.True(t, ok)
			info, _ := e.GetTrackInfo("short")
			assert.Equal(t, StateIdle, info.State)
			assert.Equal(t, 0.0, info.Position)
			return
		case <-deadline:
			t.Fatal("natural end never reported")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestPerformanceStats(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(480000, 0.5), 48000)))
	require.NoError(t, e.Play("a"))
	pull(e, 3)

	stats := e.GetPerformanceStats()
	assert.Equal(t, 1, stats.ActiveTracks)
	assert.Equal(t, 1, stats.TotalTracks)
	assert.InDelta(t, 0.5, stats.PeakLevel, 1e-6)
	assert.GreaterOrEqual(t, stats.CPUUsage, 0.0)
	assert.Equal(t, uint64(0), stats.Underruns)
}

func TestVolumeNeverOvershootsTarget(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, Config{})
	require.NoError(t, e.LoadTrack("a", BufferMono(constMono(480000, 0.5), 48000), WithSpeed(1.0)))
	require.NoError(t, e.Play("a", WithVolume(0.6), WithLoop(true)))

	tr, err := e.track("a")
	require.NoError(t, err)

	require.NoError(t, e.SetVolume("a", 1.0))
	for i := 0; i < 8; i++ {
		pull(e, 1)
		cur := tr.currentVol.Load()
		assert.LessOrEqual(t, cur, 1.0+1e-9)
		assert.GreaterOrEqual(t, cur, 0.0)
	}
	assert.InDelta(t, 1.0, tr.currentVol.Load(), 1e-9)
}
