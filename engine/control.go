// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"time"
)

// Volume and speed bounds accepted by the control plane.
const (
	MaxVolume = 2.0
	MinSpeed  = 0.1
	MaxSpeed  = 4.0
)

// DefaultFade is the ramp length used when a fade is requested without an
// explicit duration.
const DefaultFade = 80 * time.Millisecond

// volumeRampSeconds is the fixed slew time for set-volume and mute
// transitions.
const volumeRampSeconds = 0.05

// PlayOption adjusts a Play call.
type PlayOption func(*playParams)

type playParams struct {
	fadeIn  time.Duration
	loop    *bool
	seek    *float64
	volume  *float64
	hasFade bool
}

// WithFadeIn ramps the track in from silence over d.
func WithFadeIn(d time.Duration) PlayOption {
	return func(p *playParams) { p.fadeIn = d; p.hasFade = true }
}

// WithLoop sets looping for this playback.
func WithLoop(loop bool) PlayOption {
	return func(p *playParams) { p.loop = &loop }
}

// WithSeek starts playback at the given position in seconds.
func WithSeek(seconds float64) PlayOption {
	return func(p *playParams) { p.seek = &seconds }
}

// WithVolume sets the target volume for this playback.
func WithVolume(v float64) PlayOption {
	return func(p *playParams) { p.volume = &v }
}

// Play transitions a loaded idle track into playback. Fails when the id
// is unknown, the track is already playing, or the playing-track cap is
// reached. Only idle tracks accept Play; use Resume for paused ones.
func (e *Engine) Play(id string, opts ...PlayOption) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	var p playParams
	for _, opt := range opts {
		opt(&p)
	}
	if p.volume != nil && (*p.volume < 0 || *p.volume > MaxVolume) {
		return fmt.Errorf("%w: volume %v", ErrInvalidArgument, *p.volume)
	}

	e.mu.Lock()
	t, ok := e.tracks[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTrackNotFound, id)
	}
	st := State(t.state.Load())
	if st != StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q is %s", ErrInvalidArgument, id, st)
	}

	playing := 0
	for _, other := range e.tracks {
		if State(other.state.Load()).countsTowardCap() {
			playing++
		}
	}
	if playing >= e.cfg.MaxTracks {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d tracks playing", ErrCapacityExceeded, playing)
	}

	if p.seek != nil {
		if err := t.seekLocked(e, *p.seek); err != nil {
			e.mu.Unlock()
			return err
		}
	} else if t.mode == modePreloaded {
		// Streaming tracks are already rewound (at load, stop or end),
		// with the ring prefetched from frame zero; draining it here
		// would throw that prefetch away.
		t.pendingSeek.Store(0)
	}
	if p.loop != nil {
		t.loop.Store(*p.loop)
	}
	if p.volume != nil {
		t.volume.Store(*p.volume)
	}

	// The track is idle, so the mixer is not touching its mixer-local
	// fields; preset them for a clean start.
	t.fadeRemaining = 0
	t.frac = 0
	t.pendingFrames = 0

	next := StatePlaying
	if p.hasFade {
		fade := p.fadeIn
		if fade <= 0 {
			fade = DefaultFade
		}
		t.gain = 0
		t.currentVol.Store(0)
		t.fadeReq.Store(e.framesFor(fade))
		next = StateFadingIn
	} else {
		t.fadeReq.Store(0)
		v := t.volume.Load()
		if t.muted.Load() {
			v = 0
		}
		t.gain = v
		t.currentVol.Store(v)
	}
	if t.mode == modeStreaming {
		t.loader.resume()
	}
	t.state.Store(int32(next))
	e.mu.Unlock()

	e.logger.Debug("play", "track", id, "state", next)
	return nil
}

// StopOption adjusts a Stop call.
type StopOption func(*stopParams)

type stopParams struct {
	fadeOut time.Duration
	hasFade bool
}

// WithFadeOut ramps the track to silence over d before stopping.
func WithFadeOut(d time.Duration) StopOption {
	return func(p *stopParams) { p.fadeOut = d; p.hasFade = true }
}

// Stop halts playback. Without a fade the track drops to idle at once
// and its cursor resets; with one it enters fading-out and completes on
// the audio thread. Stopping an idle track is a no-op.
func (e *Engine) Stop(id string, opts ...StopOption) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	var p stopParams
	for _, opt := range opts {
		opt(&p)
	}

	t, err := e.track(id)
	if err != nil {
		return err
	}

	st := State(t.state.Load())
	if st == StateIdle {
		return nil
	}

	if p.hasFade && st.audible() {
		fade := p.fadeOut
		if fade <= 0 {
			fade = DefaultFade
		}
		t.fadeReq.Store(e.framesFor(fade))
		t.state.Store(int32(StateFadingOut))
		return nil
	}

	t.state.Store(int32(StateIdle))
	t.cursor.Store(0)
	t.pendingSeek.Store(0)
	if t.mode == modeStreaming {
		t.loader.pause()
		e.rewindStreaming(t, 0)
	}
	e.emitComplete(t.onComplete, id, true, nil)
	return nil
}

// Pause suspends playback, retaining the cursor.
func (e *Engine) Pause(id string) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	t, err := e.track(id)
	if err != nil {
		return err
	}
	st := State(t.state.Load())
	if !st.audible() {
		return fmt.Errorf("%w: %q is %s", errTrackNotPlaying, id, st)
	}
	t.state.Store(int32(StatePaused))
	if t.mode == modeStreaming {
		t.loader.pause()
	}
	return nil
}

// Resume continues a paused track from its retained cursor.
func (e *Engine) Resume(id string) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	t, err := e.track(id)
	if err != nil {
		return err
	}
	if State(t.state.Load()) != StatePaused {
		return fmt.Errorf("%w: %q", errTrackNotPaused, id)
	}
	if t.mode == modeStreaming {
		t.loader.resume()
	}
	t.state.Store(int32(StatePlaying))
	return nil
}

// SetVolume retargets the track gain; the mixer slews toward it.
func (e *Engine) SetVolume(id string, v float64) error {
	if v < 0 || v > MaxVolume {
		return fmt.Errorf("%w: volume %v", ErrInvalidArgument, v)
	}
	t, err := e.track(id)
	if err != nil {
		return err
	}
	if t.muted.Load() {
		// Keep the restore value in sync so unmute lands on the new
		// target.
		t.preMuteVol.Store(v)
	}
	t.volume.Store(v)
	return nil
}

// SetSpeed sets the playback speed multiplier in [MinSpeed, MaxSpeed].
func (e *Engine) SetSpeed(id string, s float64) error {
	if s < MinSpeed || s > MaxSpeed {
		return fmt.Errorf("%w: speed %v", ErrInvalidArgument, s)
	}
	t, err := e.track(id)
	if err != nil {
		return err
	}
	t.speed.Store(s)
	return nil
}

// SetLoop toggles looping.
func (e *Engine) SetLoop(id string, loop bool) error {
	t, err := e.track(id)
	if err != nil {
		return err
	}
	t.loop.Store(loop)
	return nil
}

// Seek moves the playback cursor to the given position in seconds. The
// mixer applies it at the next callback entry.
func (e *Engine) Seek(id string, seconds float64) error {
	t, err := e.track(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.seekLocked(e, seconds)
}

func (t *Track) seekLocked(e *Engine, seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: seek %v", ErrInvalidArgument, seconds)
	}
	frame := int64(seconds * float64(t.srcRate))
	if t.durationFrames > 0 && frame >= t.durationFrames {
		return fmt.Errorf("%w: seek %vs beyond end", ErrInvalidArgument, seconds)
	}
	if t.mode == modeStreaming {
		e.rewindStreaming(t, frame)
		if State(t.state.Load()).audible() {
			t.loader.resume()
		}
		return nil
	}
	t.pendingSeek.Store(frame)
	return nil
}

// Mute silences the track, remembering the volume for Unmute.
func (e *Engine) Mute(id string) error {
	t, err := e.track(id)
	if err != nil {
		return err
	}
	if t.muted.Swap(true) {
		return nil
	}
	t.preMuteVol.Store(t.volume.Load())
	return nil
}

// Unmute restores the exact pre-mute volume.
func (e *Engine) Unmute(id string) error {
	t, err := e.track(id)
	if err != nil {
		return err
	}
	if !t.muted.Load() {
		return nil
	}
	t.volume.Store(t.preMuteVol.Load())
	t.muted.Store(false)
	return nil
}

// framesFor converts a wall duration to output frames, minimum one.
func (e *Engine) framesFor(d time.Duration) int64 {
	frames := int64(d.Seconds() * float64(e.cfg.SampleRate))
	if frames < 1 {
		frames = 1
	}
	return frames
}
