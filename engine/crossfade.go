// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"time"
)

// CrossfadeOption adjusts a Crossfade call.
type CrossfadeOption func(*crossfadeParams)

type crossfadeParams struct {
	toVolume *float64
	toLoop   *bool
	method   string
}

// WithCrossfadeVolume fixes the incoming track's target volume instead
// of deriving it from loudness matching.
func WithCrossfadeVolume(v float64) CrossfadeOption {
	return func(p *crossfadeParams) { p.toVolume = &v }
}

// WithCrossfadeLoop sets looping on the incoming track.
func WithCrossfadeLoop(loop bool) CrossfadeOption {
	return func(p *crossfadeParams) { p.toLoop = &loop }
}

// WithLoudnessMethod selects the analyzer used to derive the incoming
// volume. Unknown methods fall back to RMS.
func WithLoudnessMethod(method string) CrossfadeOption {
	return func(p *crossfadeParams) { p.method = method }
}

// Crossfade fades fromID out and toID in over the same duration. When no
// explicit volume is given, the incoming track is measured and brought
// to the outgoing track's current perceived level.
func (e *Engine) Crossfade(fromID, toID string, duration time.Duration, opts ...CrossfadeOption) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	if duration <= 0 {
		return fmt.Errorf("%w: crossfade duration %v", ErrInvalidArgument, duration)
	}
	if fromID == toID {
		return fmt.Errorf("%w: crossfade onto itself", ErrInvalidArgument)
	}
	p := crossfadeParams{method: MethodRMS}
	for _, opt := range opts {
		opt(&p)
	}

	from, err := e.track(fromID)
	if err != nil {
		return err
	}
	if !State(from.state.Load()).audible() {
		return fmt.Errorf("%w: %q is not playing", ErrInvalidArgument, fromID)
	}
	to, err := e.track(toID)
	if err != nil {
		return err
	}
	if State(to.state.Load()) != StateIdle {
		return fmt.Errorf("%w: %q is %s", ErrInvalidArgument, toID, State(to.state.Load()))
	}

	var toVolume float64
	if p.toVolume != nil {
		toVolume = *p.toVolume
		if toVolume < 0 || toVolume > MaxVolume {
			return fmt.Errorf("%w: volume %v", ErrInvalidArgument, toVolume)
		}
	} else {
		// Bring the incoming track to the outgoing track's current
		// perceived level.
		analyzer := e.analyzerFor(p.method)
		fromLevel, err := e.measureTrack(from, analyzer)
		if err != nil {
			return err
		}
		toLevel, err := e.measureTrack(to, analyzer)
		if err != nil {
			return err
		}
		toVolume = volumeFor(fromLevel*from.volume.Load(), toLevel)
	}

	playOpts := []PlayOption{WithFadeIn(duration), WithVolume(toVolume)}
	if p.toLoop != nil {
		playOpts = append(playOpts, WithLoop(*p.toLoop))
	}
	if err := e.Play(toID, playOpts...); err != nil {
		return err
	}
	return e.Stop(fromID, WithFadeOut(duration))
}
