// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"sync/atomic"
)

// State is the lifecycle state of a track.
type State int32

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateFadingIn
	StateFadingOut
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFadingIn:
		return "fading_in"
	case StateFadingOut:
		return "fading_out"
	case StateEnding:
		return "ending"
	}
	return "unknown"
}

// audible reports whether the mixer should pull frames for this state.
func (s State) audible() bool {
	return s == StatePlaying || s == StateFadingIn || s == StateFadingOut
}

// countsTowardCap reports whether the state consumes a playing slot.
func (s State) countsTowardCap() bool {
	return s == StatePlaying || s == StateFadingIn || s == StateFadingOut
}

// OnComplete is invoked once when a track naturally ends, is stopped, or
// fails to load or stream. It always runs on an engine-owned goroutine,
// never the audio thread.
type OnComplete func(id string, ok bool, err error)

type trackMode int

const (
	modePreloaded trackMode = iota
	modeStreaming
)

// endReason values published by the mixer for the watcher sweep.
const (
	endNatural int32 = iota
	endBadRatio
)

// Track is one loaded source with its DSP parameters and cursor. The
// control plane writes parameter slots atomically; the mixer owns the
// cursor and the smoothed gain and publishes them atomically for the
// watcher. Structural fields (data, ring, scratch buffers) are fixed at
// load time.
type Track struct {
	id          string
	mode        trackMode
	srcRate     int
	srcChannels int
	// durationFrames is the total source length in source frames. Zero
	// means unknown (streaming sources without length metadata).
	durationFrames int64

	data   []float32 // preloaded interleaved frames
	ring   *ringBuffer
	loader *streamLoader
	opener sourceOpener // re-decodes file sources; nil for buffers

	ratio float64 // srcRate / engine rate
	// slewPerFrame bounds how fast the smoothed gain may move per output
	// frame outside an explicit fade (set-volume, mute, unmute).
	slewPerFrame float64

	onComplete OnComplete

	// Parameter slots: control plane writes, mixer reads at callback
	// entry.
	state       atomic.Int32
	volume      atomicFloat64
	speed       atomicFloat64
	loop        atomic.Bool
	muted       atomic.Bool
	preMuteVol  atomicFloat64
	pendingSeek atomic.Int64 // source frame, -1 when empty
	fadeReq     atomic.Int64 // one-shot fade length in output frames

	// Mixer-owned, published for the watcher with relaxed precision.
	cursor     atomicFloat64 // source frames, including fraction
	currentVol atomicFloat64

	// Mixer-local bookkeeping, never touched off the audio thread.
	gain          float64
	fadeRemaining int64
	frac          float64
	pendingFrames int // streaming frames carried between callbacks

	// End-of-track handoff to the watcher sweep. endErr is written by
	// the loader before it marks the ring EOF and read by the sweep
	// after endPending flips, so it rides the existing atomic chain.
	endPending atomic.Bool
	endReason  atomic.Int32
	endErr     error

	underruns atomic.Uint64

	srcScratch []float32 // gathered source frames at srcChannels
	resScratch []float32 // resampled to engine length, still srcChannels
	outScratch []float32 // channel-adapted to engine layout
}

// Position reports the playback position in seconds at the source rate.
func (t *Track) Position() float64 {
	return t.cursor.Load() / float64(t.srcRate)
}

// DurationSeconds reports the source duration, or zero when unknown.
func (t *Track) DurationSeconds() float64 {
	if t.durationFrames == 0 {
		return 0
	}
	return float64(t.durationFrames) / float64(t.srcRate)
}

// requestEnd is called by the mixer when the track finished a fade-out or
// exhausted its source. The watcher sweep commits the idle transition and
// delivers the completion event.
func (t *Track) requestEnd(reason int32) {
	t.state.Store(int32(StateEnding))
	t.endReason.Store(reason)
	t.endPending.Store(true)
}
