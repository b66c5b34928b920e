// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"math"
	"time"
)

// Callback produces the next BufferSize frames of interleaved float32
// output. It is invoked by the output stream on the real-time audio
// thread and must stay allocation-free and lock-free: the track set is
// snapshotted with a try-lock (falling back to the previous snapshot on
// contention), parameters are read from atomic slots, and streaming
// frames come from SPSC rings. len(out) must be BufferSize*Channels.
func (e *Engine) Callback(out []float32) {
	started := time.Now()

	for i := range out {
		out[i] = 0
	}

	if e.mu.TryLock() {
		e.snapshot = e.snapshot[:0]
		for _, t := range e.tracks {
			e.snapshot = append(e.snapshot, t)
		}
		e.mu.Unlock()
	}

	for _, t := range e.snapshot {
		e.processTrack(t, out)
	}

	// Hard clip to [-1, 1] and track the post-clip peak.
	var peak float32
	for i, s := range out {
		if s > 1 {
			s = 1
			out[i] = 1
		} else if s < -1 {
			s = -1
			out[i] = -1
		}
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	e.peakLevel.Store(float64(peak))

	period := float64(e.cfg.BufferSize) / float64(e.cfg.SampleRate)
	usage := time.Since(started).Seconds() / period
	e.cpuUsage.Store(0.9*e.cpuUsage.Load() + 0.1*usage)
}

func (e *Engine) processTrack(t *Track, out []float32) {
	// Seeks apply regardless of state so a seek-while-paused lands
	// before the next audible frame.
	if target := t.pendingSeek.Swap(-1); target >= 0 {
		t.cursor.Store(float64(target))
		t.frac = 0
		t.pendingFrames = 0
		if t.mode == modeStreaming {
			t.ring.Drain()
			t.loader.seekDrained.Store(true)
		}
	}

	st := State(t.state.Load())
	if !st.audible() {
		return
	}

	if f := t.fadeReq.Swap(0); f > 0 {
		t.fadeRemaining = f
	}

	ratio := t.ratio * t.speed.Load()
	b := e.cfg.BufferSize
	srcCh := t.srcChannels
	needed := sourceFramesNeeded(b, ratio, t.frac)
	if ratio <= 0 || needed*srcCh > len(t.srcScratch) {
		// Pathological ratio: contribute silence and retire the track.
		t.requestEnd(endBadRatio)
		return
	}

	var gathered int
	var exhausted bool
	cursorInt := int64(t.cursor.Load())

	if t.mode == modePreloaded {
		gathered = t.gatherPreloaded(cursorInt, needed)
	} else {
		popped := t.ring.Pop(t.srcScratch[t.pendingFrames*srcCh : needed*srcCh])
		gathered = t.pendingFrames + popped
		if gathered < needed {
			if t.ring.Finished() {
				exhausted = gathered == 0
			} else {
				t.underruns.Add(1)
				e.underruns.Add(1)
			}
		}
	}

	if exhausted {
		t.requestEnd(endNatural)
		return
	}

	consumed, newFrac, _ := resampleBlock(
		t.resScratch[:b*srcCh],
		t.srcScratch[:gathered*srcCh],
		srcCh, ratio, t.frac,
	)

	adaptChannels(t.outScratch, t.resScratch, b, srcCh, e.cfg.Channels)
	fadeDone := t.applyGain(out, e.cfg.Channels, st)

	// Advance the cursor by exactly B*ratio source frames.
	if t.mode == modeStreaming {
		left := gathered - consumed
		if left < 0 {
			left = 0
		} else {
			copy(t.srcScratch[:left*srcCh], t.srcScratch[consumed*srcCh:gathered*srcCh])
		}
		t.pendingFrames = left
	}

	pos := float64(cursorInt+int64(consumed)) + newFrac
	t.frac = newFrac

	n := float64(t.durationFrames)
	looping := t.loop.Load()
	switch {
	case looping && n > 0:
		pos = math.Mod(pos, n)
	case !looping && n > 0 && pos >= n && t.mode == modePreloaded:
		t.cursor.Store(pos)
		t.requestEnd(endNatural)
		return
	}
	t.cursor.Store(pos)

	if fadeDone {
		switch st {
		case StateFadingIn:
			t.state.CompareAndSwap(int32(StateFadingIn), int32(StatePlaying))
		case StateFadingOut:
			t.requestEnd(endNatural)
		}
	}
}

// gatherPreloaded copies up to needed source frames starting at cur into
// the scratch buffer, wrapping around when looping. Returns the number of
// frames gathered; short reads happen only at the non-looping tail.
func (t *Track) gatherPreloaded(cur int64, needed int) int {
	n := t.durationFrames
	ch := t.srcChannels
	looping := t.loop.Load()
	gathered := 0
	for gathered < needed {
		if cur >= n {
			if !looping {
				break
			}
			cur -= n
		}
		run := int64(needed - gathered)
		if rest := n - cur; run > rest {
			run = rest
		}
		copy(t.srcScratch[gathered*ch:], t.data[cur*ch:(cur+run)*ch])
		gathered += int(run)
		cur += run
	}
	return gathered
}

// applyGain ramps the smoothed gain toward its target across the block,
// multiplying the channel-adapted scratch into out. Returns true when an
// active fade finished within this block.
func (t *Track) applyGain(out []float32, outCh int, st State) bool {
	target := t.volume.Load()
	if t.muted.Load() || st == StateFadingOut {
		target = 0
	}

	frames := len(out) / outCh
	gain := t.gain
	fadeDone := false

	switch {
	case t.fadeRemaining > 0:
		for i := 0; i < frames; i++ {
			if t.fadeRemaining > 0 {
				gain += (target - gain) / float64(t.fadeRemaining)
				t.fadeRemaining--
				if t.fadeRemaining == 0 {
					gain = target
					fadeDone = true
				}
			}
			g := float32(gain)
			for c := 0; c < outCh; c++ {
				out[i*outCh+c] += t.outScratch[i*outCh+c] * g
			}
		}
	case gain == target:
		g := float32(gain)
		for i := range out {
			out[i] += t.outScratch[i] * g
		}
	default:
		// Slew toward the target at the fixed ramp rate used by
		// set-volume and mute transitions.
		step := t.slewPerFrame
		for i := 0; i < frames; i++ {
			d := target - gain
			if d > step {
				d = step
			} else if d < -step {
				d = -step
			}
			gain += d
			g := float32(gain)
			for c := 0; c < outCh; c++ {
				out[i*outCh+c] += t.outScratch[i*outCh+c] * g
			}
		}
	}

	t.gain = gain
	t.currentVol.Store(gain)
	return fadeDone
}
