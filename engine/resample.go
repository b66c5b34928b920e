// SPDX-License-Identifier: EPL-2.0

package engine

// resampleBlock converts src into exactly len(dst)/channels output frames
// by linear interpolation. ratio is source frames per output frame
// (srcRate/outRate times playback speed) and frac is the fractional read
// position carried over from the previous block, in [0, 1).
//
// This is the mixer's fast path: branch-light, no allocation. The cubic
// audio.Resampler is the high-quality path and is only used off the
// audio thread.
//
// Reads past the end of src clamp to the last frame and set underflow,
// which streaming tracks use to detect ring starvation. When ratio is
// exactly 1 with no fractional offset the loop degenerates to a copy.
//
// Returns the number of whole source frames consumed and the new
// fractional position.
func resampleBlock(dst, src []float32, channels int, ratio, frac float64) (consumed int, newFrac float64, underflow bool) {
	outFrames := len(dst) / channels
	srcFrames := len(src) / channels
	if outFrames == 0 {
		return 0, frac, false
	}
	if srcFrames == 0 {
		for i := range dst {
			dst[i] = 0
		}
		end := frac + float64(outFrames)*ratio
		c := int(end)
		return c, end - float64(c), true
	}

	if ratio == 1.0 && frac == 0 {
		// Identity: straight copy, zero-pad any shortfall.
		n := min(outFrames, srcFrames)
		copy(dst, src[:n*channels])
		for i := n * channels; i < outFrames*channels; i++ {
			dst[i] = 0
		}
		return outFrames, 0, n < outFrames
	}

	pos := frac
	last := srcFrames - 1
	for i := 0; i < outFrames; i++ {
		i0 := int(pos)
		f := float32(pos - float64(i0))
		i1 := i0 + 1
		if i0 > last {
			i0 = last
			underflow = true
		}
		if i1 > last {
			i1 = last
			if i0 == last && f > 0 {
				underflow = true
			}
		}
		for c := 0; c < channels; c++ {
			x0 := src[i0*channels+c]
			x1 := src[i1*channels+c]
			dst[i*channels+c] = x0 + f*(x1-x0)
		}
		pos += ratio
	}

	consumed = int(pos)
	newFrac = pos - float64(consumed)
	return consumed, newFrac, underflow
}

// sourceFramesNeeded reports how many source frames a block of outFrames
// output frames consumes at the given ratio, starting at frac, including
// the one-frame interpolation tail.
func sourceFramesNeeded(outFrames int, ratio, frac float64) int {
	span := frac + float64(outFrames)*ratio
	return int(span) + 2
}
