// SPDX-License-Identifier: EPL-2.0

package engine

// adaptChannels maps frames interleaved src at srcCh channels into dst at
// dstCh channels. Mono to stereo duplicates the sample into both
// channels; stereo to mono averages; identical layouts copy through.
// Only 1 and 2 channel layouts are supported, validated at load time.
func adaptChannels(dst, src []float32, frames, srcCh, dstCh int) {
	switch {
	case srcCh == dstCh:
		copy(dst[:frames*dstCh], src[:frames*srcCh])
	case srcCh == 1 && dstCh == 2:
		for i := 0; i < frames; i++ {
			s := src[i]
			dst[2*i] = s
			dst[2*i+1] = s
		}
	case srcCh == 2 && dstCh == 1:
		for i := 0; i < frames; i++ {
			dst[i] = (src[2*i] + src[2*i+1]) * 0.5
		}
	}
}
