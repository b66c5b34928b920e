// SPDX-License-Identifier: EPL-2.0

// Package wav decodes and writes PCM WAV files.
//
// Decoding goes through github.com/go-audio/wav and supports 8, 16, 24
// and 32-bit PCM. The returned source reports its total frame count, so
// streaming playback knows the track duration without decoding it all.
//
//	src, err := wav.Decoder{}.Decode(file)
//
// WriteWAV16 writes mono 16-bit PCM output, mainly for tools and tests.
package wav
