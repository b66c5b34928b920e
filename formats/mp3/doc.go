// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MP3 streams into audio.Source values.
//
// This package uses github.com/hajimehoshi/go-mp3 to decode. Output is
// always stereo 16-bit PCM normalized to float32; the source reports its
// total frame count from the decoder's length metadata.
package mp3
