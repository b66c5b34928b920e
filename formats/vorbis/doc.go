// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis streams into audio.Source values.
//
// This package uses github.com/jfreymuth/oggvorbis, which already
// produces float32 samples, so decoding is a straight copy. Sources
// report their total frame count when the stream is seekable.
package vorbis
