// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files into audio.Source values.
//
// This package uses github.com/go-audio/aiff. Only 16-bit PCM is
// supported. Sources report their total frame count from the COMM
// chunk.
package aiff
