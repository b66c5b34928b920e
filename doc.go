// SPDX-License-Identifier: EPL-2.0

// Package audmix is a real-time multi-track audio mixing engine for Go
// applications.
//
// The engine mixes any number of named tracks, preloaded or streamed
// from disk, into one interleaved float32 output pulled by the sound
// device. Each track carries its own volume, playback speed, looping,
// fades and seek position, adjustable at any time from any goroutine
// without disturbing the audio thread.
//
// # Supported Formats
//
// File sources are decoded by extension:
//   - WAV (PCM 8/16/24/32-bit) via formats/wav
//   - MP3 via formats/mp3
//   - Ogg Vorbis via formats/vorbis
//   - AIFF (PCM 16-bit) via formats/aiff
//
// In-memory float32 PCM buffers load directly without a decoder.
//
// # Quick Start
//
//	eng, err := audmix.Open(engine.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Shutdown()
//
//	eng.LoadTrack("music", engine.File("music.mp3"))
//	eng.LoadTrack("rain", engine.File("rain.ogg"), engine.WithStreaming())
//
//	eng.Play("music", engine.WithFadeIn(500*time.Millisecond))
//	eng.Play("rain", engine.WithLoop(true), engine.WithVolume(0.4))
//
// # Position Callbacks
//
// Handlers can fire when a track reaches a target position, within a
// tolerance:
//
//	eng.RegisterPositionCallback("music", 30.0, func(id string, target, actual float64) {
//	    eng.Crossfade("music", "next", 2*time.Second)
//	}, engine.DefaultPositionTolerance)
//
// # Packages
//
//   - engine: the mixer core, track control and statistics
//   - device: portaudio output stream
//   - audio: Source interface, registry, offline resampler and mono
//     mixer
//   - formats/...: per-format decoders
//   - utils: small sample-conversion helpers
package audmix
