// SPDX-License-Identifier: EPL-2.0

// Package engine implements a real-time multi-track audio mixing engine.
//
// Host code loads named tracks from files (decoded through an
// audio.Registry of format decoders) or in-memory PCM buffers, issues
// playback commands from any goroutine, and the output device pulls
// mixed interleaved float32 frames through Callback on the audio thread.
//
// # Architecture
//
// Four kinds of goroutines cooperate around each Engine:
//
//   - The audio thread, owned by the output stream, runs Callback. It
//     never allocates, blocks, or performs I/O: track parameters arrive
//     through atomic slots, the track set through a try-lock snapshot,
//     and streaming frames through single-producer single-consumer
//     rings.
//   - One loader goroutine per streaming track decodes ahead of
//     playback into the track's ring buffer.
//   - The watcher goroutine polls playback positions for registered
//     position callbacks and commits end-of-track transitions flagged
//     by the mixer. A dispatcher goroutine delivers all completion
//     callbacks, so user code never runs on the audio thread.
//
// # Quick start
//
//	eng, _ := engine.New(engine.DefaultConfig())
//	eng.Start(stream) // stream from package device, or nil for manual pulls
//	defer eng.Shutdown()
//
//	eng.LoadTrack("pad", engine.File("pad.ogg"))
//	eng.Play("pad", engine.WithFadeIn(time.Second), engine.WithLoop(true))
//
// # Sample format
//
// All PCM inside the engine is interleaved float32 in [-1, 1], one frame
// per channel tuple. The mixer hard-clips the summed output to [-1, 1].
//
// # Per-track DSP
//
// Each audible track runs the same chain per callback: gather source
// frames (slice view for preloaded tracks, ring pop for streaming),
// linear-interpolation resample from the source rate times playback
// speed to the engine rate, channel adaptation between mono and stereo,
// then a smoothed gain ramp that also implements fade-in, fade-out, mute
// and set-volume transitions.
package engine
