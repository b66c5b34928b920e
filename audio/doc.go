// SPDX-License-Identifier: EPL-2.0

// Package audio provides the low-level audio primitives shared by the
// decoders and the mixing engine.
//
// # Source Interface
//
// The Source interface is the decoder boundary:
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    BufSize() int
//	    Close() error
//	}
//
// Every format decoder returns a Source; the engine preloads or streams
// through it. Sources that additionally implement Sized expose their
// total frame count, which streaming playback uses for duration
// metadata.
//
// # Resampling
//
// The Resampler changes the sample rate of a stream using cubic
// interpolation:
//
//	resampler := audio.NewResampler(source, 48000)
//	buf := make([]float32, 4096)
//	n, err := resampler.ReadSamples(buf)
//
// It is the high-quality offline path; loudness measurement decodes
// streaming sources through it. The real-time mixer resamples with its
// own linear fast path.
//
// # Channel Mixing
//
// The MonoMixer averages multi-channel audio down to mono. Chained
// after the resampler it brings any source to a common domain for
// analysis:
//
//	mono := audio.NewMonoMixer(audio.NewResampler(source, 48000))
//
// # Format Registry
//
// The registry binds file extensions to decoders:
//
//	registry := audio.NewRegistry()
//	registry.Register("wav", wav.Decoder{})
//	src, err := registry.Decode("wav", file)
//
// # Sample Format
//
// Samples are float32 in [-1.0, 1.0], interleaved by channel. The
// normalized format keeps intermediate processing free of bit-depth
// concerns; sinks convert to integer PCM at the edge.
//
// # Error Handling
//
// Streaming functions return io.EOF at the natural end of data:
//
//	for {
//	    n, err := source.ReadSamples(buf)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // process buf[:n]
//	}
package audio
