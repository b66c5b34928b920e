// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"io"
	"sort"
	"sync"
)

// Source is a stream of interleaved float32 PCM in [-1, 1]. Decoders and
// processors implement it so they can be chained into pipelines; the
// mixing engine consumes it for preloading and streaming playback.
type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1].
	// Returns the number of float32 values written (not frames). When
	// n == 0 with err == io.EOF, the stream is finished.
	ReadSamples(dst []float32) (n int, err error)
	// BufSize reports the source's preferred read granularity in
	// samples.
	BufSize() int
	// Close releases any resources.
	Close() error
}

// Sized is implemented by sources that know their total length up
// front. Streaming playback uses it for duration metadata without
// decoding the whole file.
type Sized interface {
	// TotalFrames is the stream length in frames (samples per channel).
	TotalFrames() int64
}

// Decoder constructs a Source from an input reader.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// Registry maps format keys (usually file extensions: "wav", "mp3",
// "ogg", "aiff") to decoders. Safe for concurrent use.
type Registry struct {
	mtx    sync.Mutex
	codecs map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
	}
}

// Register binds a decoder to a format key, replacing any previous one.
func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[format] = d
}

// Get returns the decoder for a format key.
func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.codecs[format]
	return d, ok
}

// Formats lists the registered format keys, sorted.
func (r *Registry) Formats() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	keys := make([]string, 0, len(r.codecs))
	for k := range r.codecs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Decode resolves the format key and decodes r in one step.
func (r *Registry) Decode(format string, in io.Reader) (Source, error) {
	d, ok := r.Get(format)
	if !ok {
		return nil, ErrUnknownFormat
	}
	return d.Decode(in)
}
