// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ik5/audmix/audio"
)

// TrackSource is the tagged variant accepted by LoadTrack: a file path
// resolved through the decoder registry, or an in-memory PCM buffer.
type TrackSource interface {
	kind() string
}

type fileSource struct {
	path string
}

func (fileSource) kind() string { return "file" }

// File loads from a path; the extension selects the decoder.
func File(path string) TrackSource {
	return fileSource{path: path}
}

type bufferSource struct {
	samples  []float32
	channels int
	rate     int
}

func (bufferSource) kind() string { return "buffer" }

// BufferMono wraps an in-memory mono PCM buffer. rate zero defaults to
// the engine sample rate.
func BufferMono(samples []float32, rate int) TrackSource {
	return bufferSource{samples: samples, channels: 1, rate: rate}
}

// BufferStereo wraps an in-memory interleaved stereo PCM buffer. rate
// zero defaults to the engine sample rate.
func BufferStereo(samples []float32, rate int) TrackSource {
	return bufferSource{samples: samples, channels: 2, rate: rate}
}

// LoadOption adjusts a LoadTrack call.
type LoadOption func(*loadParams)

type loadParams struct {
	speed      float64
	normalize  bool
	streaming  bool
	replace    bool
	ringFrames int
	onComplete OnComplete
}

// WithSpeed sets the initial playback speed.
func WithSpeed(s float64) LoadOption {
	return func(p *loadParams) { p.speed = s }
}

// WithAutoNormalize scales the track so its peak lands near 0.95.
func WithAutoNormalize() LoadOption {
	return func(p *loadParams) { p.normalize = true }
}

// WithStreaming keeps the source on disk and feeds playback through a
// prefetched ring buffer instead of decoding it all up front.
func WithStreaming() LoadOption {
	return func(p *loadParams) { p.streaming = true }
}

// WithRingCapacity overrides the streaming ring size in frames. Mostly
// useful to bound memory for very high sample rates.
func WithRingCapacity(frames int) LoadOption {
	return func(p *loadParams) { p.ringFrames = frames }
}

// WithReplace controls whether loading an existing id replaces it
// (default) or fails with ErrTrackExists.
func WithReplace(replace bool) LoadOption {
	return func(p *loadParams) { p.replace = replace }
}

// WithOnComplete registers the completion callback fired on natural end,
// stop, or streaming failure.
func WithOnComplete(fn OnComplete) LoadOption {
	return func(p *loadParams) { p.onComplete = fn }
}

// autoNormalizePeak is the post-normalization target peak.
const autoNormalizePeak = 0.95

// loadedTracksFactor lets more tracks sit loaded than may play at once,
// so playlists can be staged ahead of time. MaxTracks bounds the
// playing set.
const loadedTracksFactor = 4

// normalizeProbeSeconds bounds how much of a streaming source the
// normalizer decodes to estimate its peak.
const normalizeProbeSeconds = 5

// LoadTrack decodes or opens source and inserts it under id. Decoding
// happens on the calling goroutine. An existing id is stopped and
// replaced atomically unless WithReplace(false) was given.
func (e *Engine) LoadTrack(id string, source TrackSource, opts ...LoadOption) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: empty track id", ErrInvalidArgument)
	}
	p := loadParams{speed: 1.0, replace: true}
	for _, opt := range opts {
		opt(&p)
	}
	if p.speed < MinSpeed || p.speed > MaxSpeed {
		return fmt.Errorf("%w: speed %v", ErrInvalidArgument, p.speed)
	}
	if p.streaming && !e.cfg.streamingEnabled() {
		return fmt.Errorf("%w: streaming disabled", ErrInvalidArgument)
	}

	t, err := e.buildTrack(id, source, p)
	if err != nil {
		e.emitComplete(p.onComplete, id, false, err)
		return err
	}

	e.mu.Lock()
	old, exists := e.tracks[id]
	if exists && !p.replace {
		e.mu.Unlock()
		if t.loader != nil {
			t.loader.stop()
		}
		return fmt.Errorf("%w: %q", ErrTrackExists, id)
	}
	if !exists && len(e.tracks) >= e.cfg.MaxTracks*loadedTracksFactor {
		e.mu.Unlock()
		if t.loader != nil {
			t.loader.stop()
		}
		return fmt.Errorf("%w: %d tracks loaded", ErrCapacityExceeded, len(e.tracks))
	}
	if exists {
		old.state.Store(int32(StateIdle))
	}
	e.tracks[id] = t
	e.mu.Unlock()

	if exists {
		e.watcher.removeTrack(id)
		if old.loader != nil {
			old.loader.stop()
		}
	}

	e.logger.Debug("loaded track", "track", id, "mode", t.mode,
		"rate", t.srcRate, "channels", t.srcChannels, "frames", t.durationFrames)
	return nil
}

// UnloadTrack stops a track, releases its buffers and joins its loader.
func (e *Engine) UnloadTrack(id string) error {
	e.mu.Lock()
	t, ok := e.tracks[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTrackNotFound, id)
	}
	t.state.Store(int32(StateIdle))
	delete(e.tracks, id)
	e.mu.Unlock()

	e.watcher.removeTrack(id)
	if t.loader != nil {
		t.loader.stop()
	}
	return nil
}

func (e *Engine) buildTrack(id string, source TrackSource, p loadParams) (*Track, error) {
	t := &Track{
		id:           id,
		onComplete:   p.onComplete,
		slewPerFrame: 1.0 / (volumeRampSeconds * float64(e.cfg.SampleRate)),
	}
	t.volume.Store(1.0)
	t.speed.Store(p.speed)
	t.pendingSeek.Store(-1)

	switch src := source.(type) {
	case bufferSource:
		if err := e.buildBufferTrack(t, src, p); err != nil {
			return nil, err
		}
	case fileSource:
		if err := e.buildFileTrack(t, src, p); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrInvalidArgument, source.kind())
	}

	if t.srcChannels != 1 && t.srcChannels != 2 {
		if t.loader != nil {
			t.loader.stop()
		}
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidArgument, t.srcChannels)
	}
	if t.srcRate <= 0 {
		if t.loader != nil {
			t.loader.stop()
		}
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidArgument, t.srcRate)
	}

	t.ratio = float64(t.srcRate) / float64(e.cfg.SampleRate)
	e.allocScratch(t)
	return t, nil
}

func (e *Engine) buildBufferTrack(t *Track, src bufferSource, p loadParams) error {
	if len(src.samples) == 0 || len(src.samples)%src.channels != 0 {
		return fmt.Errorf("%w: buffer length %d for %d channels",
			ErrInvalidArgument, len(src.samples), src.channels)
	}
	rate := src.rate
	if rate == 0 {
		rate = e.cfg.SampleRate
	}
	data := make([]float32, len(src.samples))
	copy(data, src.samples)
	if p.normalize {
		normalizeBuffer(data)
	}
	t.mode = modePreloaded
	t.data = data
	t.srcRate = rate
	t.srcChannels = src.channels
	t.durationFrames = int64(len(data) / src.channels)
	return nil
}

func (e *Engine) buildFileTrack(t *Track, src fileSource, p loadParams) error {
	opener, err := e.openerFor(src.path)
	if err != nil {
		return err
	}
	t.opener = opener

	s, err := opener()
	if err != nil {
		return err
	}
	t.srcRate = s.SampleRate()
	t.srcChannels = s.Channels()
	if sized, ok := s.(audio.Sized); ok {
		t.durationFrames = sized.TotalFrames()
	}

	if !p.streaming {
		defer s.Close()
		data, err := readAllSamples(s)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		if p.normalize {
			normalizeBuffer(data)
		}
		t.mode = modePreloaded
		t.data = data
		t.durationFrames = int64(len(data) / t.srcChannels)
		return nil
	}

	gain := float32(1.0)
	if p.normalize {
		// Peak-probe the head of the stream, then rewind for playback.
		peak := probePeak(s, t.srcRate*normalizeProbeSeconds*t.srcChannels)
		s.Close()
		if peak > 0 {
			gain = autoNormalizePeak / peak
		}
		if s, err = opener(); err != nil {
			return err
		}
	}

	t.mode = modeStreaming
	ringFrames := p.ringFrames
	if ringFrames <= 0 {
		ringFrames = e.ringCapacityFor(float64(t.srcRate) / float64(e.cfg.SampleRate))
	}
	t.ring = newRingBuffer(ringFrames, t.srcChannels)
	t.loader = newStreamLoader(t, s, opener, gain, e.logger)
	// Start prefetching right away; if the insert below loses (capacity,
	// replace disabled), stop() joins the goroutine and closes the
	// source.
	t.loader.start()
	return nil
}

// openerFor resolves a decoder for the path's extension and returns a
// factory that re-decodes from the start of the file.
func (e *Engine) openerFor(path string) (sourceOpener, error) {
	if e.registry == nil {
		return nil, fmt.Errorf("%w: no decoder registry configured", ErrUnsupportedFormat)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	dec, ok := e.registry.Get(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return func() (audio.Source, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
		src, err := dec.Decode(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		return &closerSource{Source: src, f: f}, nil
	}, nil
}

// closerSource closes the backing file together with the decoder.
type closerSource struct {
	audio.Source
	f *os.File
}

func (c *closerSource) Close() error {
	err := c.Source.Close()
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// TotalFrames forwards length metadata from the wrapped decoder.
func (c *closerSource) TotalFrames() int64 {
	if sized, ok := c.Source.(audio.Sized); ok {
		return sized.TotalFrames()
	}
	return 0
}

// allocScratch sizes the per-track mixer buffers for the worst case at
// maximum playback speed, so the callback never allocates.
func (e *Engine) allocScratch(t *Track) {
	maxNeeded := sourceFramesNeeded(e.cfg.BufferSize, t.ratio*MaxSpeed, 1.0) + 2
	t.srcScratch = make([]float32, maxNeeded*t.srcChannels)
	t.resScratch = make([]float32, e.cfg.BufferSize*t.srcChannels)
	t.outScratch = make([]float32, e.cfg.BufferSize*e.cfg.Channels)
}

// ringCapacityFor covers at least four callbacks of source frames at
// maximum speed.
func (e *Engine) ringCapacityFor(ratio float64) int {
	frames := 4 * int(float64(e.cfg.BufferSize)*ratio*MaxSpeed)
	if frames < 4*loaderChunkFrames {
		frames = 4 * loaderChunkFrames
	}
	return frames
}

// readAllSamples drains a source into one owned buffer.
func readAllSamples(src audio.Source) ([]float32, error) {
	var all []float32
	buf := make([]float32, 4096)
	for {
		n, err := src.ReadSamples(buf)
		if n > 0 {
			all = append(all, buf[:n]...)
		}
		if err == io.EOF {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// normalizeBuffer scales samples in place so the peak magnitude becomes
// autoNormalizePeak. Silent buffers are left untouched.
func normalizeBuffer(samples []float32) {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak == 0 {
		return
	}
	scale := float32(autoNormalizePeak) / peak
	for i := range samples {
		samples[i] *= scale
	}
}

// probePeak reads up to limit samples and returns the peak magnitude.
func probePeak(src audio.Source, limit int) float32 {
	var peak float32
	buf := make([]float32, 4096)
	read := 0
	for read < limit {
		n, err := src.ReadSamples(buf)
		for _, s := range buf[:n] {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		read += n
		if err != nil {
			break
		}
	}
	return peak
}
