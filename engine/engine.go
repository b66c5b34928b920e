// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/ik5/audmix/audio"
)

// OutputStream is the engine's view of the sound device. The device layer
// (package device) implements it over portaudio; tests drive Callback
// directly and pass nil.
type OutputStream interface {
	Start() error
	Stop() error
	Close() error
}

// Engine is a real-time multi-track mixer. Callers load named tracks,
// issue playback commands from any goroutine, and the output stream pulls
// mixed frames through Callback on the audio thread.
type Engine struct {
	cfg      Config
	logger   *log.Logger
	registry *audio.Registry

	mu     sync.Mutex
	tracks map[string]*Track

	// snapshot is mixer-owned: the set of tracks the callback iterates,
	// refreshed under try-lock at callback entry.
	snapshot []*Track

	running atomic.Bool
	stream  OutputStream

	watcher        *watcher
	events         chan completionEvent
	dispatcherDone chan struct{}

	analyzers map[string]Analyzer

	peakLevel     atomicFloat64
	cpuUsage      atomicFloat64
	underruns     atomic.Uint64
	eventsDropped atomic.Uint64
}

// New builds an engine from cfg, filling zero fields with defaults.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		logger:    log.New(io.Discard),
		tracks:    make(map[string]*Track),
		snapshot:  make([]*Track, 0, cfg.MaxTracks*loadedTracksFactor),
		events:    make(chan completionEvent, 64),
		analyzers: make(map[string]Analyzer),
	}
	e.watcher = newWatcher(e)
	registerBuiltinAnalyzers(e.analyzers)
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Start brings the engine online: spawns the dispatcher and watcher and
// starts the output stream. stream may be nil, in which case the caller
// is responsible for invoking Callback (used by tests and offline
// drivers).
func (e *Engine) Start(stream OutputStream) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: already started", ErrInvalidArgument)
	}
	if stream != nil {
		if err := stream.Start(); err != nil {
			e.running.Store(false)
			return fmt.Errorf("%w: %v", ErrDevice, err)
		}
	}
	e.stream = stream
	e.dispatcherDone = make(chan struct{})
	go e.dispatchLoop()
	e.watcher.start()
	e.logger.Info("engine started",
		"rate", e.cfg.SampleRate, "buffer", e.cfg.BufferSize,
		"channels", e.cfg.Channels)
	return nil
}

// Shutdown stops the output stream (blocking until the device returned
// from its final callback), joins every loader, the watcher and the
// dispatcher, and drops all tracks. The engine cannot be restarted.
func (e *Engine) Shutdown() error {
	if !e.running.CompareAndSwap(true, false) {
		return ErrEngineNotRunning
	}

	var streamErr error
	if e.stream != nil {
		if err := e.stream.Stop(); err != nil {
			streamErr = fmt.Errorf("%w: %v", ErrDevice, err)
		}
		if err := e.stream.Close(); err != nil && streamErr == nil {
			streamErr = fmt.Errorf("%w: %v", ErrDevice, err)
		}
	}

	e.watcher.stop()

	e.mu.Lock()
	tracks := make([]*Track, 0, len(e.tracks))
	for _, t := range e.tracks {
		tracks = append(tracks, t)
	}
	e.tracks = make(map[string]*Track)
	e.mu.Unlock()

	for _, t := range tracks {
		if t.loader != nil {
			t.loader.stop()
		}
	}

	close(e.events)
	<-e.dispatcherDone
	e.logger.Info("engine stopped")
	return streamErr
}

// Running reports whether the engine is between Start and Shutdown.
func (e *Engine) Running() bool { return e.running.Load() }

func (e *Engine) checkRunning() error {
	if !e.running.Load() {
		return ErrEngineNotRunning
	}
	return nil
}

// rewindStreaming re-arms a streaming track at the given source frame.
// When the engine is not running or has no output stream attached, the
// control plane completes the drain handshake itself; otherwise the
// mixer applies the seek at its next callback.
func (e *Engine) rewindStreaming(t *Track, frame int64) {
	t.loader.seek(frame)
	if e.running.Load() && e.stream != nil {
		t.pendingSeek.Store(frame)
		return
	}
	t.ring.Drain()
	t.cursor.Store(float64(frame))
	t.frac = 0
	t.pendingFrames = 0
	t.loader.seekDrained.Store(true)
}

// track looks up a track under the engine lock.
func (e *Engine) track(id string) (*Track, error) {
	e.mu.Lock()
	t, ok := e.tracks[id]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTrackNotFound, id)
	}
	return t, nil
}

// TrackInfo is a point-in-time description of a loaded track.
type TrackInfo struct {
	ID               string
	Duration         float64 // seconds, 0 when unknown
	Position         float64 // seconds
	Volume           float64
	CurrentVolume    float64
	Speed            float64
	Loop             bool
	Playing          bool
	Paused           bool
	Muted            bool
	Streaming        bool
	SampleRate       int
	EngineSampleRate int
	SampleRateRatio  float64
	State            State
}

// GetTrackInfo reports the current state of a track.
func (e *Engine) GetTrackInfo(id string) (TrackInfo, error) {
	t, err := e.track(id)
	if err != nil {
		return TrackInfo{}, err
	}
	st := State(t.state.Load())
	return TrackInfo{
		ID:               t.id,
		Duration:         t.DurationSeconds(),
		Position:         t.Position(),
		Volume:           t.volume.Load(),
		CurrentVolume:    t.currentVol.Load(),
		Speed:            t.speed.Load(),
		Loop:             t.loop.Load(),
		Playing:          st.countsTowardCap(),
		Paused:           st == StatePaused,
		Muted:            t.muted.Load(),
		Streaming:        t.mode == modeStreaming,
		SampleRate:       t.srcRate,
		EngineSampleRate: e.cfg.SampleRate,
		SampleRateRatio:  t.ratio,
		State:            st,
	}, nil
}

// ListTracks returns the loaded track ids, sorted.
func (e *Engine) ListTracks() []string {
	e.mu.Lock()
	ids := make([]string, 0, len(e.tracks))
	for id := range e.tracks {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// GetPlayingTracks returns ids of tracks currently playing or fading.
func (e *Engine) GetPlayingTracks() []string {
	return e.tracksInState(func(s State) bool { return s.countsTowardCap() })
}

// GetPausedTracks returns ids of paused tracks.
func (e *Engine) GetPausedTracks() []string {
	return e.tracksInState(func(s State) bool { return s == StatePaused })
}

func (e *Engine) tracksInState(match func(State) bool) []string {
	e.mu.Lock()
	var ids []string
	for id, t := range e.tracks {
		if match(State(t.state.Load())) {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// TrackCounts groups the track census returned by GetTrackCount.
type TrackCounts struct {
	Loaded  int
	Playing int
	Paused  int
}

// GetTrackCount counts loaded, playing and paused tracks.
func (e *Engine) GetTrackCount() TrackCounts {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := TrackCounts{Loaded: len(e.tracks)}
	for _, t := range e.tracks {
		switch st := State(t.state.Load()); {
		case st.countsTowardCap():
			c.Playing++
		case st == StatePaused:
			c.Paused++
		}
	}
	return c
}

// RegisterPositionCallback arms fn to fire once when id reaches target
// seconds, within tolerance. Re-registering the same (id, target)
// replaces the previous registration.
func (e *Engine) RegisterPositionCallback(id string, target float64, fn PositionHandler, tolerance float64) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	if _, err := e.track(id); err != nil {
		return err
	}
	if target < 0 || tolerance <= 0 || fn == nil {
		return fmt.Errorf("%w: position callback target=%v tolerance=%v", ErrInvalidArgument, target, tolerance)
	}
	e.watcher.register(id, target, fn, tolerance)
	return nil
}

// RemovePositionCallback deletes a registration, armed or not.
func (e *Engine) RemovePositionCallback(id string, target float64) error {
	if !e.watcher.remove(id, target) {
		return fmt.Errorf("%w: no callback at %v for %q", ErrTrackNotFound, target, id)
	}
	return nil
}

// AddGlobalPositionListener registers fn for every position tick of every
// audible track and returns a handle for removal.
func (e *Engine) AddGlobalPositionListener(fn GlobalListener) int {
	return e.watcher.addListener(fn)
}

// RemoveGlobalPositionListener drops the listener behind handle.
func (e *Engine) RemoveGlobalPositionListener(handle int) {
	e.watcher.removeListener(handle)
}

// ClearAllPositionCallbacks removes every registration and listener.
func (e *Engine) ClearAllPositionCallbacks() {
	e.watcher.clear()
}

// GetPositionCallbackStats reports watcher counters.
func (e *Engine) GetPositionCallbackStats() PositionCallbackStats {
	return e.watcher.stats()
}
