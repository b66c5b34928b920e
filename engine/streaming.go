// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ik5/audmix/audio"
)

const (
	// loaderChunkFrames is how many source frames the loader decodes per
	// read before pushing into the ring.
	loaderChunkFrames = 2048
	// loaderIdleSleep is the poll interval while paused or ended.
	loaderIdleSleep = 5 * time.Millisecond
	// loaderFillSleep is the poll interval while waiting for ring space.
	loaderFillSleep = 2 * time.Millisecond
)

// sourceOpener re-creates the decoded source from scratch. Used for loop
// rewinds and seeks, since decoders are forward-only readers.
type sourceOpener func() (audio.Source, error)

// streamLoader feeds one streaming track's ring buffer from a decoder on
// a dedicated goroutine. It is the sole producer of the ring; the mixer
// is the sole consumer. The loader never touches mixer-owned state.
type streamLoader struct {
	track *Track
	ring  *ringBuffer
	open  sourceOpener
	src   audio.Source
	gain  float32

	logger *log.Logger

	paused  atomic.Bool
	seekReq atomic.Int64 // target source frame, -1 when empty
	// seekDrained is the handshake with the consumer: after a seek the
	// loader parks until the mixer (or, with no output stream attached,
	// the control plane) has drained stale frames from the ring.
	seekDrained atomic.Bool

	quit chan struct{}
	wg   sync.WaitGroup

	chunk []float32
}

func newStreamLoader(t *Track, src audio.Source, open sourceOpener, gain float32, logger *log.Logger) *streamLoader {
	l := &streamLoader{
		track:  t,
		ring:   t.ring,
		open:   open,
		src:    src,
		gain:   gain,
		logger: logger,
		quit:   make(chan struct{}),
		chunk:  make([]float32, loaderChunkFrames*t.srcChannels),
	}
	l.seekReq.Store(-1)
	return l
}

func (l *streamLoader) start() {
	l.wg.Add(1)
	go l.run()
}

// stop signals the loader and joins it. Called from UnloadTrack and
// Shutdown only.
func (l *streamLoader) stop() {
	close(l.quit)
	l.wg.Wait()
}

func (l *streamLoader) pause()  { l.paused.Store(true) }
func (l *streamLoader) resume() { l.paused.Store(false) }

// seek asks the loader to restart decoding from the given source frame.
// The caller must also set the track's pending seek slot so the consumer
// drains the ring and completes the handshake.
func (l *streamLoader) seek(frame int64) {
	l.seekDrained.Store(false)
	l.seekReq.Store(frame)
}

func (l *streamLoader) run() {
	defer l.wg.Done()
	defer func() {
		if l.src != nil {
			l.src.Close()
		}
	}()

	ended := false
	for {
		select {
		case <-l.quit:
			return
		default:
		}

		if target := l.seekReq.Swap(-1); target >= 0 {
			if !l.reopenAt(target) {
				ended = true
				continue
			}
			if !l.awaitDrain() {
				return
			}
			l.ring.ClearEOF()
			ended = false
		}

		if ended || l.paused.Load() {
			if !l.sleep(loaderIdleSleep) {
				return
			}
			continue
		}

		if l.ring.Free() < l.ring.capFrames/2 {
			if !l.sleep(loaderFillSleep) {
				return
			}
			continue
		}

		n, err := l.src.ReadSamples(l.chunk)
		if n > 0 {
			if l.gain != 1.0 {
				for i := 0; i < n; i++ {
					l.chunk[i] *= l.gain
				}
			}
			if !l.pushAll(l.chunk[:n]) {
				return
			}
		}

		switch {
		case err == io.EOF:
			if l.track.loop.Load() {
				if !l.reopenAt(0) {
					ended = true
				}
				continue
			}
			l.ring.MarkEOF()
			ended = true
		case err != nil:
			l.fail(err)
			ended = true
		}
	}
}

// pushAll retries until the whole chunk is in the ring or shutdown.
func (l *streamLoader) pushAll(samples []float32) bool {
	ch := l.track.srcChannels
	for len(samples) >= ch {
		n := l.ring.Push(samples)
		if n == 0 {
			if !l.sleep(loaderFillSleep) {
				return false
			}
			continue
		}
		samples = samples[n*ch:]
	}
	return true
}

// reopenAt restarts the decoder and skips to the target source frame.
func (l *streamLoader) reopenAt(frame int64) bool {
	if l.src != nil {
		l.src.Close()
	}
	src, err := l.open()
	if err != nil {
		l.src = nil
		l.fail(err)
		return false
	}
	l.src = src

	skip := frame
	ch := l.track.srcChannels
	for skip > 0 {
		select {
		case <-l.quit:
			return false
		default:
		}
		want := len(l.chunk) / ch
		if int64(want) > skip {
			want = int(skip)
		}
		n, err := src.ReadSamples(l.chunk[:want*ch])
		if n > 0 {
			skip -= int64(n / ch)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			l.fail(err)
			return false
		}
	}
	return true
}

// awaitDrain parks until the consumer has emptied stale frames.
func (l *streamLoader) awaitDrain() bool {
	for !l.seekDrained.Load() {
		if !l.sleep(loaderFillSleep) {
			return false
		}
	}
	return true
}

// fail records the error for the watcher sweep and terminates the stream.
func (l *streamLoader) fail(err error) {
	l.logger.Warn("stream loader failed", "track", l.track.id, "err", err)
	l.track.endErr = fmt.Errorf("%w: %v", ErrIO, err)
	l.ring.MarkEOF()
}

func (l *streamLoader) sleep(d time.Duration) bool {
	select {
	case <-l.quit:
		return false
	case <-time.After(d):
		return true
	}
}
