// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/ik5/audmix/audio"
)

// wavReader is the subset of gowav.Decoder the source needs, split out
// so tests can substitute a fake.
type wavReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// source adapts a go-audio WAV decoder to audio.Source.
type source struct {
	dec         wavReader
	sampleRate  int
	channels    int
	bitDepth    int
	totalFrames int64
	intBuf      *goaudio.IntBuffer
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }

func (s *source) BufSize() int {
	if s.intBuf != nil {
		return cap(s.intBuf.Data)
	}
	return 4096
}

// TotalFrames reports the stream length from the data chunk size, or
// zero when the header did not carry one.
func (s *source) TotalFrames() int64 { return s.totalFrames }

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{Data: make([]int, len(dst))}
	}
	s.intBuf.Data = s.intBuf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.intBuf)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	scale := pcmScale(s.bitDepth)
	for i := 0; i < n; i++ {
		dst[i] = float32(s.intBuf.Data[i]) / scale
	}

	if n < len(dst) && err == nil {
		return n, io.EOF
	}
	return n, err
}

// pcmScale returns the normalization divisor for a PCM bit depth.
func pcmScale(bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return 128.0
	case 16:
		return 32768.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	}
	return 32768.0
}

// Decoder decodes PCM WAV files through github.com/go-audio/wav.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		// go-audio needs to seek between chunks; buffer non-seekable
		// input in memory.
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading wav data: %w", err)
		}
		rs = &memSeeker{data: data}
	}

	dec := gowav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrNotWavFile
	}
	dec.ReadInfo()

	if dec.WavAudioFormat != 1 {
		return nil, ErrOnlyPCMSupported
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, ErrUnsupportedBitDepth
	}

	var totalFrames int64
	if dur, err := dec.Duration(); err == nil {
		totalFrames = int64(dur.Seconds()*float64(dec.SampleRate) + 0.5)
	}

	return &source{
		dec:         dec,
		sampleRate:  int(dec.SampleRate),
		channels:    int(dec.NumChans),
		bitDepth:    int(dec.BitDepth),
		totalFrames: totalFrames,
	}, nil
}

// memSeeker is an in-memory io.ReadSeeker over fully buffered input.
type memSeeker struct {
	data   []byte
	offset int64
}

func (m *memSeeker) Read(p []byte) (int, error) {
	if m.offset >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.offset:])
	m.offset += int64(n)
	return n, nil
}

func (m *memSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.offset + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	m.offset = abs
	return abs, nil
}
