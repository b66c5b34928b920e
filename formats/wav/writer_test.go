package wav

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteWAV16Header(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	samples := []int16{100, -100, 200, -200}
	if err := WriteWAV16(&buf, 8000, samples); err != nil {
		t.Fatalf("WriteWAV16() error = %v", err)
	}

	data := buf.Bytes()
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("wrote %d bytes, want %d", len(data), 44+len(samples)*2)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 8000 {
		t.Errorf("header rate = %d, want 8000", rate)
	}
	if chans := binary.LittleEndian.Uint16(data[22:24]); chans != 1 {
		t.Errorf("header channels = %d, want 1", chans)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != uint32(len(samples)*2) {
		t.Errorf("data size = %d, want %d", size, len(samples)*2)
	}

	// First sample, little-endian.
	if v := int16(binary.LittleEndian.Uint16(data[44:46])); v != 100 {
		t.Errorf("first sample = %d, want 100", v)
	}
}

func TestWriteWAV16Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteWAV16(&buf, 8000, nil); err != nil {
		t.Fatalf("WriteWAV16(empty) error = %v", err)
	}
	if buf.Len() != 44 {
		t.Errorf("empty file length = %d, want header-only 44", buf.Len())
	}
}

func TestWriteWAV16FloatClamps(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteWAV16Float(&buf, 8000, []float32{2.0, -2.0}); err != nil {
		t.Fatalf("WriteWAV16Float() error = %v", err)
	}
	data := buf.Bytes()
	if v := int16(binary.LittleEndian.Uint16(data[44:46])); v != 32767 {
		t.Errorf("over-range sample = %d, want 32767", v)
	}
	if v := int16(binary.LittleEndian.Uint16(data[46:48])); v != -32767 {
		t.Errorf("under-range sample = %d, want -32767", v)
	}
}

func TestWriteWAV16LargeChunked(t *testing.T) {
	t.Parallel()

	// More than one 8K chunk exercises the chunked write path.
	samples := make([]int16, 20000)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	var buf bytes.Buffer
	if err := WriteWAV16(&buf, 16000, samples); err != nil {
		t.Fatalf("WriteWAV16() error = %v", err)
	}
	data := buf.Bytes()[44:]
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		if got != want {
			t.Fatalf("sample %d = %d, want %d", i, got, want)
		}
	}
}
