package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestSegmentEmpty(t *testing.T) {
	if !(Segment{}).Empty() {
		t.Error("Empty() = false for zero segment, want true")
	}
	s := Segment{PCM: pcm16(1)}
	if s.Empty() {
		t.Error("Empty() = true for segment with samples, want false")
	}
}

func TestSegmentRMS(t *testing.T) {
	if got := (Segment{}).RMS(); got != 0 {
		t.Errorf("RMS() of empty segment = %v, want 0", got)
	}
	if got := (Segment{PCM: pcm16(0, 0, 0)}).RMS(); got != 0 {
		t.Errorf("RMS() of silence = %v, want 0", got)
	}

	// Constant amplitude gives RMS equal to that amplitude.
	s := Segment{PCM: pcm16(1000, -1000, 1000, -1000)}
	if got := s.RMS(); math.Abs(got-1000) > 1e-9 {
		t.Errorf("RMS() = %v, want 1000", got)
	}
}

func TestSegmentWAV(t *testing.T) {
	s := Segment{
		PCM:        pcm16(1, 2, 3),
		SampleRate: SampleRate,
		Channels:   Channels,
		Duration:   time.Second,
	}
	wav := s.WAV()

	if len(wav) != 44+len(s.PCM) {
		t.Fatalf("WAV length = %d, want 44-byte header + %d data bytes", len(wav), len(s.PCM))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("header magic = %q %q, want RIFF WAVE", wav[0:4], wav[8:12])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(s.PCM)) {
		t.Errorf("RIFF size = %d, want %d", got, 36+len(s.PCM))
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Errorf("audio format = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != Channels {
		t.Errorf("channels = %d, want %d", got, Channels)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != SampleRate {
		t.Errorf("sample rate = %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != SampleRate*2 {
		t.Errorf("byte rate = %d, want %d", got, SampleRate*2)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(s.PCM)) {
		t.Errorf("data size = %d, want %d", got, len(s.PCM))
	}
	if !bytes.Equal(wav[44:], s.PCM) {
		t.Error("WAV data section differs from the segment PCM")
	}
}
