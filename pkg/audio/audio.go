// Package audio defines the capture contract for dictation input.
//
// A Capturer buffers microphone PCM between Start and Stop; the session layer
// drives it through exactly one Start/Stop (or Start/Abort) pair per dictation
// session. Implementations live in subpackages: malgo for real microphone
// capture, mock for tests.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// Capture format shared by all implementations. Speech recognition models
// expect 16 kHz mono signed 16-bit little-endian PCM.
const (
	SampleRate = 16000
	Channels   = 1
)

// ErrNotCapturing is returned by Stop and Abort when no capture is in
// progress.
var ErrNotCapturing = errors.New("audio: not capturing")

// ErrAlreadyCapturing is returned by Start when a capture is already in
// progress.
var ErrAlreadyCapturing = errors.New("audio: already capturing")

// Segment is a finished recording: raw PCM plus the format needed to
// interpret it.
type Segment struct {
	// PCM holds signed 16-bit little-endian samples.
	PCM []byte

	// SampleRate in Hz.
	SampleRate uint32

	// Channels is the interleaved channel count.
	Channels uint32

	// Duration is the wall-clock capture length.
	Duration time.Duration
}

// Empty reports whether the segment holds no samples.
func (s Segment) Empty() bool { return len(s.PCM) == 0 }

// RMS returns the root-mean-square amplitude of the segment. Silence sits
// below roughly 500, normal speech between 2000 and 5000. Used to skip
// transcription of segments that contain no speech at all.
func (s Segment) RMS() float64 {
	numSamples := len(s.PCM) / 2
	if numSamples == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		sample := int16(binary.LittleEndian.Uint16(s.PCM[i*2 : i*2+2]))
		sumSquares += float64(sample) * float64(sample)
	}
	return math.Sqrt(sumSquares / float64(numSamples))
}

// WAV renders the segment as a complete PCM WAV file, the format the speech
// recognizer consumes.
func (s Segment) WAV() []byte {
	buf := new(bytes.Buffer)

	dataSize := uint32(len(s.PCM))
	bitsPerSample := uint16(16)
	blockAlign := uint16(s.Channels * uint32(bitsPerSample) / 8)
	byteRate := s.SampleRate * uint32(blockAlign)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(s.Channels))
	binary.Write(buf, binary.LittleEndian, s.SampleRate)
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, bitsPerSample)

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(s.PCM)

	return buf.Bytes()
}

// Capturer is the abstraction over a microphone source.
//
// Implementations must be safe for concurrent use, though the session layer
// serialises Start/Stop pairs itself.
type Capturer interface {
	// Start begins buffering audio. It returns [ErrAlreadyCapturing] if a
	// capture is in progress.
	Start(ctx context.Context) error

	// Stop ends the capture and returns the buffered segment. It returns
	// [ErrNotCapturing] if Start was not called.
	Stop() (Segment, error)

	// Abort ends the capture and discards the buffered audio. Used when a
	// session is cancelled during capture.
	Abort() error

	// Close releases the underlying device. The Capturer is unusable
	// afterwards.
	Close() error
}
