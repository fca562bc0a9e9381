// Package mock provides a test double for the audio.Capturer interface.
//
// Zero values behave like a well-functioning microphone that records nothing;
// set Segment to feed controlled PCM and the Err fields to inject failures.
package mock

import (
	"context"
	"sync"

	"github.com/voicekey/voicekey/pkg/audio"
)

// Capturer is a mock implementation of audio.Capturer.
type Capturer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Segment is returned by Stop when StopErr is nil.
	Segment audio.Segment

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// --- Call records (read after test) ---

	// StartCalls is the number of times Start was called.
	StartCalls int

	// StopCalls is the number of times Stop was called.
	StopCalls int

	// AbortCalls is the number of times Abort was called.
	AbortCalls int

	// Closed reports whether Close was called.
	Closed bool

	capturing bool
}

// Start records the call and returns StartErr.
func (c *Capturer) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls++
	if c.StartErr != nil {
		return c.StartErr
	}
	if c.capturing {
		return audio.ErrAlreadyCapturing
	}
	c.capturing = true
	return nil
}

// Stop records the call and returns Segment, StopErr.
func (c *Capturer) Stop() (audio.Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopCalls++
	if !c.capturing {
		return audio.Segment{}, audio.ErrNotCapturing
	}
	c.capturing = false
	if c.StopErr != nil {
		return audio.Segment{}, c.StopErr
	}
	return c.Segment, nil
}

// Abort records the call.
func (c *Capturer) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AbortCalls++
	if !c.capturing {
		return audio.ErrNotCapturing
	}
	c.capturing = false
	return nil
}

// Close records the call.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Ensure Capturer implements audio.Capturer at compile time.
var _ audio.Capturer = (*Capturer)(nil)
