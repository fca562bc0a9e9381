// Package malgo implements audio.Capturer on top of the miniaudio bindings.
//
// The capture device is initialised once and kept running for the life of the
// process; Start and Stop only flip a buffering flag. This makes the
// hotkey-to-recording latency effectively zero, at the cost of an always-open
// device handle.
package malgo

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/voicekey/voicekey/pkg/audio"
)

const defaultMaxDuration = 2 * time.Minute

// Option is a functional option for [Capturer].
type Option func(*Capturer)

// WithMaxDuration caps a single capture. Audio past the cap is dropped and the
// capture keeps waiting for Stop. Default: 2 minutes.
func WithMaxDuration(d time.Duration) Option {
	return func(c *Capturer) { c.maxDuration = d }
}

// Capturer implements audio.Capturer using a persistent malgo capture device.
type Capturer struct {
	malgoCtx    *malgo.AllocatedContext
	device      *malgo.Device
	maxDuration time.Duration

	mu        sync.Mutex
	buf       *bytes.Buffer
	capturing bool
	startTime time.Time
}

// Compile-time interface assertion.
var _ audio.Capturer = (*Capturer)(nil)

// New initialises the audio backend and opens the default capture device at
// 16 kHz mono S16. The device starts immediately and runs until Close.
func New(opts ...Option) (*Capturer, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	c := &Capturer{
		malgoCtx:    malgoCtx,
		maxDuration: defaultMaxDuration,
		buf:         new(bytes.Buffer),
	}
	for _, o := range opts {
		o(c)
	}

	if err := c.initDevice(); err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, err
	}
	return c, nil
}

func (c *Capturer) initDevice() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = audio.Channels
	deviceConfig.SampleRate = audio.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	// The callback runs for the life of the device but only buffers while a
	// capture is active.
	onData := func(_, pInputSamples []byte, _ uint32) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if !c.capturing {
			return
		}
		if time.Since(c.startTime) > c.maxDuration {
			return
		}
		c.buf.Write(pInputSamples)
	}

	device, err := malgo.InitDevice(c.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onData,
	})
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}
	c.device = device
	return nil
}

// Start implements audio.Capturer. The device is already running, so this
// only resets the buffer and flips the capturing flag.
func (c *Capturer) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return audio.ErrAlreadyCapturing
	}
	c.buf.Reset()
	c.capturing = true
	c.startTime = time.Now()
	return nil
}

// Stop implements audio.Capturer.
func (c *Capturer) Stop() (audio.Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return audio.Segment{}, audio.ErrNotCapturing
	}
	c.capturing = false

	pcm := make([]byte, c.buf.Len())
	copy(pcm, c.buf.Bytes())

	return audio.Segment{
		PCM:        pcm,
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
		Duration:   time.Since(c.startTime),
	}, nil
}

// Abort implements audio.Capturer.
func (c *Capturer) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return audio.ErrNotCapturing
	}
	c.capturing = false
	c.buf.Reset()
	return nil
}

// Close implements audio.Capturer. It stops and releases the device and the
// audio context.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.malgoCtx != nil {
		_ = c.malgoCtx.Uninit()
		c.malgoCtx.Free()
		c.malgoCtx = nil
	}
	return nil
}
