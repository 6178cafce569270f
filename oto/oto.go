// Package oto drives a transport from the sample clock of an oto audio
// stream, so scheduled events follow the audio hardware instead of the wall
// clock.
package oto

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

type (
	// Renderer fills a stereo interleaved buffer. frame is the index of the
	// first frame of buf since the clock was created.
	Renderer interface {
		Render(buf []float32, frame int64)
	}

	// Advancer is what the clock advances, usually a *transport.Transport.
	Advancer interface {
		Advance(dt float64)
	}

	// Clock is a transport.Clock backed by an oto player. The player pulls
	// audio from the clock's stream; every frame pulled advances the
	// transport by one sample period. The advancing happens on a separate
	// goroutine, because oto may pull samples while the transport is holding
	// its lock inside Start.
	Clock struct {
		context    *oto.Context
		player     *oto.Player
		target     Advancer
		sampleRate int

		pending atomic.Int64
		wake    chan struct{}
		stop    chan struct{}
		done    chan struct{}
		once    sync.Once

		renderMutex sync.Mutex
		renderer    Renderer
		floatBuffer []float32
		frame       int64
	}

	stream Clock
)

const (
	DefaultSampleRate = 44100
	channelCount      = 2
	bytesPerFrame     = channelCount * 2
)

var ErrClosed = errors.New("oto clock is closed")

// NewClock opens the audio device and returns a clock advancing target.
// bufferSize is the latency requested from the device; zero leaves the
// choice to oto.
func NewClock(target Advancer, sampleRate int, bufferSize time.Duration) (*Clock, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	c := &Clock{
		context:    context,
		target:     target,
		sampleRate: sampleRate,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.player = context.NewPlayer((*stream)(c))
	go c.pump()
	return c, nil
}

// SetRenderer sets what is played; nil plays silence.
func (c *Clock) SetRenderer(r Renderer) {
	c.renderMutex.Lock()
	defer c.renderMutex.Unlock()
	c.renderer = r
}

func (c *Clock) SampleRate() int { return c.sampleRate }

func (c *Clock) Start() error {
	select {
	case <-c.stop:
		return ErrClosed
	default:
	}
	if err := c.player.Err(); err != nil {
		return fmt.Errorf("oto player failed: %w", err)
	}
	c.player.Play()
	return nil
}

func (c *Clock) Pause() error {
	c.player.Pause()
	return nil
}

// Close stops the clock and releases the player.
func (c *Clock) Close() error {
	c.once.Do(func() { close(c.stop) })
	<-c.done
	if err := c.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

func (c *Clock) pump() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case <-c.wake:
			if n := c.pending.Swap(0); n > 0 {
				c.target.Advance(float64(n) / float64(c.sampleRate))
			}
		}
	}
}

// Read is called by oto on its own goroutine.
func (s *stream) Read(buf []byte) (int, error) {
	c := (*Clock)(s)
	frames := len(buf) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	c.renderMutex.Lock()
	if cap(c.floatBuffer) < frames*channelCount {
		c.floatBuffer = make([]float32, frames*channelCount)
	}
	floats := c.floatBuffer[:frames*channelCount]
	clear(floats)
	if c.renderer != nil {
		c.renderer.Render(floats, c.frame)
	}
	c.frame += int64(frames)
	c.renderMutex.Unlock()
	FloatBufferTo16BitLE(floats, buf[:0])
	c.pending.Add(int64(frames))
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return frames * bytesPerFrame, nil
}
