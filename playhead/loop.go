package playhead

import (
	"context"
	"sync"
	"time"
)

type (
	// FrameRequester runs fn once, at the next animation frame.
	FrameRequester interface {
		RequestFrame(fn func())
	}

	// Ticker is what Loop ticks: typically the engine, which serializes the
	// access to its Driver.
	Ticker interface {
		Tick() (Frame, bool)
	}

	// Loop is the per-frame polling task. Every frame it checks its
	// cancellation token, ticks, hands the frame to Render and, if the
	// playhead is still playing, resubmits itself for the next frame.
	Loop struct {
		Ticker Ticker
		Frames FrameRequester
		Render func(Frame)
	}

	// FrameTicker is a FrameRequester driven by a time.Ticker, for programs
	// without a display refresh callback.
	FrameTicker struct {
		mutex   sync.Mutex
		pending []func()
		ticker  *time.Ticker
		stop    chan struct{}
	}
)

// Run submits the first frame and returns immediately. The task ends when ctx
// is cancelled or when Tick reports that playback is over; done, if not nil,
// is called once when it ends.
func (l *Loop) Run(ctx context.Context, done func()) {
	var step func()
	step = func() {
		if ctx.Err() != nil {
			if done != nil {
				done()
			}
			return
		}
		f, ok := l.Ticker.Tick()
		if l.Render != nil && (ok || f.Ended) {
			l.Render(f)
		}
		if !ok {
			if done != nil {
				done()
			}
			return
		}
		l.Frames.RequestFrame(step)
	}
	l.Frames.RequestFrame(step)
}

// NewFrameTicker starts a ticker that runs the requested frames at the given
// rate.
func NewFrameTicker(fps int) *FrameTicker {
	if fps <= 0 {
		fps = 60
	}
	f := &FrameTicker{ticker: time.NewTicker(time.Second / time.Duration(fps)), stop: make(chan struct{})}
	go f.run()
	return f
}

func (f *FrameTicker) RequestFrame(fn func()) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.pending = append(f.pending, fn)
}

// Close stops the ticker; pending frames are dropped.
func (f *FrameTicker) Close() {
	f.ticker.Stop()
	close(f.stop)
}

func (f *FrameTicker) run() {
	for {
		select {
		case <-f.stop:
			return
		case <-f.ticker.C:
			f.mutex.Lock()
			pending := f.pending
			f.pending = nil
			f.mutex.Unlock()
			for _, fn := range pending {
				fn()
			}
		}
	}
}
