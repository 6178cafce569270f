package transport

import (
	"sync"
	"time"
)

type (
	// ManualClock is a Clock that never advances by itself; the owner calls
	// Transport.Advance. StartErr, when set, makes Start fail, which is how
	// an unavailable audio device looks to the transport. PauseErr makes
	// Pause fail after stopping.
	ManualClock struct {
		Running  bool
		StartErr error
		PauseErr error
	}

	// TickerClock advances a transport from a time.Ticker goroutine, using
	// the wall clock. It is a fallback when no audio device is available.
	TickerClock struct {
		Transport *Transport
		Interval  time.Duration

		mutex sync.Mutex
		run   int // incremented on every Start and Pause
		stop  chan struct{}
		done  chan struct{}
	}
)

func (c *ManualClock) Start() error {
	if c.StartErr != nil {
		return c.StartErr
	}
	c.Running = true
	return nil
}

func (c *ManualClock) Pause() error {
	c.Running = false
	return c.PauseErr
}

// Start launches the ticking goroutine. The transport calls this with its
// lock held, so the goroutine must not touch the transport before Start
// returns; it only does so on the first tick.
func (c *TickerClock) Start() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stop != nil {
		return nil
	}
	interval := c.Interval
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	c.run++
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	run := c.run
	current := func() bool {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		return c.run == run
	}
	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				// skipped if Pause ran since this goroutine started
				c.Transport.AdvanceIf(now.Sub(last).Seconds(), current)
				last = now
			}
		}
	}(c.stop, c.done)
	return nil
}

// Pause stops the ticking goroutine. It does not wait for the goroutine to
// finish, because the transport calls Pause with its lock held and the
// goroutine may be waiting for that lock.
func (c *TickerClock) Pause() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stop == nil {
		return nil
	}
	close(c.stop)
	c.stop = nil
	c.run++
	return nil
}

// Wait blocks until the last started goroutine has exited.
func (c *TickerClock) Wait() {
	c.mutex.Lock()
	done := c.done
	c.mutex.Unlock()
	if done != nil {
		<-done
	}
}
