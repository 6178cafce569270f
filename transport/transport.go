// Package transport schedules callbacks against a transport clock and turns a
// score into scheduled note, percussion, stamp and triplet events.
package transport

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

type (
	// ID identifies a scheduled callback.
	ID int

	// State is the lifecycle state of the transport.
	State int

	// Tick is passed to a callback when it fires. At is the transport time
	// the callback was scheduled at; AudioTime is the corresponding time on
	// the clock, which keeps increasing across loop wraps; Iteration counts
	// the loop wraps since the transport was started.
	Tick struct {
		At        float64
		AudioTime float64
		Iteration int
	}

	Callback func(Tick)

	// Clock is the audio runtime that owns the sample clock. While started,
	// it repeatedly calls Transport.Advance with the elapsed time.
	Clock interface {
		Start() error
		Pause() error
	}

	// Transport is a cooperative transport: the clock advances it and every
	// callback whose time is crossed fires exactly once per pass. When
	// looping, the position wraps from the loop end to the loop start and
	// the callbacks inside the loop fire again on every pass. Callbacks are
	// called outside the lock, in time order, so they may call back into the
	// transport.
	Transport struct {
		mutex     sync.Mutex
		clock     Clock
		state     State
		position  float64
		audioTime float64
		iteration int
		loopStart float64
		loopEnd   float64
		looping   bool
		nextID    ID
		entries   []entry // sorted by time, then by id
	}

	entry struct {
		id      ID
		at      float64
		fn      Callback
		closing bool // also fires when the position wraps exactly at at
	}

	due struct {
		fn   Callback
		tick Tick
	}
)

const (
	Stopped State = iota
	Started
	Paused
)

// maxWrapsPerAdvance bounds the work of a single Advance call when the loop
// is very short compared to the elapsed time.
const maxWrapsPerAdvance = 1024

var ErrNoClock = errors.New("transport has no clock")

func (s State) String() string {
	switch s {
	case Started:
		return "started"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

func New(clock Clock) *Transport {
	return &Transport{clock: clock}
}

// SetClock replaces the clock. The transport should be stopped.
func (t *Transport) SetClock(clock Clock) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.clock = clock
}

// Schedule registers fn to be called when the transport crosses the time at.
func (t *Transport) Schedule(at float64, fn Callback) ID {
	return t.schedule(at, fn, false)
}

// ScheduleClosing is like Schedule, but if at is the loop end, fn also fires
// when the position wraps there, before the callbacks at the loop start.
// Note releases use it, so a note reaching the loop end is released on every
// pass.
func (t *Transport) ScheduleClosing(at float64, fn Callback) ID {
	return t.schedule(at, fn, true)
}

func (t *Transport) schedule(at float64, fn Callback, closing bool) ID {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.nextID++
	e := entry{id: t.nextID, at: at, fn: fn, closing: closing}
	i, _ := slices.BinarySearchFunc(t.entries, e, compareEntries)
	t.entries = slices.Insert(t.entries, i, e)
	return e.id
}

// Cancel removes a scheduled callback. It returns false if no such callback
// was scheduled.
func (t *Transport) Cancel(id ID) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	i := slices.IndexFunc(t.entries, func(e entry) bool { return e.id == id })
	if i < 0 {
		return false
	}
	t.entries = slices.Delete(t.entries, i, i+1)
	return true
}

// CancelAll removes all scheduled callbacks.
func (t *Transport) CancelAll() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.entries = nil
}

// Pending returns the number of scheduled callbacks.
func (t *Transport) Pending() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.entries)
}

// Start starts the clock with the transport at position at. If the clock is
// missing or fails to start, the transport stays stopped and the error is
// returned.
func (t *Transport) Start(at float64) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.clock == nil {
		return ErrNoClock
	}
	t.position = at
	t.audioTime = 0
	t.iteration = 0
	if err := t.clock.Start(); err != nil {
		t.state = Stopped
		return fmt.Errorf("cannot start clock: %w", err)
	}
	t.state = Started
	return nil
}

// Pause halts the clock but keeps the position and the scheduled callbacks.
// The transport is paused even if the clock reports an error.
func (t *Transport) Pause() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.state != Started {
		return nil
	}
	t.state = Paused
	if t.clock != nil {
		if err := t.clock.Pause(); err != nil {
			return fmt.Errorf("cannot pause clock: %w", err)
		}
	}
	return nil
}

// Resume continues from a pause without rescheduling anything.
func (t *Transport) Resume() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.state != Paused {
		return nil
	}
	if t.clock == nil {
		return ErrNoClock
	}
	if err := t.clock.Start(); err != nil {
		return fmt.Errorf("cannot resume clock: %w", err)
	}
	t.state = Started
	return nil
}

// Stop halts the clock, cancels all callbacks and rewinds to zero. The
// transport is stopped even if the clock reports an error.
func (t *Transport) Stop() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	var err error
	if t.state == Started && t.clock != nil {
		err = t.clock.Pause()
	}
	t.state = Stopped
	t.entries = nil
	t.position = 0
	t.audioTime = 0
	t.iteration = 0
	if err != nil {
		return fmt.Errorf("cannot stop clock: %w", err)
	}
	return nil
}

// Seek moves the position without firing anything.
func (t *Transport) Seek(at float64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.position = at
}

func (t *Transport) State() State {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Position returns the current transport time, in seconds.
func (t *Transport) Position() float64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.position
}

// AudioTime returns the clock time elapsed while started since Start.
func (t *Transport) AudioTime() float64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.audioTime
}

// Iteration returns the number of loop wraps since Start.
func (t *Transport) Iteration() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.iteration
}

// SetLoop sets the loop window. A window that is not at least a positive
// length disables wrapping.
func (t *Transport) SetLoop(start, end float64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.loopStart, t.loopEnd = start, end
}

func (t *Transport) Loop() (start, end float64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.loopStart, t.loopEnd
}

func (t *Transport) SetLooping(looping bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.looping = looping
}

func (t *Transport) Looping() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.looping
}

// Advance moves the transport forward by dt seconds and fires every callback
// in the half open interval that was crossed. When looping, the part past the
// loop end continues from the loop start, so a callback exactly at the loop
// start fires after the wrap and a callback exactly at the loop end only
// does if it was scheduled with ScheduleClosing. Advance does nothing unless
// the transport is started.
func (t *Transport) Advance(dt float64) {
	t.AdvanceIf(dt, nil)
}

// AdvanceIf is Advance for clocks that may be replaced while they are
// advancing: current is called with the transport lock held and the advance
// is skipped if it returns false. Since Pause and Start of the clock are also
// called with the lock held, a clock that was paused in the meantime is
// detected reliably.
func (t *Transport) AdvanceIf(dt float64, current func() bool) {
	if dt <= 0 {
		return
	}
	t.mutex.Lock()
	if t.state != Started || (current != nil && !current()) {
		t.mutex.Unlock()
		return
	}
	if t.looping && t.loopEnd > t.loopStart && t.position >= t.loopEnd {
		t.position = t.loopStart + math.Mod(t.position-t.loopStart, t.loopEnd-t.loopStart)
	}
	var fire []due
	for wraps := 0; dt > 0 && wraps <= maxWrapsPerAdvance; wraps++ {
		from := t.position
		to := from + dt
		wrap := t.looping && t.loopEnd > t.loopStart && from < t.loopEnd && to >= t.loopEnd
		if wrap {
			to = t.loopEnd
		}
		fire = t.collect(fire, from, to)
		if wrap {
			fire = t.collectClosing(fire, from)
		}
		t.audioTime += to - from
		dt -= to - from
		t.position = to
		if !wrap {
			break
		}
		t.position = t.loopStart
		t.iteration++
	}
	t.mutex.Unlock()
	for _, d := range fire {
		d.fn(d.tick)
	}
}

func (t *Transport) collect(fire []due, from, to float64) []due {
	i, _ := slices.BinarySearchFunc(t.entries, from, func(e entry, at float64) int {
		if e.at < at {
			return -1
		}
		return 1
	})
	for ; i < len(t.entries) && t.entries[i].at < to; i++ {
		e := t.entries[i]
		fire = append(fire, due{fn: e.fn, tick: Tick{
			At:        e.at,
			AudioTime: t.audioTime + (e.at - from),
			Iteration: t.iteration,
		}})
	}
	return fire
}

// collectClosing collects the closing callbacks exactly at the loop end.
func (t *Transport) collectClosing(fire []due, from float64) []due {
	i, _ := slices.BinarySearchFunc(t.entries, t.loopEnd, func(e entry, at float64) int {
		if e.at < at {
			return -1
		}
		return 1
	})
	for ; i < len(t.entries) && t.entries[i].at == t.loopEnd; i++ {
		e := t.entries[i]
		if !e.closing {
			continue
		}
		fire = append(fire, due{fn: e.fn, tick: Tick{
			At:        e.at,
			AudioTime: t.audioTime + (e.at - from),
			Iteration: t.iteration,
		}})
	}
	return fire
}

func compareEntries(a, b entry) int {
	switch {
	case a.at < b.at:
		return -1
	case a.at > b.at:
		return 1
	}
	return int(a.id - b.id)
}
