// Package playhead follows the transport on screen.
//
// The playhead moves in unmodulated pixel space, so its speed always follows
// the true tempo, even when modulation markers compress or expand the drawn
// grid. Which markers it has passed is evaluated separately and only used for
// a cosmetic display tempo.
package playhead

import (
	"github.com/vsariola/tonicgrid/grid"
	"github.com/vsariola/tonicgrid/timemap"
)

type (
	// TimeSource is where the driver reads the transport time from.
	TimeSource interface {
		Position() float64
	}

	// Frame is what the playhead looks like in one animation frame.
	Frame struct {
		Time         float64 // transport time after loop wrap
		Column       float64 // fractional canvas column
		X            float64 // screen x in unmodulated pixel space
		Multiplier   float64 // product of the ratios of the markers passed
		DisplayTempo float64 // tempo times Multiplier; cosmetic only
		Ended        bool    // playback reached the end and stopped
	}

	// Layout is the immutable timing and pixel state the driver works on.
	// It is replaced as a whole whenever the score or the layout changes.
	Layout struct {
		TimeMap timemap.Map
		Pixels  *grid.PixelMap
		Loop    timemap.Loop
		Tempo   float64
	}

	// Driver computes playhead frames. It is not safe for concurrent use;
	// the owner serializes Tick and the setters.
	Driver struct {
		source  TimeSource
		layout  Layout
		markers []markerX
		base    float64
		looping bool
		playing bool
	}

	markerX struct {
		x          float64 // unmodulated content pixel of the marker
		multiplier float64
	}
)

// PassEpsilon is the tolerance, in pixels, of the "has the playhead passed
// this marker" test. A marker at content pixel m counts as passed when the
// playhead is at x >= m - PassEpsilon, so the interval of a segment is half
// open: its start belongs to it, its end to the next one.
const PassEpsilon = 0.5

func NewDriver(source TimeSource) *Driver {
	return &Driver{source: source}
}

// SetLayout replaces the timing and pixel state.
func (d *Driver) SetLayout(l Layout) {
	d.layout = l
	d.markers = d.markers[:0]
	d.base = 1
	if l.Pixels == nil {
		return
	}
	// Segment starts are given in unmodulated units; the comparison is done
	// in unmodulated pixel space, the same space the playhead moves in.
	segments := l.Pixels.Mapping().Segments()
	d.base = segments[0].Multiplier
	for _, s := range segments[1:] {
		d.markers = append(d.markers, markerX{x: s.StartTime * l.Pixels.Scale(), multiplier: s.Multiplier})
	}
}

func (d *Driver) Layout() Layout { return d.layout }

func (d *Driver) SetLooping(looping bool) { d.looping = looping }

// SetPlaying sets the "still playing" flag that Tick checks first.
func (d *Driver) SetPlaying(playing bool) { d.playing = playing }

func (d *Driver) Playing() bool { return d.playing }

// Tick computes the frame for the current transport time. ok is false when
// the driver is not playing anymore; the caller should then stop requesting
// frames. When looping is disabled and the time reaches the end, the
// returned frame has Ended set, the driver stops playing and ok is false.
func (d *Driver) Tick() (f Frame, ok bool) {
	if !d.playing || d.layout.Pixels == nil || len(d.layout.TimeMap) == 0 {
		return Frame{}, false
	}
	t := d.source.Position()
	if d.looping {
		t = d.layout.Loop.Wrap(t)
	}
	end := d.layout.TimeMap.End()
	if !d.looping && t >= end {
		d.playing = false
		f = d.frameAt(end, float64(len(d.layout.TimeMap)-1))
		f.Ended = true
		return f, false
	}
	c, frac, _ := d.layout.TimeMap.Interval(t)
	return d.frameAt(t, float64(c)+frac), true
}

// FrameAt computes the frame at transport time t without touching the
// playing flag.
func (d *Driver) FrameAt(t float64) Frame {
	if d.layout.Pixels == nil {
		return Frame{Time: t, Multiplier: 1, DisplayTempo: d.layout.Tempo}
	}
	c, frac, _ := d.layout.TimeMap.Interval(t)
	return d.frameAt(t, float64(c)+frac)
}

func (d *Driver) frameAt(t, column float64) Frame {
	p := d.layout.Pixels
	units := p.ColumnToUnits(column)
	mult := d.multiplierAt(units * p.Scale())
	return Frame{
		Time:         t,
		Column:       column,
		X:            p.UnmodulatedX(column),
		Multiplier:   mult,
		DisplayTempo: d.layout.Tempo * mult,
	}
}

// multiplierAt returns the multiplier of the last marker passed at the
// unmodulated content pixel x.
func (d *Driver) multiplierAt(x float64) float64 {
	ret := d.base
	for _, m := range d.markers {
		if x < m.x-PassEpsilon {
			break
		}
		ret = m.multiplier
	}
	return ret
}
