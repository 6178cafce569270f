package playhead_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/tonicgrid"
	"github.com/vsariola/tonicgrid/grid"
	"github.com/vsariola/tonicgrid/playhead"
	"github.com/vsariola/tonicgrid/timemap"
)

type fakeTime struct{ t float64 }

func (f *fakeTime) Position() float64 { return f.t }

// layoutOf lays out a score with a tempo of 120 (0.25 s per microbeat) and
// 10 px per column.
func layoutOf(s tonicgrid.Score) playhead.Layout {
	s.Tempo = 120
	s.Layout = tonicgrid.LayoutConfig{CellWidth: 10, Zoom: 1, LeftMargin: 5}
	cm := grid.FromScore(&s)
	tm := timemap.Build(s.Tempo, cm.Columns())
	return playhead.Layout{
		TimeMap: tm,
		Pixels:  grid.NewPixelMap(cm, s.Layout, s.ModulationMarkers),
		Loop:    timemap.LoopWindow(tm, cm, s.Tempo),
		Tempo:   s.Tempo,
	}
}

func modulated() tonicgrid.Score {
	return tonicgrid.Score{
		Groupings:      []int{2, 2, 2},
		BoundaryStyles: []tonicgrid.BoundaryStyle{tonicgrid.Solid, tonicgrid.Solid},
		ModulationMarkers: []tonicgrid.ModulationMarker{
			{ID: tonicgrid.NewID(), AnchorBoundary: 1, Ratio: tonicgrid.Ratio{Num: 1, Den: 2}, Active: true},
			{ID: tonicgrid.NewID(), AnchorBoundary: 2, Ratio: tonicgrid.Ratio{Num: 3, Den: 2}, Active: true},
		},
	}
}

func newDriver(s tonicgrid.Score) (*playhead.Driver, *fakeTime) {
	src := &fakeTime{}
	d := playhead.NewDriver(src)
	d.SetLayout(layoutOf(s))
	d.SetPlaying(true)
	return d, src
}

func TestConstantSpeedUnderModulation(t *testing.T) {
	d, src := newDriver(modulated())
	var xs []float64
	for tt := 0.0; tt < 1.5; tt += 0.0625 {
		src.t = tt
		f, ok := d.Tick()
		require.True(t, ok)
		xs = append(xs, f.X)
	}
	for i := 1; i < len(xs); i++ {
		assert.InDelta(t, 2.5, xs[i]-xs[i-1], 1e-9, "frame %d", i)
	}
	assert.InDelta(t, 5, xs[0], 1e-9, "starts at the left margin")
}

func TestDisplayTempo(t *testing.T) {
	d, src := newDriver(modulated())
	for _, tc := range []struct {
		t    float64
		mult float64
	}{
		{0, 1},
		{0.45, 1},
		{0.5, 0.5}, // exactly at the first marker: passed
		{0.9, 0.5},
		{1.0, 0.75},
		{1.4, 0.75},
	} {
		src.t = tc.t
		f, ok := d.Tick()
		require.True(t, ok)
		assert.InDelta(t, tc.mult, f.Multiplier, 1e-12, "time %v", tc.t)
		assert.InDelta(t, 120*tc.mult, f.DisplayTempo, 1e-9, "time %v", tc.t)
	}
}

func TestPassEpsilon(t *testing.T) {
	d, _ := newDriver(modulated())
	// marker 1 is at 20 content pixels, i.e. column 2; half a pixel is 0.05 columns
	before := d.FrameAt(timemap.MicrobeatDuration(120) * 1.94)
	within := d.FrameAt(timemap.MicrobeatDuration(120) * 1.96)
	assert.Equal(t, 1.0, before.Multiplier)
	assert.Equal(t, 0.5, within.Multiplier)
}

func TestStopsAtEnd(t *testing.T) {
	d, src := newDriver(modulated())
	src.t = 1.6
	f, ok := d.Tick()
	assert.False(t, ok)
	assert.True(t, f.Ended)
	assert.InDelta(t, 1.5, f.Time, 1e-12)
	assert.InDelta(t, 6, f.Column, 1e-12)
	assert.False(t, d.Playing())
	_, ok = d.Tick()
	assert.False(t, ok, "a stopped driver does not tick")
}

func TestLoopWraps(t *testing.T) {
	s := modulated()
	s.BoundaryStyles[0] = tonicgrid.Anacrusis
	d, src := newDriver(s)
	d.SetLooping(true)
	// loop is 1.0 .. 1.5
	src.t = 1.6
	f, ok := d.Tick()
	require.True(t, ok)
	assert.False(t, f.Ended)
	assert.InDelta(t, 1.1, f.Time, 1e-9)
	assert.InDelta(t, 4.4, f.Column, 1e-9)
}

func TestPlayheadSkipsTonicColumns(t *testing.T) {
	s := tonicgrid.Score{Groupings: []int{2, 2}, BoundaryStyles: []tonicgrid.BoundaryStyle{tonicgrid.Solid}}
	require.True(t, s.PlaceTonic(1))
	d, src := newDriver(s)
	src.t = 0.5
	f, ok := d.Tick()
	require.True(t, ok)
	assert.InDelta(t, 4, f.Column, 1e-12, "at the tonic time the playhead is past the tonic columns")
	assert.InDelta(t, 5+40, f.X, 1e-9)
}

func TestNotPlaying(t *testing.T) {
	d, _ := newDriver(modulated())
	d.SetPlaying(false)
	_, ok := d.Tick()
	assert.False(t, ok)
	empty := playhead.NewDriver(&fakeTime{})
	empty.SetPlaying(true)
	_, ok = empty.Tick()
	assert.False(t, ok, "no layout")
	assert.Equal(t, 1.0, empty.FrameAt(0.3).Multiplier)
}
