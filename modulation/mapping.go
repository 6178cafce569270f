// Package modulation warps the pixel space of the grid at modulation markers.
//
// The mapping converts between unmodulated canvas units ("time" here: the
// position along the grid in column width units, which is proportional to
// playback time for time bearing columns) and pixels. Playback timing never
// goes through this package.
package modulation

import (
	"slices"
	"sort"

	"github.com/google/uuid"
	"github.com/viterin/vek"
	"github.com/vsariola/tonicgrid"
)

type (
	// Segment is a linear piece of the mapping, starting at StartPixel /
	// StartTime and extending up to the next segment. Scale is in pixels per
	// unit; Multiplier is the product of all ratios crossed so far.
	Segment struct {
		StartPixel float64
		StartTime  float64
		Scale      float64
		Multiplier float64
		Marker     uuid.UUID // the marker that starts this segment; zero for the first one
	}

	// Mapping is a piecewise linear, strictly increasing mapping between
	// unmodulated units and pixels.
	Mapping struct {
		segments []Segment
		base     float64
	}
)

// NewMapping partitions the timeline at the markers and computes the scale of
// every segment. Markers are sorted by pixel position; inactive markers,
// markers with unsupported or neutral ratios, and markers before the origin
// do not create segments. Markers at the same pixel position are merged into
// one segment, so no segment is ever zero width.
func NewMapping(markers []tonicgrid.ModulationMarker, baseUnitPx float64) *Mapping {
	if baseUnitPx <= 0 {
		baseUnitPx = 1
	}
	var usable []tonicgrid.ModulationMarker
	for _, m := range markers {
		if !m.Active || !m.Ratio.Valid() || m.Ratio.IsNeutral() || m.PixelPosition < 0 {
			continue
		}
		usable = append(usable, m)
	}
	slices.SortStableFunc(usable, func(a, b tonicgrid.ModulationMarker) int {
		switch {
		case a.PixelPosition < b.PixelPosition:
			return -1
		case a.PixelPosition > b.PixelPosition:
			return 1
		}
		return 0
	})
	ratios := make([]float64, len(usable))
	for i, m := range usable {
		ratios[i] = m.Ratio.Float()
	}
	var cumulative []float64
	if len(ratios) > 0 {
		cumulative = vek.CumProd(ratios)
	}
	ret := &Mapping{base: baseUnitPx, segments: []Segment{{Scale: baseUnitPx, Multiplier: 1}}}
	for i, m := range usable {
		last := &ret.segments[len(ret.segments)-1]
		if m.PixelPosition <= last.StartPixel {
			last.Scale = baseUnitPx * cumulative[i]
			last.Multiplier = cumulative[i]
			last.Marker = m.ID
			continue
		}
		ret.segments = append(ret.segments, Segment{
			StartPixel: m.PixelPosition,
			StartTime:  last.StartTime + (m.PixelPosition-last.StartPixel)/last.Scale,
			Scale:      baseUnitPx * cumulative[i],
			Multiplier: cumulative[i],
			Marker:     m.ID,
		})
	}
	return ret
}

// Segments returns a copy of the segments, ordered by position.
func (m *Mapping) Segments() []Segment { return slices.Clone(m.segments) }

// Base returns the pixels per unit before any marker.
func (m *Mapping) Base() float64 { return m.base }

// IsIdentity tells if the mapping has no warps at all.
func (m *Mapping) IsIdentity() bool {
	return len(m.segments) == 1 && m.segments[0].Multiplier == 1
}

// TimeToPixel converts unmodulated units to pixels. Positions before the
// origin extrapolate the first segment.
func (m *Mapping) TimeToPixel(t float64) float64 {
	s := m.segments[m.segmentForTime(t)]
	return s.StartPixel + (t-s.StartTime)*s.Scale
}

// PixelToTime is the exact inverse of TimeToPixel.
func (m *Mapping) PixelToTime(x float64) float64 {
	s := m.segments[m.segmentForPixel(x)]
	return s.StartTime + (x-s.StartPixel)/s.Scale
}

// ScaleAt returns the pixels per unit at pixel x.
func (m *Mapping) ScaleAt(x float64) float64 {
	return m.segments[m.segmentForPixel(x)].Scale
}

// MultiplierAt returns the product of the ratios of all the markers before
// pixel x.
func (m *Mapping) MultiplierAt(x float64) float64 {
	return m.segments[m.segmentForPixel(x)].Multiplier
}

func (m *Mapping) segmentForTime(t float64) int {
	i := sort.Search(len(m.segments), func(i int) bool { return m.segments[i].StartTime > t })
	return max(i-1, 0)
}

func (m *Mapping) segmentForPixel(x float64) int {
	i := sort.Search(len(m.segments), func(i int) bool { return m.segments[i].StartPixel > x })
	return max(i-1, 0)
}
