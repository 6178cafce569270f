package grid

import (
	"slices"

	"github.com/vsariola/tonicgrid"
)

type (
	// ColumnKind tells if a column carries playback time or not.
	ColumnKind int

	// Column is one logical column of the canvas. Index is the canvas index;
	// 0 is the first musical column. TimeIndex is the index among the time
	// bearing columns, or -1 for tonic columns.
	Column struct {
		Index     int
		Width     float64
		Kind      ColumnKind
		TimeIndex int
		Macrobeat int // for tonic columns, the macrobeat that follows the marker
	}

	// ColumnMap is the logical column list built from the macrobeat
	// groupings, the boundary styles and the placed tonic markers. It
	// translates between canvas indices, which include tonic columns, and
	// time indices, which exclude them. A ColumnMap is immutable; rebuild it
	// when the groupings or the tonic markers change.
	ColumnMap struct {
		columns         []Column
		timeToCanvas    []int
		boundaryColumns []int
		styles          []tonicgrid.BoundaryStyle
	}
)

const (
	KindBeat ColumnKind = iota
	KindTonic
)

func (k ColumnKind) String() string {
	if k == KindTonic {
		return "tonic"
	}
	return "beat"
}

// FromScore builds the ColumnMap of a score.
func FromScore(s *tonicgrid.Score) *ColumnMap {
	return BuildColumnMap(s.Groupings, s.BoundaryStyles, s.TonicMarkers)
}

// BuildColumnMap builds the logical column list. styles[i] is the style of
// the boundary after macrobeat i. Tonic markers at boundaries that are out of
// range, not solid or already taken are ignored.
func BuildColumnMap(groupings []int, styles []tonicgrid.BoundaryStyle, tonics []tonicgrid.TonicMarker) *ColumnMap {
	n := len(groupings)
	m := &ColumnMap{
		boundaryColumns: make([]int, n+1),
		styles:          make([]tonicgrid.BoundaryStyle, n+1),
	}
	for b := range m.styles {
		switch {
		case b == 0 || b == n:
			m.styles[b] = tonicgrid.Solid
		case b-1 < len(styles):
			m.styles[b] = styles[b-1]
		default:
			m.styles[b] = tonicgrid.Dashed
		}
	}
	hasTonic := make([]bool, n)
	for _, t := range tonics {
		b := t.BoundaryIndex
		if b < 0 || b >= n || m.styles[b] != tonicgrid.Solid {
			continue
		}
		hasTonic[b] = true
	}
	for b, g := range groupings {
		m.boundaryColumns[b] = len(m.columns)
		if hasTonic[b] {
			for i := 0; i < tonicgrid.TonicColumnSpan; i++ {
				m.columns = append(m.columns, Column{
					Index:     len(m.columns),
					Width:     tonicgrid.BeatColumnWidth,
					Kind:      KindTonic,
					TimeIndex: -1,
					Macrobeat: b,
				})
			}
		}
		for i := 0; i < g; i++ {
			m.columns = append(m.columns, Column{
				Index:     len(m.columns),
				Width:     tonicgrid.BeatColumnWidth,
				Kind:      KindBeat,
				TimeIndex: len(m.timeToCanvas),
				Macrobeat: b,
			})
			m.timeToCanvas = append(m.timeToCanvas, len(m.columns)-1)
		}
	}
	m.boundaryColumns[n] = len(m.columns)
	return m
}

// Len returns the number of canvas columns, i.e. the canvas index of the
// right musical boundary.
func (m *ColumnMap) Len() int { return len(m.columns) }

// TimeLen returns the number of time bearing columns.
func (m *ColumnMap) TimeLen() int { return len(m.timeToCanvas) }

// Columns returns a copy of the columns.
func (m *ColumnMap) Columns() []Column { return slices.Clone(m.columns) }

// Column returns the column at canvas index c.
func (m *ColumnMap) Column(c int) (Column, bool) {
	if c < 0 || c >= len(m.columns) {
		return Column{}, false
	}
	return m.columns[c], true
}

// Widths returns the widths of all the columns, in column width units.
func (m *ColumnMap) Widths() []float64 {
	ret := make([]float64, len(m.columns))
	for i, c := range m.columns {
		ret[i] = c.Width
	}
	return ret
}

// IsTonic tells if the canvas column c is a tonic column.
func (m *ColumnMap) IsTonic(c int) bool {
	col, ok := m.Column(c)
	return ok && col.Kind == KindTonic
}

// CanvasToTime translates a canvas index to a time index. ok is false for
// tonic columns and out of range indices. The right musical boundary
// (c == Len()) translates to TimeLen().
func (m *ColumnMap) CanvasToTime(c int) (t int, ok bool) {
	if c == len(m.columns) {
		return len(m.timeToCanvas), true
	}
	col, ok := m.Column(c)
	if !ok || col.Kind != KindBeat {
		return 0, false
	}
	return col.TimeIndex, true
}

// TimeToCanvas is the inverse of CanvasToTime.
func (m *ColumnMap) TimeToCanvas(t int) (c int, ok bool) {
	if t == len(m.timeToCanvas) {
		return len(m.columns), true
	}
	if t < 0 || t > len(m.timeToCanvas)-1 {
		return 0, false
	}
	return m.timeToCanvas[t], true
}

// NumBoundaries returns the number of boundaries, including the score start
// and the score end.
func (m *ColumnMap) NumBoundaries() int { return len(m.boundaryColumns) }

// BoundaryColumn returns the canvas index at the boundary b. If a tonic
// marker sits at the boundary, this is the index of its first column.
func (m *ColumnMap) BoundaryColumn(b int) (c int, ok bool) {
	if b < 0 || b >= len(m.boundaryColumns) {
		return 0, false
	}
	return m.boundaryColumns[b], true
}

// BoundaryStyle returns the style of the boundary b.
func (m *ColumnMap) BoundaryStyle(b int) (tonicgrid.BoundaryStyle, bool) {
	if b < 0 || b >= len(m.styles) {
		return tonicgrid.Dashed, false
	}
	return m.styles[b], true
}

// SolidBoundaries lists the indices of the solid boundaries in order.
func (m *ColumnMap) SolidBoundaries() []int {
	var ret []int
	for b, s := range m.styles {
		if s == tonicgrid.Solid {
			ret = append(ret, b)
		}
	}
	return ret
}

// LoopStartBoundary returns the boundary where looping starts: the first
// solid boundary after the last anacrusis boundary, or 0 when there is no
// anacrusis.
func (m *ColumnMap) LoopStartBoundary() int {
	last := -1
	for b, s := range m.styles {
		if s == tonicgrid.Anacrusis {
			last = b
		}
	}
	if last < 0 {
		return 0
	}
	for b := last + 1; b < len(m.styles); b++ {
		if m.styles[b] == tonicgrid.Solid {
			return b
		}
	}
	return len(m.styles) - 1
}

// MacrobeatOf returns the macrobeat the canvas column c belongs to.
func (m *ColumnMap) MacrobeatOf(c int) (int, bool) {
	col, ok := m.Column(c)
	if !ok {
		return 0, false
	}
	return col.Macrobeat, true
}
