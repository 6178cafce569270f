// Package timemap maps logical canvas columns to playback time.
package timemap

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/viterin/vek"
	"github.com/vsariola/tonicgrid/grid"
)

type (
	// Map holds the cumulative playback time, in seconds, at the start of
	// every canvas column. It has one more entry than there are columns: the
	// last entry is the time at the right musical boundary. Tonic columns have
	// zero duration, so the entry after a tonic column repeats the previous
	// value.
	Map []float64

	// Loop is the looped part of the score, in seconds.
	Loop struct {
		Start, End float64
		Corrected  bool // End was pushed forward because it did not exceed Start
	}
)

// MinimumTimeUnit is the fallback minimal time unit when the tempo does not
// define one.
const MinimumTimeUnit = 1e-3

// MicrobeatDuration returns the duration of one microbeat, an eighth note at
// the given quarter note tempo, in seconds. Non-positive tempos give zero.
func MicrobeatDuration(tempo float64) float64 {
	if tempo <= 0 {
		return 0
	}
	return 60 / (tempo * 2)
}

// Build computes the time map: every beat column accrues its width times the
// microbeat duration, tonic columns accrue nothing.
func Build(tempo float64, columns []grid.Column) Map {
	mb := MicrobeatDuration(tempo)
	durations := make([]float64, len(columns))
	for i, c := range columns {
		if c.Kind == grid.KindBeat {
			durations[i] = c.Width * mb
		}
	}
	ret := make(Map, 1, len(columns)+1)
	if len(durations) > 0 {
		ret = append(ret, vek.CumSum(durations)...)
	}
	return ret
}

// Copy returns a copy of the map.
func (m Map) Copy() Map { return slices.Clone(m) }

// End returns the time at the right musical boundary.
func (m Map) End() float64 {
	if len(m) == 0 {
		return 0
	}
	return m[len(m)-1]
}

// At returns the time at the start of the canvas column c. c may equal the
// number of columns, in which case the end time is returned.
func (m Map) At(c int) (float64, bool) {
	if c < 0 || c >= len(m) {
		return 0, false
	}
	return m[c], true
}

// Interval locates the column that is playing at time t: the last column
// with nonzero duration that starts at or before t. frac tells how far into
// the column t is. ok is false if t is before the start or at or after the
// end; then the first or the last column is returned.
func (m Map) Interval(t float64) (column int, frac float64, ok bool) {
	n := len(m) - 1
	if n <= 0 {
		return 0, 0, false
	}
	if t < m[0] {
		return 0, 0, false
	}
	if t >= m[n] {
		return n, 0, false
	}
	i := sort.Search(len(m), func(i int) bool { return m[i] > t }) - 1
	// m[i] <= t < m[i+1], so the column i has a nonzero duration
	return i, (t - m[i]) / (m[i+1] - m[i]), true
}

// Position returns the fractional canvas column at time t, clamped to the
// musical range.
func (m Map) Position(t float64) float64 {
	c, frac, _ := m.Interval(t)
	return float64(c) + frac
}

// TimeAt returns the time at the fractional canvas column p; the inverse of
// Position for positions inside time bearing columns.
func (m Map) TimeAt(p float64) float64 {
	n := len(m) - 1
	if n < 0 {
		return 0
	}
	if p <= 0 {
		return m[0]
	}
	if p >= float64(n) {
		return m[n]
	}
	i := int(p)
	return m[i] + (p-float64(i))*(m[i+1]-m[i])
}

// Validate checks that the map never decreases and contains no NaNs.
func (m Map) Validate() error {
	for i, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("time map entry %d is %v", i, v)
		}
		if i > 0 && v < m[i-1] {
			return fmt.Errorf("time map decreases at column %d: %v < %v", i, v, m[i-1])
		}
	}
	return nil
}

// LoopWindow computes the loop: it starts at the loop start boundary (the
// first solid boundary after any anacrusis) and ends at the right musical
// boundary. If the end would not exceed the start, the end is pushed forward
// by one microbeat.
func LoopWindow(m Map, cm *grid.ColumnMap, tempo float64) Loop {
	c, _ := cm.BoundaryColumn(cm.LoopStartBoundary())
	start, _ := m.At(c)
	l := Loop{Start: start, End: m.End()}
	if l.End <= l.Start {
		unit := MicrobeatDuration(tempo)
		if unit <= 0 {
			unit = MinimumTimeUnit
		}
		l.End = l.Start + unit
		l.Corrected = true
	}
	return l
}

// Length returns the duration of the loop.
func (l Loop) Length() float64 { return l.End - l.Start }

// Wrap folds a time at or after the loop end back into the loop.
func (l Loop) Wrap(t float64) float64 {
	length := l.Length()
	if length <= 0 || t < l.End {
		return t
	}
	return l.Start + math.Mod(t-l.Start, length)
}
