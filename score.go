package tonicgrid

import (
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

type (
	// Score is everything the engine needs to know about a piece laid out on
	// the grid: the tempo, how the microbeat columns are grouped into
	// macrobeats and measures, the placed tonic and modulation markers, and
	// the placed notes, stamps and triplets. The engine never reads a Score
	// while it is being mutated; callers hand over a Copy, which acts as an
	// immutable snapshot for a rebuild.
	Score struct {
		// Tempo is in quarter notes per minute. One microbeat column is an
		// eighth note.
		Tempo float64

		// Groupings lists the number of microbeat columns of each macrobeat.
		Groupings []int `yaml:",flow"`

		// BoundaryStyles[i] is the style of the boundary after macrobeat i.
		// Missing entries are considered dashed. The score start and the score
		// end are always solid.
		BoundaryStyles []BoundaryStyle `yaml:",flow,omitempty"`

		TonicMarkers      []TonicMarker      `yaml:",omitempty"`
		ModulationMarkers []ModulationMarker `yaml:",omitempty"`
		Notes             []Note             `yaml:",omitempty"`
		Stamps            []Stamp            `yaml:",omitempty"`
		Triplets          []Triplet          `yaml:",omitempty"`

		Layout LayoutConfig `yaml:",omitempty"`
	}

	// LayoutConfig describes how the grid is projected on the screen. Zoom
	// and ScrollX are expected to change often; CellWidth and the margins
	// rarely.
	LayoutConfig struct {
		CellWidth          float64 `yaml:",omitempty"` // width of one column width unit, in pixels, at zoom 1
		Zoom               float64 `yaml:",omitempty"`
		ScrollX            float64 `yaml:",omitempty"`
		LeftMargin         float64 `yaml:",omitempty"` // pixels before the first musical column
		RightMarginColumns int     `yaml:",omitempty"` // trailing columns after the musical end; never timed
	}
)

const (
	// BeatColumnWidth is the width of a microbeat column, in column width
	// units.
	BeatColumnWidth = 1.0
	// TonicColumnSpan is the number of columns a tonic marker occupies.
	TonicColumnSpan = 2
	// DefaultCellWidth is the pixel width of one column width unit at zoom 1.
	DefaultCellWidth = 40.0
)

var DefaultLayout = LayoutConfig{CellWidth: DefaultCellWidth, Zoom: 1, RightMarginColumns: 2}

// NumBoundaries returns the number of measure boundaries, including the score
// start and the score end.
func (s *Score) NumBoundaries() int {
	return len(s.Groupings) + 1
}

// BoundaryStyle returns the style of the boundary b; ok is false if b is out
// of range. Boundary b lies just before macrobeat b.
func (s *Score) BoundaryStyle(b int) (style BoundaryStyle, ok bool) {
	if b < 0 || b > len(s.Groupings) {
		return Dashed, false
	}
	if b == 0 || b == len(s.Groupings) {
		return Solid, true
	}
	if b-1 < len(s.BoundaryStyles) {
		return s.BoundaryStyles[b-1], true
	}
	return Dashed, true
}

// IsSolid tells if the boundary b exists and is solid.
func (s *Score) IsSolid(b int) bool {
	style, ok := s.BoundaryStyle(b)
	return ok && style == Solid
}

// TonicAt returns the tonic marker placed at the boundary b, if any.
func (s *Score) TonicAt(b int) (TonicMarker, bool) {
	for _, t := range s.TonicMarkers {
		if t.BoundaryIndex == b {
			return t, true
		}
	}
	return TonicMarker{}, false
}

// CanPlaceTonic tells if a tonic marker could be placed at the boundary b:
// the boundary must be solid, must not be the score end and must not already
// carry a tonic.
func (s *Score) CanPlaceTonic(b int) bool {
	if b < 0 || b >= len(s.Groupings) || !s.IsSolid(b) {
		return false
	}
	_, occupied := s.TonicAt(b)
	return !occupied
}

// PlaceTonic places a tonic marker at the boundary b. Invalid or occupied
// boundaries are ignored and false is returned; hover previews call this
// speculatively, so rejection is not an error.
func (s *Score) PlaceTonic(b int) bool {
	if !s.CanPlaceTonic(b) {
		return false
	}
	s.TonicMarkers = append(s.TonicMarkers, TonicMarker{BoundaryIndex: b, UUID: NewID()})
	s.NormalizeTonics()
	return true
}

// RemoveTonic removes the tonic marker at the boundary b, if any.
func (s *Score) RemoveTonic(b int) bool {
	i := slices.IndexFunc(s.TonicMarkers, func(t TonicMarker) bool { return t.BoundaryIndex == b })
	if i < 0 {
		return false
	}
	s.TonicMarkers = slices.Delete(s.TonicMarkers, i, i+1)
	s.NormalizeTonics()
	return true
}

// NormalizeTonics sorts the tonic markers by boundary, drops markers that are
// duplicates or sit at illegal boundaries, and recomputes their column
// indices.
func (s *Score) NormalizeTonics() {
	slices.SortStableFunc(s.TonicMarkers, func(a, b TonicMarker) int { return a.BoundaryIndex - b.BoundaryIndex })
	kept := s.TonicMarkers[:0]
	for _, t := range s.TonicMarkers {
		if t.BoundaryIndex < 0 || t.BoundaryIndex >= len(s.Groupings) || !s.IsSolid(t.BoundaryIndex) {
			continue
		}
		if n := len(kept); n > 0 && kept[n-1].BoundaryIndex == t.BoundaryIndex {
			continue
		}
		kept = append(kept, t)
	}
	s.TonicMarkers = kept
	column := 0
	next := 0
	for b, g := range s.Groupings {
		if next < len(s.TonicMarkers) && s.TonicMarkers[next].BoundaryIndex == b {
			s.TonicMarkers[next].ColumnIndex = column
			column += TonicColumnSpan
			next++
		}
		column += g
	}
}

// LengthInMicrobeats returns the number of time bearing columns.
func (s *Score) LengthInMicrobeats() int {
	ret := 0
	for _, g := range s.Groupings {
		ret += g
	}
	return ret
}

// Copy makes a deep copy of a Score.
func (s *Score) Copy() Score {
	ret := *s
	ret.Groupings = slices.Clone(s.Groupings)
	ret.BoundaryStyles = slices.Clone(s.BoundaryStyles)
	ret.TonicMarkers = slices.Clone(s.TonicMarkers)
	ret.ModulationMarkers = slices.Clone(s.ModulationMarkers)
	ret.Notes = slices.Clone(s.Notes)
	ret.Stamps = make([]Stamp, len(s.Stamps))
	for i, st := range s.Stamps {
		ret.Stamps[i] = st.Copy()
	}
	ret.Triplets = slices.Clone(s.Triplets)
	return ret
}

// Validate checks if the Score looks like a valid score: positive tempo, at
// least one macrobeat, every macrobeat at least one microbeat long, tonic
// markers at distinct solid boundaries, modulation markers with supported
// ratios anchored at solid boundaries, and well formed placements.
func (s *Score) Validate() error {
	if s.Tempo <= 0 {
		return errors.New("tempo should be > 0")
	}
	if len(s.Groupings) == 0 {
		return errors.New("score contains no macrobeats")
	}
	for i, g := range s.Groupings {
		if g < 1 {
			return fmt.Errorf("macrobeat %d has %d microbeats, should be >= 1", i, g)
		}
	}
	if len(s.BoundaryStyles) > len(s.Groupings) {
		return fmt.Errorf("%d boundary styles given for %d macrobeats", len(s.BoundaryStyles), len(s.Groupings))
	}
	seen := map[int]bool{}
	for _, t := range s.TonicMarkers {
		if t.BoundaryIndex < 0 || t.BoundaryIndex >= len(s.Groupings) {
			return fmt.Errorf("tonic marker at boundary %d is out of range", t.BoundaryIndex)
		}
		if !s.IsSolid(t.BoundaryIndex) {
			return fmt.Errorf("tonic marker at boundary %d is not at a solid boundary", t.BoundaryIndex)
		}
		if seen[t.BoundaryIndex] {
			return fmt.Errorf("more than one tonic marker at boundary %d", t.BoundaryIndex)
		}
		seen[t.BoundaryIndex] = true
	}
	for _, m := range s.ModulationMarkers {
		if !m.Ratio.Valid() {
			return fmt.Errorf("modulation marker %v: %w", m.ID, ErrInvalidRatio)
		}
		if !s.IsSolid(m.AnchorBoundary) {
			return fmt.Errorf("modulation marker %v is not anchored at a solid boundary", m.ID)
		}
	}
	return ValidatePlacements(s.Notes, s.Stamps, s.Triplets)
}

// LoadScore parses a YAML score, fills in the layout defaults and normalizes
// the tonic markers. The parsed score is validated.
func LoadScore(data []byte) (Score, error) {
	var s Score
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Score{}, fmt.Errorf("could not unmarshal score: %w", err)
	}
	if s.Layout.CellWidth <= 0 {
		s.Layout.CellWidth = DefaultLayout.CellWidth
	}
	if s.Layout.Zoom <= 0 {
		s.Layout.Zoom = DefaultLayout.Zoom
	}
	if err := s.Validate(); err != nil {
		return Score{}, fmt.Errorf("invalid score: %w", err)
	}
	s.NormalizeTonics()
	return s, nil
}

// Marshal encodes the score as YAML.
func (s *Score) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("could not marshal score: %w", err)
	}
	return data, nil
}
