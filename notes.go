package tonicgrid

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

type (
	// Note is a note placed on the grid. StartColumn and EndColumn are canvas
	// indices and the note sounds from the start of StartColumn to the end of
	// EndColumn. Drum notes are one-shot hits on the Voice; pitched notes are
	// attacked and released.
	Note struct {
		ID          uuid.UUID
		Row         int
		StartColumn int
		EndColumn   int
		Voice       string // color or drum voice name
		Shape       string `yaml:",omitempty"`
		Drum        bool   `yaml:",omitempty"`
	}

	// Stamp is a rhythmic figure placed on a percussion row. It covers Span
	// time bearing columns starting at StartColumn; every offset in Offsets
	// is a fraction [0, 1) of the covered time and triggers one hit.
	Stamp struct {
		ID          uuid.UUID
		Row         int
		StartColumn int
		Span        int
		Voice       string
		Offsets     []float64 `yaml:",flow"`
	}

	// Triplet divides Span time bearing columns into three even slots; every
	// slot with Hits set triggers one hit.
	Triplet struct {
		ID          uuid.UUID
		Row         int
		StartColumn int
		Span        int
		Voice       string
		Hits        [3]bool `yaml:",flow"`
	}
)

// Copy makes a deep copy of a Stamp.
func (s Stamp) Copy() Stamp {
	s.Offsets = slices.Clone(s.Offsets)
	return s
}

// Validate checks that the note starts inside the canvas and does not end
// before it starts.
func (n *Note) Validate() error {
	if n.StartColumn < 0 || n.EndColumn < n.StartColumn {
		return fmt.Errorf("note %v spans invalid columns %d..%d", n.ID, n.StartColumn, n.EndColumn)
	}
	return nil
}

// Validate checks that the stamp covers at least one column and that every
// offset is in [0, 1).
func (s *Stamp) Validate() error {
	if s.StartColumn < 0 || s.Span < 1 {
		return fmt.Errorf("stamp %v covers invalid columns: start %d, span %d", s.ID, s.StartColumn, s.Span)
	}
	for _, o := range s.Offsets {
		if o < 0 || o >= 1 {
			return fmt.Errorf("stamp %v has offset %v outside [0, 1)", s.ID, o)
		}
	}
	return nil
}

// Validate checks that the triplet covers at least one column.
func (t *Triplet) Validate() error {
	if t.StartColumn < 0 || t.Span < 1 {
		return fmt.Errorf("triplet %v covers invalid columns: start %d, span %d", t.ID, t.StartColumn, t.Span)
	}
	return nil
}

// ValidatePlacements validates every note, stamp and triplet.
func ValidatePlacements(notes []Note, stamps []Stamp, triplets []Triplet) error {
	for i := range notes {
		if err := notes[i].Validate(); err != nil {
			return err
		}
	}
	for i := range stamps {
		if err := stamps[i].Validate(); err != nil {
			return err
		}
	}
	for i := range triplets {
		if err := triplets[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
