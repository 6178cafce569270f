package tonicgrid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type (
	// BoundaryStyle is the style of a measure boundary. Only solid boundaries
	// can anchor tonic markers, modulation markers and the loop start.
	BoundaryStyle int

	// TonicMarker is a zero-duration marker placed at a solid boundary. It
	// occupies TonicColumnSpan columns on the canvas but no playback time.
	// ColumnIndex is the canvas index of its first column and is derived from
	// the groupings by Score.NormalizeTonics.
	TonicMarker struct {
		ColumnIndex   int `yaml:"-"`
		BoundaryIndex int
		UUID          uuid.UUID
	}

	// ModulationMarker changes the visual pixel scale of all material after
	// it by Ratio, without altering playback tempo. PixelPosition is where
	// the marker is drawn; it can be derived from AnchorBoundary with
	// grid.ResolveMarkerPixels. Inactive markers are kept in the score but
	// do not warp anything.
	ModulationMarker struct {
		ID             uuid.UUID
		AnchorBoundary int
		Ratio          Ratio
		PixelPosition  float64 `yaml:",omitempty"`
		Active         bool
	}

	// Ratio is a simple rational number. Only the ratios in SupportedRatios
	// are accepted, which keeps the coordinate mapping invertible.
	Ratio struct {
		Num, Den int
	}
)

const (
	Dashed BoundaryStyle = iota
	Solid
	Anacrusis
)

var ErrInvalidRatio = errors.New("unsupported modulation ratio")

// SupportedRatios lists the ratios a modulation marker can use. 1/1 is
// neutral: it is accepted but does not warp anything.
var SupportedRatios = []Ratio{{1, 2}, {2, 3}, {3, 4}, {1, 1}, {4, 3}, {3, 2}, {2, 1}}

var boundaryStyleNames = [...]string{Dashed: "dashed", Solid: "solid", Anacrusis: "anacrusis"}

func (b BoundaryStyle) String() string {
	if b < 0 || int(b) >= len(boundaryStyleNames) {
		return fmt.Sprintf("BoundaryStyle(%d)", int(b))
	}
	return boundaryStyleNames[b]
}

func (b BoundaryStyle) MarshalText() ([]byte, error) {
	if b < 0 || int(b) >= len(boundaryStyleNames) {
		return nil, fmt.Errorf("unknown boundary style %d", int(b))
	}
	return []byte(boundaryStyleNames[b]), nil
}

func (b *BoundaryStyle) UnmarshalText(text []byte) error {
	for i, n := range boundaryStyleNames {
		if n == string(text) {
			*b = BoundaryStyle(i)
			return nil
		}
	}
	return fmt.Errorf("unknown boundary style %q", string(text))
}

// ParseRatio parses ratios written as "2/3". A bare integer is a ratio with
// denominator 1.
func ParseRatio(s string) (Ratio, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return Ratio{}, fmt.Errorf("ratio %q: %w", s, ErrInvalidRatio)
	}
	d := 1
	if found {
		if d, err = strconv.Atoi(strings.TrimSpace(den)); err != nil {
			return Ratio{}, fmt.Errorf("ratio %q: %w", s, ErrInvalidRatio)
		}
	}
	r := Ratio{n, d}.Reduce()
	if !r.Valid() {
		return Ratio{}, fmt.Errorf("ratio %q: %w", s, ErrInvalidRatio)
	}
	return r, nil
}

// Reduce returns the ratio in lowest terms with a positive denominator.
func (r Ratio) Reduce() Ratio {
	if r.Den == 0 {
		return r
	}
	if r.Den < 0 {
		r.Num, r.Den = -r.Num, -r.Den
	}
	a, b := r.Num, r.Den
	if a < 0 {
		a = -a
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a > 1 {
		r.Num /= a
		r.Den /= a
	}
	return r
}

// Valid tells if the ratio is one of the SupportedRatios.
func (r Ratio) Valid() bool {
	r = r.Reduce()
	for _, s := range SupportedRatios {
		if s == r {
			return true
		}
	}
	return false
}

func (r Ratio) IsNeutral() bool { return r.Num == r.Den && r.Den != 0 }

func (r Ratio) Float() float64 {
	if r.Den == 0 {
		return 1
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Ratio) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

func (r Ratio) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Ratio) UnmarshalText(text []byte) error {
	parsed, err := ParseRatio(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// NewID returns a fresh random identifier for markers, notes, stamps and
// triplets.
func NewID() uuid.UUID { return uuid.New() }
