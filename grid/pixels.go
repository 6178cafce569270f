package grid

import (
	"math"
	"slices"
	"sort"

	"github.com/viterin/vek"
	"github.com/vsariola/tonicgrid"
	"github.com/vsariola/tonicgrid/modulation"
)

// PixelMap converts between fractional canvas column indices and screen pixel
// x coordinates. Without active modulation markers the mapping is the prefix
// sum of the column widths times CellWidth·Zoom; with markers it is segment
// wise linear through a modulation.Mapping. A PixelMap is immutable.
type PixelMap struct {
	cfg     tonicgrid.LayoutConfig
	widths  []float64 // musical columns followed by the right margin columns
	prefix  []float64 // len(widths)+1 entries
	scale   float64
	mapping *modulation.Mapping
	markers []tonicgrid.ModulationMarker
}

// NewPixelMap builds the pixel map of the column map. The marker pixel
// positions are derived from their anchor boundaries with
// ResolveMarkerPixels; the PixelPosition fields of the given markers are
// ignored.
func NewPixelMap(cm *ColumnMap, cfg tonicgrid.LayoutConfig, markers []tonicgrid.ModulationMarker) *PixelMap {
	if cfg.CellWidth <= 0 {
		cfg.CellWidth = tonicgrid.DefaultCellWidth
	}
	if cfg.Zoom <= 0 {
		cfg.Zoom = 1
	}
	widths := cm.Widths()
	for i := 0; i < cfg.RightMarginColumns; i++ {
		widths = append(widths, tonicgrid.BeatColumnWidth)
	}
	p := &PixelMap{
		cfg:    cfg,
		widths: widths,
		prefix: make([]float64, 1, len(widths)+1),
		scale:  cfg.CellWidth * cfg.Zoom,
	}
	if len(widths) > 0 {
		p.prefix = append(p.prefix, vek.CumSum(widths)...)
	}
	p.markers = ResolveMarkerPixels(markers, cm, p.scale)
	p.mapping = modulation.NewMapping(p.markers, p.scale)
	return p
}

// ResolveMarkerPixels returns the markers that are anchored at solid
// boundaries, with PixelPosition computed from the anchor. Pixel positions
// are content pixels: the left margin and the scroll offset are not included.
// Markers anchored elsewhere are dropped. The result is sorted by pixel
// position.
func ResolveMarkerPixels(markers []tonicgrid.ModulationMarker, cm *ColumnMap, baseUnitPx float64) []tonicgrid.ModulationMarker {
	widths := cm.Widths()
	prefix := make([]float64, 1, len(widths)+1)
	if len(widths) > 0 {
		prefix = append(prefix, vek.CumSum(widths)...)
	}
	type anchored struct {
		marker tonicgrid.ModulationMarker
		units  float64
	}
	var valid []anchored
	for _, m := range markers {
		if style, ok := cm.BoundaryStyle(m.AnchorBoundary); !ok || style != tonicgrid.Solid {
			continue
		}
		c, _ := cm.BoundaryColumn(m.AnchorBoundary)
		valid = append(valid, anchored{marker: m, units: prefix[c]})
	}
	slices.SortStableFunc(valid, func(a, b anchored) int {
		switch {
		case a.units < b.units:
			return -1
		case a.units > b.units:
			return 1
		}
		return 0
	})
	ret := make([]tonicgrid.ModulationMarker, len(valid))
	pixel, units, scale := 0.0, 0.0, baseUnitPx
	for i, a := range valid {
		pixel += (a.units - units) * scale
		units = a.units
		a.marker.PixelPosition = pixel
		if a.marker.Active && a.marker.Ratio.Valid() && !a.marker.Ratio.IsNeutral() {
			scale *= a.marker.Ratio.Float()
		}
		ret[i] = a.marker
	}
	return ret
}

// Config returns the layout configuration the map was built with.
func (p *PixelMap) Config() tonicgrid.LayoutConfig { return p.cfg }

// Mapping returns the modulation mapping used for the content pixels.
func (p *PixelMap) Mapping() *modulation.Mapping { return p.mapping }

// Markers returns the markers with their resolved pixel positions.
func (p *PixelMap) Markers() []tonicgrid.ModulationMarker { return slices.Clone(p.markers) }

// Scale returns the unmodulated pixels per column width unit.
func (p *PixelMap) Scale() float64 { return p.scale }

// NumColumns returns the number of columns on the canvas, including the right
// margin columns.
func (p *PixelMap) NumColumns() int { return len(p.widths) }

// ColumnToPixelX returns the screen x coordinate of the fractional canvas
// column c.
func (p *PixelMap) ColumnToPixelX(c float64) float64 {
	return p.cfg.LeftMargin + p.mapping.TimeToPixel(p.ColumnToUnits(c)) - p.cfg.ScrollX
}

// PixelXToColumn returns the fractional canvas column at the screen x
// coordinate. It is the inverse of ColumnToPixelX.
func (p *PixelMap) PixelXToColumn(x float64) float64 {
	return p.UnitsToColumn(p.mapping.PixelToTime(x - p.cfg.LeftMargin + p.cfg.ScrollX))
}

// ColumnAtPixelX returns the canvas index of the column under the screen x
// coordinate; ok is false outside the canvas.
func (p *PixelMap) ColumnAtPixelX(x float64) (int, bool) {
	c := math.Floor(p.PixelXToColumn(x))
	if c < 0 || int(c) >= len(p.widths) {
		return 0, false
	}
	return int(c), true
}

// UnmodulatedX returns the screen x coordinate of the fractional canvas
// column c as if no modulation markers existed. The playhead moves in this
// space so its speed follows the true tempo.
func (p *PixelMap) UnmodulatedX(c float64) float64 {
	return p.cfg.LeftMargin + p.ColumnToUnits(c)*p.scale - p.cfg.ScrollX
}

// UnitsToUnmodulatedX returns the screen x coordinate of a position given in
// column width units, ignoring the modulation markers.
func (p *PixelMap) UnitsToUnmodulatedX(u float64) float64 {
	return p.cfg.LeftMargin + u*p.scale - p.cfg.ScrollX
}

// ColumnToUnits converts a fractional canvas column to column width units.
// Positions outside the canvas extrapolate with unit width columns.
func (p *PixelMap) ColumnToUnits(c float64) float64 {
	n := len(p.widths)
	switch {
	case c <= 0:
		return c * tonicgrid.BeatColumnWidth
	case c >= float64(n):
		return p.prefix[n] + (c-float64(n))*tonicgrid.BeatColumnWidth
	}
	i := int(c)
	return p.prefix[i] + (c-float64(i))*p.widths[i]
}

// UnitsToColumn is the inverse of ColumnToUnits.
func (p *PixelMap) UnitsToColumn(u float64) float64 {
	n := len(p.widths)
	switch {
	case u <= 0:
		return u / tonicgrid.BeatColumnWidth
	case u >= p.prefix[n]:
		return float64(n) + (u-p.prefix[n])/tonicgrid.BeatColumnWidth
	}
	i := sort.Search(n+1, func(i int) bool { return p.prefix[i] > u }) - 1
	if p.widths[i] <= 0 {
		return float64(i)
	}
	return float64(i) + (u-p.prefix[i])/p.widths[i]
}
