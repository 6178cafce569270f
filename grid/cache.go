package grid

import (
	"encoding/binary"
	"hash/maphash"
	"math"

	"github.com/vsariola/tonicgrid"
)

type (
	// Memo remembers the last value built for a key. Get rebuilds only when
	// the key differs from the remembered one or after Invalidate.
	Memo[K comparable, V any] struct {
		key    K
		value  V
		valid  bool
		builds int
	}

	// PixelKey is the structural key of a PixelMap: everything that changes
	// its output.
	PixelKey struct {
		Markers            uint64
		Widths             uint64
		CellWidth          float64
		Zoom               float64
		ScrollX            float64
		LeftMargin         float64
		RightMarginColumns int
	}

	// PixelCache memoizes the PixelMap of a column map, layout and marker
	// list.
	PixelCache struct {
		memo Memo[PixelKey, *PixelMap]
	}
)

var fingerprintSeed = maphash.MakeSeed()

// Get returns the remembered value if key matches, otherwise builds, remembers
// and returns a new value.
func (m *Memo[K, V]) Get(key K, build func() V) V {
	if m.valid && m.key == key {
		return m.value
	}
	m.key = key
	m.value = build()
	m.valid = true
	m.builds++
	return m.value
}

// Invalidate forgets the remembered value.
func (m *Memo[K, V]) Invalidate() {
	var zero V
	m.value = zero
	m.valid = false
}

// Builds returns how many times a value has been built.
func (m *Memo[K, V]) Builds() int { return m.builds }

// Get returns the PixelMap for the given column map, layout and markers,
// rebuilding it only when one of them changed structurally.
func (c *PixelCache) Get(cm *ColumnMap, cfg tonicgrid.LayoutConfig, markers []tonicgrid.ModulationMarker) *PixelMap {
	key := PixelKey{
		Markers:            MarkersFingerprint(markers),
		Widths:             WidthsFingerprint(cm.Widths()),
		CellWidth:          cfg.CellWidth,
		Zoom:               cfg.Zoom,
		ScrollX:            cfg.ScrollX,
		LeftMargin:         cfg.LeftMargin,
		RightMarginColumns: cfg.RightMarginColumns,
	}
	return c.memo.Get(key, func() *PixelMap { return NewPixelMap(cm, cfg, markers) })
}

// Invalidate drops the cached PixelMap.
func (c *PixelCache) Invalidate() { c.memo.Invalidate() }

// Builds returns how many PixelMaps the cache has built.
func (c *PixelCache) Builds() int { return c.memo.Builds() }

// WidthsFingerprint hashes a list of column widths.
func WidthsFingerprint(widths []float64) uint64 {
	var h maphash.Hash
	h.SetSeed(fingerprintSeed)
	var buf [8]byte
	for _, w := range widths {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(w))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// MarkersFingerprint hashes the fields of the markers that affect the pixel
// mapping.
func MarkersFingerprint(markers []tonicgrid.ModulationMarker) uint64 {
	var h maphash.Hash
	h.SetSeed(fingerprintSeed)
	var buf [8]byte
	for _, m := range markers {
		h.Write(m.ID[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(m.AnchorBoundary)))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(m.Ratio.Num))<<32|uint64(uint32(m.Ratio.Den)))
		h.Write(buf[:])
		if m.Active {
			h.WriteByte(1)
		} else {
			h.WriteByte(0)
		}
	}
	return h.Sum64()
}
