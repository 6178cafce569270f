package grid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vsariola/tonicgrid"
	"github.com/vsariola/tonicgrid/grid"
)

func TestPixelCache(t *testing.T) {
	var cache grid.PixelCache
	cm := grid.BuildColumnMap([]int{2, 2}, []tonicgrid.BoundaryStyle{solid}, nil)
	cfg := tonicgrid.DefaultLayout
	markers := []tonicgrid.ModulationMarker{marker(1, 2, 3)}

	first := cache.Get(cm, cfg, markers)
	assert.Same(t, first, cache.Get(cm, cfg, markers))
	assert.Same(t, first, cache.Get(grid.BuildColumnMap([]int{2, 2}, []tonicgrid.BoundaryStyle{solid}, nil), cfg, markers), "structurally equal column map")
	assert.Equal(t, 1, cache.Builds())

	cfg.Zoom = 2
	zoomed := cache.Get(cm, cfg, markers)
	assert.NotSame(t, first, zoomed)
	assert.Equal(t, 2, cache.Builds())

	markers[0].Active = false
	assert.NotSame(t, zoomed, cache.Get(cm, cfg, markers))
	assert.Equal(t, 3, cache.Builds())

	cache.Invalidate()
	cache.Get(cm, cfg, markers)
	assert.Equal(t, 4, cache.Builds())
}

func TestMemo(t *testing.T) {
	var m grid.Memo[string, int]
	calls := 0
	build := func() int { calls++; return calls }
	assert.Equal(t, 1, m.Get("a", build))
	assert.Equal(t, 1, m.Get("a", build))
	assert.Equal(t, 2, m.Get("b", build))
	m.Invalidate()
	assert.Equal(t, 3, m.Get("b", build))
	assert.Equal(t, 3, m.Builds())
}

func TestFingerprints(t *testing.T) {
	assert.Equal(t, grid.WidthsFingerprint([]float64{1, 1, 2}), grid.WidthsFingerprint([]float64{1, 1, 2}))
	assert.NotEqual(t, grid.WidthsFingerprint([]float64{1, 1, 2}), grid.WidthsFingerprint([]float64{1, 2, 1}))
	m := marker(1, 2, 3)
	other := m
	other.Ratio = tonicgrid.Ratio{Num: 3, Den: 4}
	assert.NotEqual(t, grid.MarkersFingerprint([]tonicgrid.ModulationMarker{m}), grid.MarkersFingerprint([]tonicgrid.ModulationMarker{other}))
}
