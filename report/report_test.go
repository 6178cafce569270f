package report_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/tonicgrid"
	"github.com/vsariola/tonicgrid/report"
	"github.com/vsariola/tonicgrid/transport"
)

func testData(t *testing.T) report.Data {
	t.Helper()
	s := tonicgrid.Score{
		Tempo:     120,
		Groupings: []int{2, 2},
		Notes: []tonicgrid.Note{
			{ID: tonicgrid.NewID(), Row: 1, StartColumn: 1, EndColumn: 2, Voice: "green"},
		},
		Layout: tonicgrid.DefaultLayout,
	}
	logger, _ := logtest.NewNullLogger()
	return report.Collect(s, transport.BuildPlan(&s, logger))
}

func TestCollect(t *testing.T) {
	d := testData(t)
	require.Len(t, d.Columns, 4)
	assert.InDelta(t, 0.25, d.Microbeat, 1e-12)
	assert.InDelta(t, 1, d.Length, 1e-12)
	assert.InDelta(t, 0.5, d.Columns[2].Start, 1e-12)
	assert.InDelta(t, 0.25, d.Columns[2].Duration, 1e-12)
	assert.InDelta(t, 80, d.Columns[2].X, 1e-9)
	assert.Equal(t, 1, d.Columns[2].Macrobeat)
}

func TestRenderTimeMap(t *testing.T) {
	r, err := report.New()
	require.NoError(t, err)
	out, err := r.Render("timemap.txt.tmpl", testData(t))
	require.NoError(t, err)
	assert.Contains(t, out, "tempo 120 bpm, microbeat 250.0 ms, length 1.000 s")
	assert.Contains(t, out, "loop 0.000 s .. 1.000 s")
	assert.Contains(t, out, "80.0 px")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3+4)
}

func TestRenderPlan(t *testing.T) {
	r, err := report.New()
	require.NoError(t, err)
	out, err := r.Render("plan.txt.tmpl", testData(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2 events", lines[0])
	assert.Contains(t, lines[1], "0.250 s")
	assert.Contains(t, lines[1], "voice=green row=1")
	assert.Contains(t, lines[2], "0.750 s")
}

func TestRenderCSV(t *testing.T) {
	r, err := report.New()
	require.NoError(t, err)
	out, err := r.Render("plan.csv.tmpl", testData(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "time,kind,voice,row,duration,pickup,source", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `0.25,note-attack,"green",1,0.5,false,`), lines[1])
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := report.New()
	require.NoError(t, err)
	_, err = r.Render("missing.tmpl", testData(t))
	assert.Error(t, err)
}

func TestNewFromTemplates(t *testing.T) {
	dir := t.TempDir()
	tmpl := `{{len .Columns}} columns at {{.Score.Tempo | int}} bpm, {{range .Plan.Events}}{{title .Kind}} {{end}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.tmpl"), []byte(tmpl), 0o644))
	r, err := report.NewFromTemplates(dir)
	require.NoError(t, err)
	out, err := r.Render("short.tmpl", testData(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "4 columns at 120 bpm, Note"), out)

	_, err = report.NewFromTemplates(filepath.Join(dir, "nothing-here"))
	assert.Error(t, err)
}
