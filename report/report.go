// Package report renders human readable listings of a score's time map and
// scheduling plan from text templates.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/vsariola/tonicgrid"
	"github.com/vsariola/tonicgrid/grid"
	"github.com/vsariola/tonicgrid/timemap"
	"github.com/vsariola/tonicgrid/transport"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type (
	Reporter struct {
		Template *template.Template
	}

	// Data is what the templates are executed with.
	Data struct {
		Score     tonicgrid.Score
		Columns   []ColumnRow
		Loop      timemap.Loop
		Plan      transport.Plan
		Microbeat float64 // seconds
		Length    float64 // seconds
	}

	// ColumnRow is one canvas column with its timing and pixel position.
	ColumnRow struct {
		grid.Column
		Start    float64 // seconds
		Duration float64 // seconds
		X        float64 // modulated screen pixel of the column start
	}
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// New returns a reporter using the built in templates.
func New() (*Reporter, error) {
	tmpl, err := template.New("base").Funcs(funcMap()).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf(`could not create templates: %v`, err)
	}
	return &Reporter{Template: tmpl}, nil
}

// NewFromTemplates returns a reporter using the templates in a directory.
func NewFromTemplates(templateDirectory string) (*Reporter, error) {
	globPtrn := filepath.Join(templateDirectory, "*.tmpl")
	tmpl, err := template.New("base").Funcs(funcMap()).ParseGlob(globPtrn)
	if err != nil {
		return nil, fmt.Errorf(`could not create templates based on directory "%v": %v`, templateDirectory, err)
	}
	return &Reporter{Template: tmpl}, nil
}

// Collect computes everything the templates show for a score.
func Collect(score tonicgrid.Score, plan transport.Plan) Data {
	cm := grid.FromScore(&score)
	tm := plan.TimeMap
	if len(tm) != cm.Len()+1 {
		tm = timemap.Build(score.Tempo, cm.Columns())
	}
	pm := grid.NewPixelMap(cm, score.Layout, score.ModulationMarkers)
	d := Data{
		Score:     score,
		Loop:      plan.Loop,
		Plan:      plan,
		Microbeat: timemap.MicrobeatDuration(score.Tempo),
		Length:    tm.End(),
	}
	for _, c := range cm.Columns() {
		d.Columns = append(d.Columns, ColumnRow{
			Column:   c,
			Start:    tm[c.Index],
			Duration: tm[c.Index+1] - tm[c.Index],
			X:        pm.ColumnToPixelX(float64(c.Index)),
		})
	}
	return d
}

// Render executes the named template, e.g. "timemap.txt.tmpl".
func (r *Reporter) Render(name string, data Data) (string, error) {
	var buf bytes.Buffer
	if err := r.Template.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf(`could not execute template "%v": %v`, name, err)
	}
	return buf.String(), nil
}

func funcMap() template.FuncMap {
	printer := message.NewPrinter(language.English)
	title := cases.Title(language.English)
	fm := sprig.TxtFuncMap()
	fm["ms"] = func(seconds float64) string { return printer.Sprintf("%.1f ms", seconds*1000) }
	fm["sec"] = func(seconds float64) string { return printer.Sprintf("%.3f s", seconds) }
	fm["px"] = func(x float64) string { return printer.Sprintf("%.1f px", x) }
	fm["count"] = func(n int) string { return printer.Sprintf("%d", n) }
	fm["title"] = func(s fmt.Stringer) string { return title.String(s.String()) }
	return fm
}
