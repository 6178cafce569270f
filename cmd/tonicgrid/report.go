package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vsariola/tonicgrid/report"
	"github.com/vsariola/tonicgrid/transport"
)

var (
	planFormat   string
	planFrom     float64
	templatesDir string
)

var timemapCmd = &cobra.Command{
	Use:   "timemap score.yml",
	Short: "List the canvas columns of a score with their times and pixels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd, args[0], "timemap.txt.tmpl", false)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan score.yml",
	Short: "List the events scheduled for a score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "plan.txt.tmpl"
		switch planFormat {
		case "text":
		case "csv":
			name = "plan.csv.tmpl"
		default:
			return fmt.Errorf("unknown format %q, use text or csv", planFormat)
		}
		return runReport(cmd, args[0], name, true)
	},
}

func init() {
	for _, c := range []*cobra.Command{timemapCmd, planCmd} {
		c.Flags().StringVar(&templatesDir, "templates", "", "Directory of custom *.tmpl report templates")
	}
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "text", "Output format: text or csv")
	planCmd.Flags().Float64Var(&planFrom, "from", 0, "Playback start time in seconds; pickups are left out when past the loop start")
}

func runReport(cmd *cobra.Command, path, name string, filterPickups bool) error {
	score, err := loadScore(path)
	if err != nil {
		return err
	}
	r, err := newReporter()
	if err != nil {
		return err
	}
	plan := transport.BuildPlan(&score, log)
	if filterPickups {
		plan = plan.From(planFrom, 0)
	}
	out, err := r.Render(name, report.Collect(score, plan))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func newReporter() (*report.Reporter, error) {
	if templatesDir != "" {
		return report.NewFromTemplates(templatesDir)
	}
	return report.New()
}
