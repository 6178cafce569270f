package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vsariola/tonicgrid/midifile"
	"github.com/vsariola/tonicgrid/transport"
)

var (
	exportOut     string
	exportRepeats int
)

var exportCmd = &cobra.Command{
	Use:   "export score.yml",
	Short: "Export the scheduled events of a score as a standard MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := loadScore(args[0])
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			_, name := filepath.Split(args[0])
			out = strings.TrimSuffix(name, filepath.Ext(name)) + ".mid"
		}
		repeats := cfg.Repeats
		if cmd.Flags().Changed("repeats") {
			repeats = exportRepeats
		}
		plan := transport.BuildPlan(&score, log)
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("could not create %v: %w", out, err)
		}
		defer f.Close()
		n, err := midifile.Export(f, plan, score.Tempo, midifile.Options{
			TicksPerQuarter: uint16(cfg.TicksPerQuarter),
			BaseKey:         cfg.BaseKey,
			Repeats:         repeats,
		})
		if err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("could not write %v: %w", out, err)
		}
		log.WithFields(logrus.Fields{"file": out, "bytes": n, "events": len(plan.Events), "dropped": plan.Dropped}).Info("exported")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Output file; defaults to the score name with a .mid extension")
	exportCmd.Flags().IntVarP(&exportRepeats, "repeats", "r", 0, "Extra loop passes appended after the score")
}
