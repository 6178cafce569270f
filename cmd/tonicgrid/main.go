package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vsariola/tonicgrid"
	"github.com/vsariola/tonicgrid/config"
	"github.com/vsariola/tonicgrid/version"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
	log        = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "tonicgrid",
	Short: "Time map, scheduling and playback of grid scores",
	Long: `tonicgrid works on scores laid out on a rhythmic grid: macrobeats of
microbeat columns, tonic markers and modulation markers. It can list the
time map of a score, the events it schedules, export them as a MIDI file
and play the score with a moving playhead.`,
	Version:       version.VersionOrHash,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("could not load .env: %w", err)
		}
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		log.SetOutput(os.Stderr)
		log.SetLevel(cfg.Level())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"YAML configuration file (TONICGRID_* environment variables override it)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "",
		"Log level: panic, fatal, error, warn, info, debug or trace")
	rootCmd.AddCommand(timemapCmd, planCmd, exportCmd, playCmd, midiPortsCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.VersionOrHash)
	},
}

func loadScore(path string) (tonicgrid.Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tonicgrid.Score{}, fmt.Errorf("could not read score: %w", err)
	}
	score, err := tonicgrid.LoadScore(data)
	if err != nil {
		return tonicgrid.Score{}, fmt.Errorf("%v: %w", path, err)
	}
	return score, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
