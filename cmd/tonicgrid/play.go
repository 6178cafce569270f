package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vsariola/tonicgrid/engine"
	"github.com/vsariola/tonicgrid/midiout"
	"github.com/vsariola/tonicgrid/oto"
	"github.com/vsariola/tonicgrid/playhead"
	"github.com/vsariola/tonicgrid/transport"
)

var (
	playFrom     float64
	playLoop     bool
	playNoAudio  bool
	playDuration time.Duration
	playMIDIOut  string
)

var playCmd = &cobra.Command{
	Use:   "play score.yml",
	Short: "Play a score and show the playhead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := loadScore(args[0])
		if err != nil {
			return err
		}
		blips := oto.NewBlips(cfg.SampleRate)
		sink := transport.Sinks{
			transport.SinkFunc(func(ev transport.Event) {
				log.WithFields(logrus.Fields{"kind": ev.Kind.String(), "voice": ev.Voice, "row": ev.Row, "time": ev.Time}).Debug("event")
			}),
			blips,
		}
		if playMIDIOut != "" {
			port, err := midiout.Open(playMIDIOut)
			if err != nil {
				return err
			}
			defer port.Close()
			out := midiout.NewSink(port, cfg.BaseKey, 0, log)
			defer out.Silence()
			sink = append(sink, out)
		}
		e := engine.New(score, engine.WithLogger(log), engine.WithSink(sink))
		e.SetLooping(playLoop || cfg.Loop)

		var clock transport.Clock
		if !(playNoAudio || cfg.NoAudio) {
			c, err := oto.NewClock(e.Transport(), cfg.SampleRate, cfg.BufferSize)
			if err != nil {
				log.WithError(err).Warn("no audio device, following the wall clock")
			} else {
				defer c.Close()
				c.SetRenderer(blips)
				clock = c
			}
		}
		if clock == nil {
			clock = &transport.TickerClock{Transport: e.Transport(), Interval: cfg.TickInterval}
		}
		e.Transport().SetClock(clock)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()
		if playDuration > 0 {
			ctx, cancel = context.WithTimeout(ctx, playDuration)
			defer cancel()
		}
		if err := e.Play(playFrom); err != nil {
			return err
		}
		defer e.Stop()

		frames := playhead.NewFrameTicker(cfg.FPS)
		defer frames.Close()
		done := make(chan struct{})
		loop := playhead.Loop{
			Ticker: e,
			Frames: frames,
			Render: func(f playhead.Frame) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\r%8.3f s  column %7.2f  x %8.1f px  tempo %6.1f", f.Time, f.Column, f.X, f.DisplayTempo)
			},
		}
		loop.Run(ctx, func() { close(done) })
		<-done
		fmt.Fprintln(cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	playCmd.Flags().Float64Var(&playFrom, "from", 0, "Start time in seconds")
	playCmd.Flags().BoolVar(&playLoop, "loop", false, "Loop from the loop start to the end")
	playCmd.Flags().BoolVar(&playNoAudio, "no-audio", false, "Follow the wall clock instead of the audio device")
	playCmd.Flags().DurationVar(&playDuration, "duration", 0, "Stop after this long; 0 plays until the end or ctrl-c")
	playCmd.Flags().StringVar(&playMIDIOut, "midi-out", "", "Also send the events to the MIDI output whose name contains this")
}

var midiPortsCmd = &cobra.Command{
	Use:   "midi-ports",
	Short: "List the MIDI output ports usable with play --midi-out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := midiout.Outputs()
		if err != nil {
			return err
		}
		for i, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, name)
		}
		return nil
	},
}
