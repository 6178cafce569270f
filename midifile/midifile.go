// Package midifile renders a scheduling plan to a standard MIDI file.
package midifile

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/vsariola/tonicgrid/transport"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

type (
	// Options controls the export.
	Options struct {
		TicksPerQuarter uint16 // 960 if zero
		Velocity        uint8  // 100 if zero
		BaseKey         int    // MIDI key of row 0 of melodic voices; 72 if zero
		// Repeats is the number of extra loop passes appended after the
		// score, each repeating the events inside the loop window.
		Repeats int
	}

	// Channels hands out MIDI channels to voices in the order they are
	// first seen. Percussive voices share the General MIDI drum channel; the
	// other voices get channels of their own, skipping the drum channel and
	// wrapping after 16.
	Channels struct {
		assigned map[string]uint8
		next     uint8
	}

	timedMessage struct {
		tick uint32
		msg  midi.Message
		off  bool
	}
)

const (
	DrumChannel        = 9
	defaultTicks       = 960
	defaultVelocity    = 100
	defaultBaseKey     = 72
	defaultDrumKey     = 37
	minPercussionTicks = 1
)

// drumKeys maps drum voice names to General MIDI percussion keys.
var drumKeys = map[string]uint8{
	"kick":    36,
	"bd":      36,
	"rim":     37,
	"snare":   38,
	"sd":      38,
	"clap":    39,
	"hat":     42,
	"hihat":   42,
	"hh":      42,
	"openhh":  46,
	"tom":     45,
	"crash":   49,
	"ride":    51,
	"cowbell": 56,
	"shaker":  70,
}

// DrumKey returns the General MIDI key used for a percussion voice.
func DrumKey(voice string) uint8 {
	if k, ok := drumKeys[strings.ToLower(voice)]; ok {
		return k
	}
	return defaultDrumKey
}

// Of returns the channel of the voice, assigning one on first use.
func (c *Channels) Of(voice string, percussive bool) uint8 {
	if percussive {
		return DrumChannel
	}
	if ch, ok := c.assigned[voice]; ok {
		return ch
	}
	if c.assigned == nil {
		c.assigned = map[string]uint8{}
	}
	if c.next%16 == DrumChannel {
		c.next++
	}
	ch := c.next % 16
	c.assigned[voice] = ch
	c.next++
	return ch
}

// RowKey returns the MIDI key of a melodic row: row 0 is baseKey, each row
// below is one semitone lower. The key is clamped to the MIDI range.
func RowKey(row, baseKey int) uint8 {
	return uint8(min(max(baseKey-row, 0), 127))
}

// Build converts the plan to a standard MIDI file. Track 0 carries the tempo
// and the meter; every voice gets its own track. Percussive voices play on
// the General MIDI drum channel, melodic voices on their own channels.
func Build(plan transport.Plan, tempo float64, opts Options) (*smf.SMF, error) {
	if tempo <= 0 {
		return nil, fmt.Errorf("cannot export with tempo %v", tempo)
	}
	if opts.TicksPerQuarter == 0 {
		opts.TicksPerQuarter = defaultTicks
	}
	if opts.Velocity == 0 {
		opts.Velocity = defaultVelocity
	}
	if opts.BaseKey == 0 {
		opts.BaseKey = defaultBaseKey
	}
	ticksPerSecond := float64(opts.TicksPerQuarter) * tempo / 60
	toTicks := func(t float64) uint32 { return uint32(math.Round(max(t, 0) * ticksPerSecond)) }

	events := repeatLoop(plan, opts.Repeats)
	voices := map[string][]timedMessage{}
	percussive := map[string]bool{}
	var names []string
	for _, ev := range events {
		if _, ok := voices[ev.Voice]; !ok {
			names = append(names, ev.Voice)
			voices[ev.Voice] = nil
		}
		if ev.Kind.Percussive() {
			percussive[ev.Voice] = true
		}
	}
	slices.Sort(names)
	var channels Channels
	for _, name := range names {
		channels.Of(name, percussive[name])
	}
	for _, ev := range events {
		ch := channels.Of(ev.Voice, percussive[ev.Voice])
		start := toTicks(ev.Time)
		switch {
		case ev.Kind == transport.NoteAttack:
			key := RowKey(ev.Row, opts.BaseKey)
			voices[ev.Voice] = append(voices[ev.Voice], timedMessage{tick: start, msg: midi.NoteOn(ch, key, opts.Velocity)})
		case ev.Kind == transport.NoteRelease:
			key := RowKey(ev.Row, opts.BaseKey)
			voices[ev.Voice] = append(voices[ev.Voice], timedMessage{tick: start, msg: midi.NoteOff(ch, key), off: true})
		case ev.Kind.Percussive():
			key := RowKey(ev.Row, opts.BaseKey)
			if ch == DrumChannel {
				key = DrumKey(ev.Voice)
			}
			end := max(toTicks(ev.Time+ev.Duration/2), start+minPercussionTicks)
			voices[ev.Voice] = append(voices[ev.Voice],
				timedMessage{tick: start, msg: midi.NoteOn(ch, key, opts.Velocity)},
				timedMessage{tick: end, msg: midi.NoteOff(ch, key), off: true})
		}
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(opts.TicksPerQuarter)
	var track0 smf.Track
	track0.Add(0, smf.MetaMeter(4, 4))
	track0.Add(0, smf.MetaTempo(tempo))
	track0.Close(0)
	if err := s.Add(track0); err != nil {
		return nil, fmt.Errorf("error adding tempo track: %w", err)
	}
	for _, name := range names {
		msgs := voices[name]
		// releases before attacks at the same tick, so repeated notes retrigger
		slices.SortStableFunc(msgs, func(a, b timedMessage) int {
			if c := cmp.Compare(a.tick, b.tick); c != 0 {
				return c
			}
			switch {
			case a.off && !b.off:
				return -1
			case !a.off && b.off:
				return 1
			}
			return 0
		})
		var track smf.Track
		track.Add(0, smf.MetaTrackSequenceName(name))
		last := uint32(0)
		for _, m := range msgs {
			track.Add(m.tick-last, m.msg)
			last = m.tick
		}
		track.Close(0)
		if err := s.Add(track); err != nil {
			return nil, fmt.Errorf("error adding track %q: %w", name, err)
		}
	}
	return s, nil
}

// Export writes the plan as a standard MIDI file to w.
func Export(w io.Writer, plan transport.Plan, tempo float64, opts Options) (int64, error) {
	s, err := Build(plan, tempo, opts)
	if err != nil {
		return 0, err
	}
	n, err := s.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("error writing MIDI file: %w", err)
	}
	return n, nil
}

// repeatLoop returns the plan events followed by repeats copies of the events
// inside the loop window, pass k shifted by k loop lengths. A release at the
// loop end is kept when its attack is inside the window.
func repeatLoop(plan transport.Plan, repeats int) []transport.Event {
	ret := slices.Clone(plan.Events)
	length := plan.Loop.Length()
	if repeats <= 0 || length <= 0 {
		return ret
	}
	var pass []transport.Event
	attacked := map[uuid.UUID]bool{}
	for _, ev := range plan.Events {
		switch {
		case ev.Kind == transport.NoteRelease:
			if attacked[ev.Source] && ev.Time <= plan.Loop.End {
				pass = append(pass, ev)
			}
		case ev.Time >= plan.Loop.Start && ev.Time < plan.Loop.End:
			attacked[ev.Source] = true
			pass = append(pass, ev)
		}
	}
	for k := 1; k <= repeats; k++ {
		for _, ev := range pass {
			ev.Time += float64(k) * length
			ret = append(ret, ev)
		}
	}
	return ret
}
