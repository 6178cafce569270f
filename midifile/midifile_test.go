package midifile_test

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/tonicgrid/midifile"
	"github.com/vsariola/tonicgrid/timemap"
	"github.com/vsariola/tonicgrid/transport"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

type note struct {
	tick    uint32
	channel uint8
	key     uint8
	on      bool
}

func testPlan() transport.Plan {
	id := uuid.New()
	return transport.Plan{
		Events: []transport.Event{
			{Kind: transport.NoteAttack, Time: 0, Duration: 0.5, Voice: "blue", Row: 0, Source: id},
			{Kind: transport.DrumHit, Time: 0.25, Duration: 0.25, Voice: "kick", Source: uuid.New()},
			{Kind: transport.NoteRelease, Time: 0.5, Voice: "blue", Row: 0, Source: id},
		},
		Loop: timemap.Loop{Start: 0, End: 1},
	}
}

func readBack(t *testing.T, plan transport.Plan, opts midifile.Options) (*smf.SMF, [][]note) {
	t.Helper()
	var buf bytes.Buffer
	n, err := midifile.Export(&buf, plan, 120, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	tracks := make([][]note, len(s.Tracks))
	for i, track := range s.Tracks {
		var tick uint32
		for _, ev := range track {
			tick += ev.Delta
			var ch, key, vel uint8
			msg := midi.Message(ev.Message)
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				tracks[i] = append(tracks[i], note{tick, ch, key, true})
			case msg.GetNoteEnd(&ch, &key):
				tracks[i] = append(tracks[i], note{tick, ch, key, false})
			}
		}
	}
	return s, tracks
}

func TestExport(t *testing.T) {
	s, tracks := readBack(t, testPlan(), midifile.Options{})
	require.Equal(t, 3, s.NumTracks())
	tempos := s.TempoChanges()
	require.NotEmpty(t, tempos)
	assert.InDelta(t, 120, tempos[0].BPM, 1e-6)
	assert.Empty(t, tracks[0], "track 0 carries only meta events")
	// 960 ticks per quarter at 120 bpm is 1920 ticks per second
	assert.Equal(t, []note{{0, 0, 72, true}, {960, 0, 72, false}}, tracks[1])
	assert.Equal(t, []note{{480, 9, 36, true}, {720, 9, 36, false}}, tracks[2])
}

func TestExportRepeatsTheLoop(t *testing.T) {
	_, tracks := readBack(t, testPlan(), midifile.Options{TicksPerQuarter: 96, BaseKey: 60, Repeats: 2})
	var starts []uint32
	for _, n := range tracks[1] {
		if n.on {
			starts = append(starts, n.tick)
			assert.Equal(t, uint8(60), n.key)
		}
	}
	assert.Equal(t, []uint32{0, 192, 384}, starts)
}

func TestRetriggerOrder(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	plan := transport.Plan{Events: []transport.Event{
		{Kind: transport.NoteAttack, Time: 0, Voice: "red", Row: 3, Source: id1},
		{Kind: transport.NoteAttack, Time: 0.5, Voice: "red", Row: 3, Source: id2},
		{Kind: transport.NoteRelease, Time: 0.5, Voice: "red", Row: 3, Source: id1},
		{Kind: transport.NoteRelease, Time: 1, Voice: "red", Row: 3, Source: id2},
	}}
	_, tracks := readBack(t, plan, midifile.Options{})
	require.Len(t, tracks[1], 4)
	assert.False(t, tracks[1][1].on, "release before attack at the same tick")
	assert.True(t, tracks[1][2].on)
	assert.Equal(t, tracks[1][1].tick, tracks[1][2].tick)
}

func TestMelodicChannelsSkipDrums(t *testing.T) {
	var events []transport.Event
	for _, v := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		events = append(events, transport.Event{Kind: transport.NoteAttack, Voice: v, Source: uuid.New()})
	}
	_, tracks := readBack(t, transport.Plan{Events: events}, midifile.Options{})
	require.Len(t, tracks, 11)
	assert.Equal(t, uint8(8), tracks[9][0].channel)
	assert.Equal(t, uint8(10), tracks[10][0].channel)
}

func TestBuildRejectsTempo(t *testing.T) {
	_, err := midifile.Build(testPlan(), 0, midifile.Options{})
	assert.Error(t, err)
}

func TestDrumKey(t *testing.T) {
	assert.Equal(t, uint8(36), midifile.DrumKey("Kick"))
	assert.Equal(t, uint8(42), midifile.DrumKey("hh"))
	assert.Equal(t, uint8(37), midifile.DrumKey("tabla"))
}

func TestRowKey(t *testing.T) {
	assert.Equal(t, uint8(72), midifile.RowKey(0, 72))
	assert.Equal(t, uint8(60), midifile.RowKey(12, 72))
	assert.Equal(t, uint8(0), midifile.RowKey(100, 72))
	assert.Equal(t, uint8(127), midifile.RowKey(-10, 125))
}

func TestChannels(t *testing.T) {
	var c midifile.Channels
	assert.Equal(t, uint8(0), c.Of("a", false))
	assert.Equal(t, uint8(9), c.Of("kick", true))
	assert.Equal(t, uint8(1), c.Of("b", false))
	assert.Equal(t, uint8(0), c.Of("a", false))
}
