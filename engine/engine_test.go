package engine_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/tonicgrid"
	"github.com/vsariola/tonicgrid/engine"
	"github.com/vsariola/tonicgrid/transport"
)

// testScore has a tempo of 120, so every microbeat column lasts 0.25 s.
func testScore() tonicgrid.Score {
	return tonicgrid.Score{
		Tempo:          120,
		Groupings:      []int{2, 2, 2},
		BoundaryStyles: []tonicgrid.BoundaryStyle{tonicgrid.Solid, tonicgrid.Dashed},
		Notes: []tonicgrid.Note{
			{ID: tonicgrid.NewID(), Row: 2, StartColumn: 3, EndColumn: 4, Voice: "blue"},
		},
		Layout: tonicgrid.DefaultLayout,
	}
}

type fixture struct {
	engine *engine.Engine
	clock  *transport.ManualClock
	events []transport.Event
}

func newFixture(t *testing.T, s tonicgrid.Score) *fixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	f := &fixture{clock: &transport.ManualClock{}}
	f.engine = engine.New(s,
		engine.WithLogger(logger),
		engine.WithClock(f.clock),
		engine.WithSink(transport.SinkFunc(func(ev transport.Event) { f.events = append(f.events, ev) })),
	)
	return f
}

func (f *fixture) advance(dt float64) { f.engine.Transport().Advance(dt) }

func drain(e *engine.Engine) []engine.NotificationKind {
	var ret []engine.NotificationKind
	for {
		select {
		case n := <-e.Broker().ToUI:
			ret = append(ret, n.Kind)
		default:
			return ret
		}
	}
}

func TestNewDerivesEverything(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	assert.Len(t, e.TimeMap(), 7)
	assert.InDelta(t, 1.5, e.TimeMap().End(), 1e-12)
	assert.Equal(t, 6, e.ColumnMap().Len())
	assert.InDelta(t, 80, e.ColumnToPixelX(2), 1e-9)
	assert.InDelta(t, 2, e.PixelXToColumn(80), 1e-9)
	assert.Equal(t, transport.Stopped, e.State())
	assert.Empty(t, drain(e))
}

func TestTimeMapIsASnapshot(t *testing.T) {
	f := newFixture(t, testScore())
	tm := f.engine.TimeMap()
	tm[1] = 42
	assert.InDelta(t, 0.25, f.engine.TimeMap()[1], 1e-12)
	s := f.engine.Score()
	s.Groupings[0] = 9
	assert.Equal(t, 2, f.engine.Score().Groupings[0])
}

func TestPlayPauseResumeStop(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	require.NoError(t, e.Play(0))
	assert.True(t, f.clock.Running)
	assert.Equal(t, 2, e.Transport().Pending())
	f.advance(0.8)
	require.Len(t, f.events, 1)
	assert.Equal(t, transport.NoteAttack, f.events[0].Kind)

	e.Pause()
	assert.False(t, f.clock.Running)
	assert.Equal(t, transport.Paused, e.State())
	require.NoError(t, e.Resume())
	assert.True(t, f.clock.Running)

	e.Stop()
	assert.Equal(t, transport.Stopped, e.State())
	assert.Equal(t, 0, e.Transport().Pending())
	assert.Equal(t, []engine.NotificationKind{engine.Started, engine.Paused, engine.Resumed, engine.Stopped}, drain(e))
	e.Stop()
	assert.Empty(t, drain(e), "stopping twice notifies once")
}

func TestPlayWhilePausedResumes(t *testing.T) {
	f := newFixture(t, testScore())
	require.NoError(t, f.engine.Play(0))
	f.advance(0.3)
	f.engine.Pause()
	require.NoError(t, f.engine.Play(0))
	assert.InDelta(t, 0.3, f.engine.Transport().Position(), 1e-12)
	assert.Equal(t, []engine.NotificationKind{engine.Started, engine.Paused, engine.Resumed}, drain(f.engine))
}

func TestPlayFailsWithoutDevice(t *testing.T) {
	errDevice := errors.New("device busy")
	logger, _ := logtest.NewNullLogger()
	e := engine.New(testScore(), engine.WithLogger(logger), engine.WithClock(&transport.ManualClock{StartErr: errDevice}))
	err := e.Play(0)
	assert.ErrorIs(t, err, errDevice)
	assert.Equal(t, transport.Stopped, e.State())
	assert.Equal(t, 0, e.Transport().Pending())
	assert.Empty(t, drain(e))
}

func TestTempoChangeKeepsMusicalPosition(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	require.NoError(t, e.Play(0))
	f.advance(0.375) // column 1.5
	require.True(t, e.OnTempoChanged(60))
	assert.Equal(t, transport.Started, e.State())
	assert.InDelta(t, 0.75, e.Transport().Position(), 1e-12)
	assert.InDelta(t, 3, e.TimeMap().End(), 1e-12)
	plan := e.Plan()
	require.NotEmpty(t, plan.Events)
	assert.InDelta(t, 1.5, plan.Events[0].Time, 1e-12)

	f.advance(0.7)
	assert.Empty(t, f.events)
	f.advance(0.1)
	require.Len(t, f.events, 1)
	assert.InDelta(t, 1.5, f.events[0].Time, 1e-12)
	assert.Equal(t, []engine.NotificationKind{engine.Started, engine.TempoChanged}, drain(e))
}

func TestTonicDuringPlaybackKeepsPosition(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	require.NoError(t, e.Play(0))
	f.advance(0.625) // column 2.5
	require.True(t, e.OnTonicPlaced(1))
	assert.InDelta(t, 0.625, e.Transport().Position(), 1e-12, "tonic columns take no time")
	assert.InDelta(t, 4.5, e.TimeMap().Position(e.Transport().Position()), 1e-12)
	// the note keeps its canvas columns, which now start inside the tonic
	assert.InDelta(t, 0.5, e.Plan().Events[0].Time, 1e-12)
	require.True(t, e.OnTonicRemoved(1))
	assert.False(t, e.OnTonicRemoved(1))
	assert.Equal(t, []engine.NotificationKind{engine.Started, engine.RhythmStructureChanged, engine.RhythmStructureChanged}, drain(e))
}

func TestRebuildWhilePausedStaysPaused(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	require.NoError(t, e.Play(0))
	f.advance(0.25)
	e.Pause()
	require.True(t, e.OnTempoChanged(240))
	assert.Equal(t, transport.Paused, e.State())
	assert.False(t, f.clock.Running)
	assert.InDelta(t, 0.125, e.Transport().Position(), 1e-12)
	assert.Equal(t, 2, e.Transport().Pending())
}

func TestInvalidCommandsAreNoOps(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	before := e.Score()
	assert.False(t, e.OnTempoChanged(0))
	assert.False(t, e.OnTempoChanged(-10))
	assert.False(t, e.OnTonicPlaced(2), "dashed boundary")
	assert.False(t, e.OnTonicPlaced(3), "score end")
	assert.False(t, e.OnRhythmStructureChanged([]int{2, 0}, nil))
	assert.False(t, e.OnRhythmStructureChanged(nil, nil))
	bad := tonicgrid.ModulationMarker{ID: tonicgrid.NewID(), AnchorBoundary: 1, Ratio: tonicgrid.Ratio{Num: 5, Den: 7}, Active: true}
	assert.False(t, e.OnModulationMarkersChanged([]tonicgrid.ModulationMarker{bad}))
	_, ok := e.AddModulationMarker(2, tonicgrid.Ratio{Num: 2, Den: 3})
	assert.False(t, ok, "dashed anchor")
	assert.False(t, e.OnLayoutConfigChanged(tonicgrid.LayoutConfig{CellWidth: 0, Zoom: 1}))
	assert.Equal(t, before, e.Score())
	assert.Empty(t, drain(e))
}

func TestRhythmChangeDropsIllegalTonics(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	require.True(t, e.OnTonicPlaced(1))
	require.True(t, e.OnRhythmStructureChanged([]int{3, 3}, []tonicgrid.BoundaryStyle{tonicgrid.Dashed}))
	assert.Empty(t, e.Score().TonicMarkers)
	assert.Equal(t, 6, e.ColumnMap().Len())
}

func TestModulationMarkers(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	m, ok := e.AddModulationMarker(1, tonicgrid.Ratio{Num: 4, Den: 6})
	require.True(t, ok)
	assert.Equal(t, tonicgrid.Ratio{Num: 2, Den: 3}, e.Score().ModulationMarkers[0].Ratio)
	assert.Equal(t, m.ID, e.Score().ModulationMarkers[0].ID)
	assert.InDelta(t, 80+40*2.0/3, e.ColumnToPixelX(3), 1e-9)
	assert.InDelta(t, 3, e.PixelXToColumn(e.ColumnToPixelX(3)), 1e-9)
	assert.InDelta(t, 1.5, e.TimeMap().End(), 1e-12, "modulation never changes timing")

	unnamed := tonicgrid.ModulationMarker{AnchorBoundary: 0, Ratio: tonicgrid.Ratio{Num: 2, Den: 1}, Active: true}
	require.True(t, e.OnModulationMarkersChanged([]tonicgrid.ModulationMarker{unnamed}))
	assert.NotEqual(t, uuid.Nil, e.Score().ModulationMarkers[0].ID)
	assert.InDelta(t, 80, e.ColumnToPixelX(1), 1e-9)
	assert.Equal(t, []engine.NotificationKind{engine.ModulationMarkersChanged, engine.ModulationMarkersChanged}, drain(e))
}

func TestLayoutChangeDoesNotReschedule(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	require.NoError(t, e.Play(0))
	f.advance(0.1)
	cfg := tonicgrid.DefaultLayout
	cfg.Zoom = 2
	cfg.ScrollX = 20
	require.True(t, e.OnLayoutConfigChanged(cfg))
	assert.InDelta(t, 80*2-20, e.ColumnToPixelX(2), 1e-9)
	assert.InDelta(t, 0.1, e.Transport().Position(), 1e-12)
	assert.Equal(t, transport.Started, e.State())
	assert.Equal(t, []engine.NotificationKind{engine.Started, engine.LayoutConfigChanged}, drain(e))
}

func TestNotesChanged(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	require.NoError(t, e.Play(0))
	require.True(t, e.OnNotesChanged(nil, nil, []tonicgrid.Triplet{{ID: tonicgrid.NewID(), StartColumn: 0, Span: 3, Voice: "kick", Hits: [3]bool{true, true, true}}}))
	assert.Equal(t, 3, e.Transport().Pending())
	f.advance(0.6)
	assert.Len(t, f.events, 3)
	assert.Equal(t, []engine.NotificationKind{engine.Started, engine.NotesChanged}, drain(e))
}

func TestTickStopsAtTheEnd(t *testing.T) {
	f := newFixture(t, testScore())
	e := f.engine
	require.NoError(t, e.Play(0))
	f.advance(0.5)
	fr, ok := e.Tick()
	require.True(t, ok)
	assert.InDelta(t, 2, fr.Column, 1e-12)
	f.advance(1.2)
	fr, ok = e.Tick()
	assert.False(t, ok)
	assert.True(t, fr.Ended)
	assert.Equal(t, transport.Stopped, e.State())
	assert.Equal(t, []engine.NotificationKind{engine.Started, engine.Stopped}, drain(e))
}

func TestLoopingPlayback(t *testing.T) {
	s := testScore()
	s.BoundaryStyles[0] = tonicgrid.Anacrusis
	s.BoundaryStyles[1] = tonicgrid.Solid
	f := newFixture(t, s)
	e := f.engine
	e.SetLooping(true)
	assert.True(t, e.Looping())
	require.NoError(t, e.Play(0))
	loop := e.Loop()
	assert.InDelta(t, 1, loop.Start, 1e-12)
	assert.InDelta(t, 1.5, loop.End, 1e-12)
	f.advance(2.1)
	fr, ok := e.Tick()
	require.True(t, ok)
	assert.InDelta(t, 1.1, fr.Time, 1e-9)
	assert.Equal(t, transport.Started, e.State())
}

func TestNotificationKindString(t *testing.T) {
	assert.Equal(t, "tempoChanged", engine.TempoChanged.String())
	assert.Equal(t, "unknown", engine.NotificationKind(99).String())
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := engine.NewBroker()
	for i := 0; i < cap(b.ToUI)+3; i++ {
		engine.TrySend(b.ToUI, engine.Notification{})
	}
	assert.Len(t, b.ToUI, cap(b.ToUI))
	assert.False(t, engine.TrySend(b.ToUI, engine.Notification{}))
}

func TestMalformedNotesAreIgnored(t *testing.T) {
	s := testScore()
	f := newFixture(t, s)
	e := f.engine
	require.NoError(t, e.Play(0))
	before := e.Plan()
	inverted := []tonicgrid.Note{{ID: tonicgrid.NewID(), StartColumn: 3, EndColumn: 0, Voice: "blue"}}
	assert.False(t, e.OnNotesChanged(inverted, nil, nil))
	assert.False(t, e.OnNotesChanged(nil, []tonicgrid.Stamp{{ID: tonicgrid.NewID(), Span: 0}}, nil))
	assert.False(t, e.OnNotesChanged(nil, nil, []tonicgrid.Triplet{{ID: tonicgrid.NewID(), Span: 0}}))
	assert.Equal(t, s.Notes, e.Score().Notes)
	assert.Equal(t, before, e.Plan())
	assert.Equal(t, 2, e.Transport().Pending())
	assert.Equal(t, []engine.NotificationKind{engine.Started}, drain(e))
}

func TestClockPauseErrorsAreLogged(t *testing.T) {
	errBusy := errors.New("device busy")
	logger, hook := logtest.NewNullLogger()
	clock := &transport.ManualClock{PauseErr: errBusy}
	e := engine.New(testScore(), engine.WithLogger(logger), engine.WithClock(clock))
	require.NoError(t, e.Play(0))

	e.Pause()
	assert.Equal(t, transport.Paused, e.State())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "pausing playback", hook.LastEntry().Message)
	assert.ErrorIs(t, hook.LastEntry().Data["error"].(error), errBusy)

	require.NoError(t, e.Resume())
	hook.Reset()
	require.True(t, e.OnTempoChanged(90))
	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, "pausing for rebuild", hook.Entries[0].Message)
	assert.Equal(t, transport.Started, e.State())

	hook.Reset()
	e.Stop()
	assert.Equal(t, transport.Stopped, e.State())
	assert.Equal(t, 0, e.Transport().Pending())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "stopping playback", hook.LastEntry().Message)
	assert.Equal(t, []engine.NotificationKind{engine.Started, engine.Paused, engine.Resumed, engine.TempoChanged, engine.Stopped}, drain(e))
}
