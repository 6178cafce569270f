/*
Package engine owns the shared mutable state of the grid (tempo, groupings,
markers, placed notes) and everything derived from it: the column map, the
time map, the pixel map, the transport schedule and the playhead.

The UI does not modify the state directly. It calls the command handlers
(OnTempoChanged, OnModulationMarkersChanged, ...), each of which performs one
deterministic rebuild and sends a Notification. When a handler runs during
playback, the engine pauses the transport, cancels every pending callback,
rebuilds, reschedules and resumes at the same musical position, so no stale
callback fires against mismatched columns and the audience hears no gap.
*/
package engine

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vsariola/tonicgrid"
	"github.com/vsariola/tonicgrid/grid"
	"github.com/vsariola/tonicgrid/playhead"
	"github.com/vsariola/tonicgrid/timemap"
	"github.com/vsariola/tonicgrid/transport"
)

type (
	Engine struct {
		mutex sync.Mutex

		score   tonicgrid.Score
		columns *grid.ColumnMap
		timeMap timemap.Map
		loop    timemap.Loop
		pixels  grid.PixelCache
		looping bool

		transport *transport.Transport
		scheduler *transport.Scheduler
		driver    *playhead.Driver
		broker    *Broker
		sink      transport.Sink
		log       logrus.FieldLogger
	}

	Option func(*Engine)
)

func WithLogger(log logrus.FieldLogger) Option { return func(e *Engine) { e.log = log } }

// WithSink sets where the scheduled events are delivered.
func WithSink(sink transport.Sink) Option { return func(e *Engine) { e.sink = sink } }

// WithClock sets the clock of the transport.
func WithClock(clock transport.Clock) Option {
	return func(e *Engine) { e.transport.SetClock(clock) }
}

func WithBroker(b *Broker) Option { return func(e *Engine) { e.broker = b } }

// New creates an engine for a copy of the score.
func New(score tonicgrid.Score, opts ...Option) *Engine {
	e := &Engine{
		score:     score.Copy(),
		transport: transport.New(nil),
		log:       logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.broker == nil {
		e.broker = NewBroker()
	}
	if e.score.Layout.CellWidth <= 0 {
		e.score.Layout.CellWidth = tonicgrid.DefaultLayout.CellWidth
	}
	if e.score.Layout.Zoom <= 0 {
		e.score.Layout.Zoom = tonicgrid.DefaultLayout.Zoom
	}
	e.score.NormalizeTonics()
	e.scheduler = transport.NewScheduler(e.transport, e.sink, e.log)
	e.driver = playhead.NewDriver(e.transport)
	e.rebuildLocked()
	return e
}

// Transport returns the transport, e.g. for attaching an audio clock.
func (e *Engine) Transport() *transport.Transport { return e.transport }

func (e *Engine) Broker() *Broker { return e.broker }

// Score returns a copy of the current score.
func (e *Engine) Score() tonicgrid.Score {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.score.Copy()
}

// TimeMap returns a snapshot of the time map.
func (e *Engine) TimeMap() timemap.Map {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.timeMap.Copy()
}

func (e *Engine) Loop() timemap.Loop {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.loop
}

// ColumnMap returns the current column map. Column maps are immutable.
func (e *Engine) ColumnMap() *grid.ColumnMap {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.columns
}

// PixelMap returns the current pixel map. Pixel maps are immutable.
func (e *Engine) PixelMap() *grid.PixelMap {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.pixelMapLocked()
}

func (e *Engine) ColumnToPixelX(c float64) float64 { return e.PixelMap().ColumnToPixelX(c) }

func (e *Engine) PixelXToColumn(x float64) float64 { return e.PixelMap().PixelXToColumn(x) }

// Plan returns the events registered by the last scheduling pass.
func (e *Engine) Plan() transport.Plan { return e.scheduler.Plan() }

func (e *Engine) State() transport.State { return e.transport.State() }

func (e *Engine) pixelMapLocked() *grid.PixelMap {
	return e.pixels.Get(e.columns, e.score.Layout, e.score.ModulationMarkers)
}

func (e *Engine) rebuildLocked() {
	e.columns = grid.FromScore(&e.score)
	e.timeMap = timemap.Build(e.score.Tempo, e.columns.Columns())
	e.loop = timemap.LoopWindow(e.timeMap, e.columns, e.score.Tempo)
	e.refreshDriverLocked()
}

func (e *Engine) refreshDriverLocked() {
	e.driver.SetLayout(playhead.Layout{
		TimeMap: e.timeMap,
		Pixels:  e.pixelMapLocked(),
		Loop:    e.loop,
		Tempo:   e.score.Tempo,
	})
}

// reschedule runs mutate and rebuilds everything derived from the score. During
// playback it follows the order pause, cancel, rebuild, reschedule, resume
// and keeps the musical position, so a tempo change continues from the same
// column.
func (e *Engine) reschedule(kind NotificationKind, invalidatePixels bool, mutate func()) {
	state := e.transport.State()
	var position float64
	if state != transport.Stopped {
		if state == transport.Started {
			if err := e.transport.Pause(); err != nil {
				e.log.WithError(err).Warn("pausing for rebuild")
			}
		}
		e.transport.CancelAll()
		position = e.musicalPositionLocked(e.transport.Position())
	}
	mutate()
	if invalidatePixels {
		e.pixels.Invalidate()
	}
	e.rebuildLocked()
	if state != transport.Stopped {
		at := e.timeAtMusicalPositionLocked(position)
		e.transport.Seek(at)
		e.scheduler.ScheduleAll(&e.score, at)
		if state == transport.Started {
			if err := e.transport.Resume(); err != nil {
				e.log.WithError(err).Error("could not resume after rebuild")
				e.stopLocked()
			}
		}
	}
	e.broker.send(Notification{Kind: kind, Position: e.transport.Position()})
}

// musicalPositionLocked converts a transport time to a fractional time index,
// which survives tempo changes and tonic insertions.
func (e *Engine) musicalPositionLocked(t float64) float64 {
	p := e.timeMap.Position(t)
	c := int(p)
	ti, ok := e.columns.CanvasToTime(c)
	if !ok {
		return 0
	}
	return float64(ti) + (p - float64(c))
}

func (e *Engine) timeAtMusicalPositionLocked(pos float64) float64 {
	ti := int(math.Floor(pos))
	if ti >= e.columns.TimeLen() {
		return e.timeMap.End()
	}
	if ti < 0 {
		return 0
	}
	c, _ := e.columns.TimeToCanvas(ti)
	return e.timeMap.TimeAt(float64(c) + (pos - float64(ti)))
}

// OnTempoChanged sets the tempo. Non-positive tempos are ignored.
func (e *Engine) OnTempoChanged(tempo float64) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if tempo <= 0 || math.IsNaN(tempo) || math.IsInf(tempo, 0) {
		e.log.WithField("tempo", tempo).Debug("ignoring invalid tempo")
		return false
	}
	e.reschedule(TempoChanged, false, func() { e.score.Tempo = tempo })
	return true
}

// OnRhythmStructureChanged replaces the macrobeat groupings and boundary
// styles. Tonic markers that end up at illegal boundaries are removed.
// Malformed groupings are ignored.
func (e *Engine) OnRhythmStructureChanged(groupings []int, styles []tonicgrid.BoundaryStyle) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	candidate := tonicgrid.Score{Tempo: 1, Groupings: groupings, BoundaryStyles: styles}
	if err := candidate.Validate(); err != nil {
		e.log.WithError(err).Debug("ignoring rhythm structure")
		return false
	}
	e.reschedule(RhythmStructureChanged, true, func() {
		e.score.Groupings = append([]int(nil), groupings...)
		e.score.BoundaryStyles = append([]tonicgrid.BoundaryStyle(nil), styles...)
		e.score.NormalizeTonics()
	})
	return true
}

// OnTonicPlaced places a tonic marker at the boundary b. Occupied or non
// solid boundaries are ignored, since hover previews probe this on every
// pointer move.
func (e *Engine) OnTonicPlaced(b int) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if !e.score.CanPlaceTonic(b) {
		e.log.WithField("boundary", b).Debug("ignoring tonic placement")
		return false
	}
	e.reschedule(RhythmStructureChanged, true, func() { e.score.PlaceTonic(b) })
	return true
}

// OnTonicRemoved removes the tonic marker at the boundary b.
func (e *Engine) OnTonicRemoved(b int) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if _, ok := e.score.TonicAt(b); !ok {
		return false
	}
	e.reschedule(RhythmStructureChanged, true, func() { e.score.RemoveTonic(b) })
	return true
}

// OnModulationMarkersChanged replaces the modulation markers. The whole list
// is ignored if any marker has an unsupported ratio or is not anchored at a
// solid boundary. Markers without an ID get one.
func (e *Engine) OnModulationMarkersChanged(markers []tonicgrid.ModulationMarker) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	markers = append([]tonicgrid.ModulationMarker(nil), markers...)
	for i, m := range markers {
		if !m.Ratio.Valid() || !e.score.IsSolid(m.AnchorBoundary) {
			e.log.WithFields(logrus.Fields{"ratio": m.Ratio.String(), "boundary": m.AnchorBoundary}).Debug("ignoring modulation markers")
			return false
		}
		if m.ID == uuid.Nil {
			markers[i].ID = tonicgrid.NewID()
		}
		markers[i].Ratio = m.Ratio.Reduce()
	}
	e.reschedule(ModulationMarkersChanged, true, func() { e.score.ModulationMarkers = markers })
	return true
}

// AddModulationMarker adds an active marker at the boundary b.
func (e *Engine) AddModulationMarker(b int, ratio tonicgrid.Ratio) (tonicgrid.ModulationMarker, bool) {
	m := tonicgrid.ModulationMarker{ID: tonicgrid.NewID(), AnchorBoundary: b, Ratio: ratio, Active: true}
	markers := append(e.Score().ModulationMarkers, m)
	if !e.OnModulationMarkersChanged(markers) {
		return tonicgrid.ModulationMarker{}, false
	}
	return m, true
}

// OnLayoutConfigChanged updates the zoom, scroll and cell size. It only
// affects pixels, so nothing is rescheduled.
func (e *Engine) OnLayoutConfigChanged(cfg tonicgrid.LayoutConfig) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if cfg.CellWidth <= 0 || cfg.Zoom <= 0 || cfg.RightMarginColumns < 0 {
		e.log.WithField("layout", cfg).Debug("ignoring layout config")
		return false
	}
	e.score.Layout = cfg
	e.pixels.Invalidate()
	e.refreshDriverLocked()
	e.broker.send(Notification{Kind: LayoutConfigChanged, Position: e.transport.Position()})
	return true
}

// OnNotesChanged replaces the placed notes, stamps and triplets. The update
// is ignored if any of them is malformed, e.g. a note ending before it starts.
func (e *Engine) OnNotesChanged(notes []tonicgrid.Note, stamps []tonicgrid.Stamp, triplets []tonicgrid.Triplet) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if err := tonicgrid.ValidatePlacements(notes, stamps, triplets); err != nil {
		e.log.WithError(err).Debug("ignoring notes")
		return false
	}
	e.reschedule(NotesChanged, false, func() {
		e.score.Notes = append([]tonicgrid.Note(nil), notes...)
		e.score.Stamps = make([]tonicgrid.Stamp, len(stamps))
		for i, s := range stamps {
			e.score.Stamps[i] = s.Copy()
		}
		e.score.Triplets = append([]tonicgrid.Triplet(nil), triplets...)
	})
	return true
}

// SetLooping turns looping on or off. It takes effect immediately, also
// during playback.
func (e *Engine) SetLooping(looping bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.looping = looping
	e.transport.SetLooping(looping)
	e.driver.SetLooping(looping)
}

func (e *Engine) Looping() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.looping
}

// Play schedules everything and starts the transport at time from. If the
// transport is paused, Play resumes instead. If the clock cannot be started,
// the engine stays stopped, with nothing scheduled, and the error is
// returned.
func (e *Engine) Play(from float64) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	switch e.transport.State() {
	case transport.Started:
		return nil
	case transport.Paused:
		return e.resumeLocked()
	}
	e.scheduler.ResetVoices()
	e.transport.SetLooping(e.looping)
	e.scheduler.ScheduleAll(&e.score, from)
	if err := e.transport.Start(from); err != nil {
		// the clock never started, so there is nothing to pause
		_ = e.transport.Stop()
		return fmt.Errorf("cannot start playback: %w", err)
	}
	e.driver.SetPlaying(true)
	e.broker.send(Notification{Kind: Started, Position: from})
	return nil
}

// Pause halts the clock; the schedule is kept.
func (e *Engine) Pause() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.transport.State() != transport.Started {
		return
	}
	if err := e.transport.Pause(); err != nil {
		e.log.WithError(err).Warn("pausing playback")
	}
	e.driver.SetPlaying(false)
	e.broker.send(Notification{Kind: Paused, Position: e.transport.Position()})
}

// Resume continues after Pause without rescheduling.
func (e *Engine) Resume() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.resumeLocked()
}

func (e *Engine) resumeLocked() error {
	if e.transport.State() != transport.Paused {
		return nil
	}
	if err := e.transport.Resume(); err != nil {
		e.stopLocked()
		return fmt.Errorf("cannot resume playback: %w", err)
	}
	e.driver.SetPlaying(true)
	e.broker.send(Notification{Kind: Resumed, Position: e.transport.Position()})
	return nil
}

// Stop halts playback, cancels all scheduled callbacks and resets the
// per-voice tracking.
func (e *Engine) Stop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	wasStopped := e.transport.State() == transport.Stopped
	if err := e.transport.Stop(); err != nil {
		e.log.WithError(err).Warn("stopping playback")
	}
	e.scheduler.ResetVoices()
	e.driver.SetPlaying(false)
	if !wasStopped {
		e.broker.send(Notification{Kind: Stopped})
	}
}

// Tick computes the playhead frame for this animation frame. When the
// playhead reaches the end with looping disabled, playback is stopped. ok is
// false when the frame loop should end.
func (e *Engine) Tick() (f playhead.Frame, ok bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	f, ok = e.driver.Tick()
	if f.Ended {
		e.stopLocked()
	}
	return f, ok
}

// FrameAt returns the playhead frame at transport time t.
func (e *Engine) FrameAt(t float64) playhead.Frame {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.driver.FrameAt(t)
}
