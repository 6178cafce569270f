package transport

import (
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vsariola/tonicgrid"
	"github.com/vsariola/tonicgrid/grid"
	"github.com/vsariola/tonicgrid/timemap"
)

type (
	// Plan is the result of one scheduling pass. Events are sorted by time.
	Plan struct {
		Events  []Event
		TimeMap timemap.Map
		Loop    timemap.Loop
		Dropped int // events dropped because a column had no time map entry
		Skipped int // pickup events left out because playback is past the pickup
	}

	// Scheduler registers the events of a score on a Transport and delivers
	// them to a Sink when they fire.
	Scheduler struct {
		transport *Transport
		sink      Sink
		log       logrus.FieldLogger

		mutex  sync.Mutex // guards voices and plan; callbacks fire on the clock goroutine
		voices VoiceClock
		plan   Plan
	}
)

func NewScheduler(t *Transport, sink Sink, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{transport: t, sink: sink, log: log}
}

// BuildPlan computes every event of the score from the unmodulated time map.
// It is a pure function of the score: calling it twice with the same score
// gives identical events. Events referring to columns without a time map
// entry are dropped with a diagnostic; the rest of the pass continues.
func BuildPlan(score *tonicgrid.Score, log logrus.FieldLogger) Plan {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cm := grid.FromScore(score)
	tm := timemap.Build(score.Tempo, cm.Columns())
	p := Plan{TimeMap: tm, Loop: timemap.LoopWindow(tm, cm, score.Tempo)}
	if p.Loop.Corrected {
		log.WithFields(logrus.Fields{"start": p.Loop.Start, "end": p.Loop.End}).Debug("loop end pushed past loop start")
	}
	drop := func(kind EventKind, source any, column int) {
		p.Dropped++
		log.WithFields(logrus.Fields{"event": kind.String(), "source": source, "column": column}).Warn("dropping event: no time map entry for column")
	}
	for _, n := range score.Notes {
		if n.EndColumn < n.StartColumn {
			p.Dropped++
			log.WithFields(logrus.Fields{"source": n.ID, "start": n.StartColumn, "end": n.EndColumn}).Warn("dropping note: ends before it starts")
			continue
		}
		start, ok := tm.At(n.StartColumn)
		if !ok {
			drop(NoteAttack, n.ID, n.StartColumn)
			continue
		}
		end, ok := tm.At(n.EndColumn + 1)
		if !ok {
			drop(NoteRelease, n.ID, n.EndColumn+1)
			continue
		}
		ev := Event{Time: start, Duration: end - start, Voice: n.Voice, Row: n.Row, Source: n.ID}
		if n.Drum {
			ev.Kind = DrumHit
			p.Events = append(p.Events, ev)
			continue
		}
		ev.Kind = NoteAttack
		p.Events = append(p.Events, ev)
		ev.Kind, ev.Time, ev.Duration = NoteRelease, end, 0
		p.Events = append(p.Events, ev)
	}
	for _, st := range score.Stamps {
		t0, t1, ok := spanTimes(cm, tm, st.StartColumn, st.Span)
		if !ok {
			drop(StampEvent, st.ID, st.StartColumn)
			continue
		}
		offsets := slices.Clone(st.Offsets)
		slices.Sort(offsets)
		for i, o := range offsets {
			if o < 0 || o >= 1 {
				log.WithFields(logrus.Fields{"source": st.ID, "offset": o}).Warn("dropping stamp hit: offset outside [0, 1)")
				p.Dropped++
				continue
			}
			next := 1.0
			if i+1 < len(offsets) && offsets[i+1] < 1 {
				next = offsets[i+1]
			}
			p.Events = append(p.Events, Event{
				Kind:     StampEvent,
				Time:     t0 + o*(t1-t0),
				Duration: (next - o) * (t1 - t0),
				Voice:    st.Voice,
				Row:      st.Row,
				Source:   st.ID,
				Slot:     i,
			})
		}
	}
	for _, tr := range score.Triplets {
		t0, t1, ok := spanTimes(cm, tm, tr.StartColumn, tr.Span)
		if !ok {
			drop(TripletEvent, tr.ID, tr.StartColumn)
			continue
		}
		slot := (t1 - t0) / 3
		for i, hit := range tr.Hits {
			if !hit {
				continue
			}
			p.Events = append(p.Events, Event{
				Kind:     TripletEvent,
				Time:     t0 + float64(i)*slot,
				Duration: slot,
				Voice:    tr.Voice,
				Row:      tr.Row,
				Source:   tr.ID,
				Slot:     i,
			})
		}
	}
	slices.SortStableFunc(p.Events, compareEvents)
	var voices VoiceClock
	for i := range p.Events {
		ev := &p.Events[i]
		if ev.Kind.Percussive() {
			ev.Time = voices.Next(ev.Voice, ev.Time)
		}
		ev.Pickup = ev.Time < p.Loop.Start
	}
	slices.SortStableFunc(p.Events, compareEvents)
	return p
}

// From returns the plan as it is scheduled when playback starts at time from
// on the given loop pass: pickup events are left out unless from is before the
// loop start on the first pass. The receiver is not modified.
func (p Plan) From(from float64, iteration int) Plan {
	if from < p.Loop.Start && iteration == 0 {
		return p
	}
	events := make([]Event, 0, len(p.Events))
	for _, ev := range p.Events {
		if ev.Pickup {
			p.Skipped++
			continue
		}
		events = append(events, ev)
	}
	p.Events = events
	return p
}

// spanTimes returns the start and end time of span time bearing columns
// starting at the canvas column start.
func spanTimes(cm *grid.ColumnMap, tm timemap.Map, start, span int) (t0, t1 float64, ok bool) {
	ti, ok := cm.CanvasToTime(start)
	if !ok {
		return 0, 0, false
	}
	end, ok := cm.TimeToCanvas(ti + max(span, 1))
	if !ok {
		return 0, 0, false
	}
	if t0, ok = tm.At(start); !ok {
		return 0, 0, false
	}
	if t1, ok = tm.At(end); !ok {
		return 0, 0, false
	}
	return t0, t1, true
}

// ScheduleAll cancels every scheduled callback, rebuilds the plan from the
// score and registers its events on the transport. Pickup events (before the
// loop start) are only registered when scheduling from a position before the
// loop start on the first pass; later passes never reach them anyway. The
// transport loop window is updated to the plan's loop.
func (s *Scheduler) ScheduleAll(score *tonicgrid.Score, from float64) Plan {
	s.transport.CancelAll()
	p := BuildPlan(score, s.log).From(from, s.transport.Iteration())
	s.transport.SetLoop(p.Loop.Start, p.Loop.End)
	for _, ev := range p.Events {
		fn := func(tk Tick) { s.fire(ev, tk) }
		if ev.Kind == NoteRelease {
			s.transport.ScheduleClosing(ev.Time, fn)
			continue
		}
		s.transport.Schedule(ev.Time, fn)
	}
	s.mutex.Lock()
	s.plan = p
	s.mutex.Unlock()
	s.log.WithFields(logrus.Fields{
		"events":  len(p.Events),
		"dropped": p.Dropped,
		"skipped": p.Skipped,
		"from":    from,
	}).Debug("scheduled")
	return p
}

// Plan returns the result of the last ScheduleAll.
func (s *Scheduler) Plan() Plan {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.plan
}

// ResetVoices forgets the last start time of every percussion voice. Called
// when playback stops.
func (s *Scheduler) ResetVoices() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.voices.Reset()
}

func (s *Scheduler) fire(ev Event, tk Tick) {
	s.mutex.Lock()
	ev.AudioTime = tk.AudioTime
	if ev.Kind.Percussive() {
		ev.AudioTime = s.voices.Next(ev.Voice, tk.AudioTime)
	}
	s.mutex.Unlock()
	if s.sink != nil {
		s.sink.HandleEvent(ev)
	}
}
