package transport

import (
	"fmt"

	"github.com/google/uuid"
)

type (
	// EventKind identifies what a scheduled event does.
	EventKind int

	// Event is one scheduled event. Time is the transport time of the event,
	// computed from the unmodulated time map. AudioTime is only set when the
	// event is delivered to a Sink: it is the clock time the event should
	// sound at, after the per-voice monotonic clamp for percussive events.
	Event struct {
		Kind      EventKind
		Time      float64
		Duration  float64 // for hits: time until the end of the note or slot
		Voice     string
		Row       int
		Source    uuid.UUID // the note, stamp or triplet that produced this event
		Slot      int       // index of the hit inside a stamp or triplet
		Pickup    bool      // before the loop start; plays only on the first pass
		AudioTime float64
	}

	// Sink receives events when they fire; typically a synth.
	Sink interface {
		HandleEvent(ev Event)
	}

	// SinkFunc adapts a function to a Sink.
	SinkFunc func(ev Event)

	// Sinks delivers every event to each of its sinks in order.
	Sinks []Sink
)

const (
	NoteRelease EventKind = iota // releases sort before attacks at the same time
	NoteAttack
	DrumHit
	StampEvent
	TripletEvent
)

var eventKindNames = [...]string{
	NoteRelease:  "note-release",
	NoteAttack:   "note-attack",
	DrumHit:      "drum-hit",
	StampEvent:   "stamp-event",
	TripletEvent: "triplet-event",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventKindNames[k]
}

// Percussive tells if the event is a one-shot hit that goes through the
// per-voice monotonic clamp.
func (k EventKind) Percussive() bool {
	return k == DrumHit || k == StampEvent || k == TripletEvent
}

func (f SinkFunc) HandleEvent(ev Event) { f(ev) }

func (s Sinks) HandleEvent(ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.HandleEvent(ev)
		}
	}
}

func compareEvents(a, b Event) int {
	switch {
	case a.Time < b.Time:
		return -1
	case a.Time > b.Time:
		return 1
	case a.Kind != b.Kind:
		return int(a.Kind - b.Kind)
	case a.Row != b.Row:
		return a.Row - b.Row
	case a.Source != b.Source:
		for i := range a.Source {
			if a.Source[i] != b.Source[i] {
				return int(a.Source[i]) - int(b.Source[i])
			}
		}
	}
	return a.Slot - b.Slot
}
