package engine

type (
	// NotificationKind tells what changed.
	NotificationKind int

	// Notification is sent to the UI whenever the engine state changes. The
	// UI reacts by redrawing; it never needs to compute timing itself.
	Notification struct {
		Kind     NotificationKind
		Position float64 // transport position when the notification was sent
	}

	// Broker carries the notifications from the engine to the UI. Sends are
	// always non-blocking, so a slow UI cannot stall the engine; if the
	// channel is full, the notification is dropped and Dropped is counted.
	Broker struct {
		ToUI    chan Notification
		dropped int
	}
)

const (
	LayoutConfigChanged NotificationKind = iota
	RhythmStructureChanged
	ModulationMarkersChanged
	TempoChanged
	NotesChanged
	Started
	Paused
	Resumed
	Stopped
)

var notificationNames = [...]string{
	LayoutConfigChanged:      "layoutConfigChanged",
	RhythmStructureChanged:   "rhythmStructureChanged",
	ModulationMarkersChanged: "modulationMarkersChanged",
	TempoChanged:             "tempoChanged",
	NotesChanged:             "notesChanged",
	Started:                  "started",
	Paused:                   "paused",
	Resumed:                  "resumed",
	Stopped:                  "stopped",
}

func (k NotificationKind) String() string {
	if k < 0 || int(k) >= len(notificationNames) {
		return "unknown"
	}
	return notificationNames[k]
}

func NewBroker() *Broker {
	return &Broker{ToUI: make(chan Notification, 1024)}
}

// Dropped returns the number of notifications that did not fit in the
// channel.
func (b *Broker) Dropped() int { return b.dropped }

func (b *Broker) send(n Notification) {
	if !TrySend(b.ToUI, n) {
		b.dropped++
	}
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}
