// Package midiout plays scheduled events on a MIDI output port, so the grid
// can drive an external synthesizer or a DAW.
package midiout

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vsariola/tonicgrid/midifile"
	"github.com/vsariola/tonicgrid/transport"
	"gitlab.com/gomidi/midi/v2"
)

type (
	// Port receives MIDI messages.
	Port interface {
		Send(msg midi.Message) error
		Close() error
	}

	// Sink is a transport.Sink that turns events into MIDI messages, using the
	// same key and channel assignment as the MIDI file export. Percussive
	// events are sent as a note on followed by an immediate note off.
	Sink struct {
		mutex    sync.Mutex
		port     Port
		baseKey  int
		velocity uint8
		channels midifile.Channels
		sounding map[uuid.UUID]note
		log      logrus.FieldLogger
	}

	note struct {
		channel, key uint8
	}
)

var ErrNoDriver = errors.New("MIDI output is not available in this build")

const defaultVelocity = 100

func NewSink(port Port, baseKey int, velocity uint8, log logrus.FieldLogger) *Sink {
	if velocity == 0 {
		velocity = defaultVelocity
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sink{port: port, baseKey: baseKey, velocity: velocity, sounding: map[uuid.UUID]note{}, log: log}
}

func (s *Sink) HandleEvent(ev transport.Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	switch {
	case ev.Kind == transport.NoteAttack:
		n := note{channel: s.channels.Of(ev.Voice, false), key: midifile.RowKey(ev.Row, s.baseKey)}
		if prev, ok := s.sounding[ev.Source]; ok {
			s.send(midi.NoteOff(prev.channel, prev.key))
		}
		s.sounding[ev.Source] = n
		s.send(midi.NoteOn(n.channel, n.key, s.velocity))
	case ev.Kind == transport.NoteRelease:
		n, ok := s.sounding[ev.Source]
		if !ok {
			return
		}
		delete(s.sounding, ev.Source)
		s.send(midi.NoteOff(n.channel, n.key))
	case ev.Kind.Percussive():
		ch := s.channels.Of(ev.Voice, true)
		key := midifile.DrumKey(ev.Voice)
		s.send(midi.NoteOn(ch, key, s.velocity))
		s.send(midi.NoteOff(ch, key))
	}
}

// Silence releases every note that is still sounding. Call it when playback
// stops, since the releases of cancelled events never arrive.
func (s *Sink) Silence() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for id, n := range s.sounding {
		s.send(midi.NoteOff(n.channel, n.key))
		delete(s.sounding, id)
	}
}

// Sounding returns the number of notes attacked but not yet released.
func (s *Sink) Sounding() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.sounding)
}

func (s *Sink) send(msg midi.Message) {
	if err := s.port.Send(msg); err != nil {
		s.log.WithError(err).WithField("msg", msg.String()).Warn("MIDI send failed")
	}
}
