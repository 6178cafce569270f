//go:build cgo

package midiout

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type rtmidiPort struct {
	driver *rtmididrv.Driver
	out    drivers.Out
	send   func(msg midi.Message) error
}

// Outputs lists the names of the MIDI output ports.
func Outputs() ([]string, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("cannot open MIDI driver: %w", err)
	}
	defer driver.Close()
	outs, err := driver.Outs()
	if err != nil {
		return nil, fmt.Errorf("cannot list MIDI outputs: %w", err)
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}

// Open opens the first output port whose name contains name, ignoring case.
func Open(name string) (Port, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("cannot open MIDI driver: %w", err)
	}
	outs, err := driver.Outs()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("cannot list MIDI outputs: %w", err)
	}
	for _, out := range outs {
		if !strings.Contains(strings.ToLower(out.String()), strings.ToLower(name)) {
			continue
		}
		if err := out.Open(); err != nil {
			driver.Close()
			return nil, fmt.Errorf("opening MIDI output %q failed: %w", out.String(), err)
		}
		send, err := midi.SendTo(out)
		if err != nil {
			out.Close()
			driver.Close()
			return nil, fmt.Errorf("cannot send to MIDI output %q: %w", out.String(), err)
		}
		return &rtmidiPort{driver: driver, out: out, send: send}, nil
	}
	driver.Close()
	return nil, fmt.Errorf("no MIDI output matching %q", name)
}

func (p *rtmidiPort) Send(msg midi.Message) error { return p.send(msg) }

func (p *rtmidiPort) Close() error {
	err := p.out.Close()
	p.driver.Close()
	return err
}
