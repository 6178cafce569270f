//go:build !cgo

package midiout

// with no cgo there is no rtmidi, so no ports

func Outputs() ([]string, error) { return nil, ErrNoDriver }

func Open(name string) (Port, error) { return nil, ErrNoDriver }
