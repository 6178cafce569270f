package oto

import (
	"math"
	"sync"

	"github.com/vsariola/tonicgrid/transport"
)

type (
	// Blips is a minimal preview synthesizer: every attack, hit, stamp or
	// triplet event it receives becomes a short decaying sine, starting at
	// the next rendered frame. Rows map to pitches, higher rows sounding
	// lower, and percussive events are pitched to a fixed click.
	Blips struct {
		mutex      sync.Mutex
		sampleRate float64
		queued     []blip
		active     []blip
	}

	blip struct {
		freq  float64
		gain  float64
		start int64
		end   int64
	}
)

const (
	blipDecay     = 30.0 // 1/s
	blipLength    = 0.25 // s
	blipGain      = 0.2
	clickFreq     = 1760
	baseRowFreq   = 880
	rowsPerOctave = 12
)

func NewBlips(sampleRate int) *Blips {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Blips{sampleRate: float64(sampleRate)}
}

func (b *Blips) HandleEvent(e transport.Event) {
	if e.Kind == transport.NoteRelease {
		return
	}
	freq := baseRowFreq * math.Pow(2, -float64(e.Row)/rowsPerOctave)
	if e.Kind.Percussive() {
		freq = clickFreq
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.queued = append(b.queued, blip{freq: freq, gain: blipGain})
}

// Pending returns the number of blips that have not started sounding yet.
func (b *Blips) Pending() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.queued)
}

func (b *Blips) Render(buf []float32, frame int64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	length := int64(blipLength * b.sampleRate)
	for _, q := range b.queued {
		q.start, q.end = frame, frame+length
		b.active = append(b.active, q)
	}
	b.queued = b.queued[:0]
	frames := int64(len(buf) / channelCount)
	kept := b.active[:0]
	for _, a := range b.active {
		for i := max(a.start, frame); i < min(a.end, frame+frames); i++ {
			t := float64(i-a.start) / b.sampleRate
			v := float32(a.gain * math.Exp(-blipDecay*t) * math.Sin(2*math.Pi*a.freq*t))
			j := (i - frame) * channelCount
			buf[j] += v
			buf[j+1] += v
		}
		if a.end > frame+frames {
			kept = append(kept, a)
		}
	}
	b.active = kept
}
