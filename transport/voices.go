package transport

// VoiceEpsilon is how far a percussive start time is nudged when it does not
// strictly exceed the previous start time of the same voice.
const VoiceEpsilon = 1e-4

// VoiceClock remembers the last start time of every percussion voice and
// keeps them strictly increasing, so that two nominally simultaneous hits on
// one voice do not steal each other.
type VoiceClock struct {
	last map[string]float64
}

// Next returns the start time to use for a hit on voice requested at t.
func (v *VoiceClock) Next(voice string, t float64) float64 {
	if v.last == nil {
		v.last = map[string]float64{}
	}
	if prev, ok := v.last[voice]; ok && t <= prev {
		t = prev + VoiceEpsilon
	}
	v.last[voice] = t
	return t
}

// Last returns the last start time given out for voice.
func (v *VoiceClock) Last(voice string) (float64, bool) {
	t, ok := v.last[voice]
	return t, ok
}

// Reset forgets all voices.
func (v *VoiceClock) Reset() {
	clear(v.last)
}
