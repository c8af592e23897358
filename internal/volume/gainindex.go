package volume

// GainIndexMapper converts between linear gain indexes and native millibel
// gains for one gain range. Index 0 always lands on MinGainMb.
//
// Callers guarantee StepMb != 0; the factory rejects zero-step devices before
// a mapper is ever built.
type GainIndexMapper struct {
	MinGainMb int
	StepMb    int
}

// IndexForGain maps a millibel gain to its index (integer floor division).
func (m GainIndexMapper) IndexForGain(gainMb int) int {
	return (gainMb - m.MinGainMb) / m.StepMb
}

// GainForIndex maps an index back to a millibel gain.
func (m GainIndexMapper) GainForIndex(index int) int {
	return m.MinGainMb + index*m.StepMb
}
