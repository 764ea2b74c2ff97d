package mdp

import "math"

// Report holds the aggregate counters of a simulation.
type Report struct {
	// Instructions is the number of instructions fed to the engine. Each
	// one advances the cycle counter by one.
	Instructions uint64 `json:"instructions"`
	// Loads and Stores count dynamic memory instructions.
	Loads  uint64 `json:"loads"`
	Stores uint64 `json:"stores"`
	// Predictions is the number of loads classified from predictor history
	// while their store was still in flight.
	Predictions uint64 `json:"predictions"`
	// Mispredictions counts wrong dependent/independent calls.
	Mispredictions uint64 `json:"mispredictions"`
	// Speculations counts loads allowed to proceed before their store resolved.
	Speculations uint64 `json:"speculations"`
	// MisSpeculations counts speculative loads that had a true dependence.
	MisSpeculations uint64 `json:"mis_speculations"`
	// FalseDependencies counts loads stalled on a store they did not alias.
	FalseDependencies uint64 `json:"false_dependencies"`
	// LoadBufferTime is the total number of cycles loads spent in the
	// load/store buffer, replay penalties included.
	LoadBufferTime uint64 `json:"load_buffer_time"`
}

// ratio returns NaN for a zero denominator.
func ratio(num, den uint64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

// MispredictionRate returns mispredictions per prediction.
func (r Report) MispredictionRate() float64 {
	return ratio(r.Mispredictions, r.Predictions)
}

// MisSpeculationRate returns mis-speculations per speculation.
func (r Report) MisSpeculationRate() float64 {
	return ratio(r.MisSpeculations, r.Speculations)
}

// FalseDependencyRate returns the share of mispredictions caused by false
// dependencies.
func (r Report) FalseDependencyRate() float64 {
	return ratio(r.FalseDependencies, r.Mispredictions)
}

// FalseDependenciesPerMisSpeculation returns false dependencies per
// mis-speculation, the ratio the Pin tool labels as its false dependency
// rate.
func (r Report) FalseDependenciesPerMisSpeculation() float64 {
	return ratio(r.FalseDependencies, r.MisSpeculations)
}

// AvgLoadBufferTime returns the mean buffer residency of a load in cycles.
func (r Report) AvgLoadBufferTime() float64 {
	return ratio(r.LoadBufferTime, r.Loads)
}

// Defined reports whether a rate had a non-zero denominator.
func Defined(rate float64) bool {
	return !math.IsNaN(rate)
}
