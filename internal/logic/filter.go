package logic

// Filter is the 80/20 integer exponential smoothing applied to humidity and
// CO2 before they drive the fan. The first sample seeds it exactly.
type Filter struct {
	value    int
	hasPrior bool
}

// Update feeds a raw sample and returns the new filtered value.
func (f *Filter) Update(raw int) int {
	if !f.hasPrior {
		f.value = raw
		f.hasPrior = true
		return f.value
	}
	f.value = (raw*20 + f.value*80) / 100
	return f.value
}

// Value returns the current filtered value.
func (f *Filter) Value() int { return f.value }

// HasPrior reports whether the filter has been seeded.
func (f *Filter) HasPrior() bool { return f.hasPrior }

// Reset returns the filter to its unseeded state.
func (f *Filter) Reset() { *f = Filter{} }
