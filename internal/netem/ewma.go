package netem

// EWMA is an exponentially weighted moving average. The zero value is
// unprimed: the first observation seeds it directly.
type EWMA struct {
	Alpha  float64 `json:"-"`
	Value  float64 `json:"value"`
	primed bool
}

// Observe folds a new sample into the average.
func (e *EWMA) Observe(sample float64) {
	alpha := e.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	if !e.primed {
		e.Value = sample
		e.primed = true
		return
	}
	e.Value = alpha*sample + (1-alpha)*e.Value
}

// Reset returns the average to the unprimed state.
func (e *EWMA) Reset() {
	e.Value = 0
	e.primed = false
}
