package metrics

// ESSFraction is the mean of ESS/N over all generations.
type ESSFraction struct {
	name    string
	total   float64
	samples int
}

func NewESSFraction() *ESSFraction {
	return &ESSFraction{name: "ess_fraction"}
}

func (e *ESSFraction) Name() string { return e.name }

func (e *ESSFraction) Observe(s Sample) {
	if s.Particles <= 0 {
		return
	}
	e.total += s.ESS / float64(s.Particles)
	e.samples++
}

func (e *ESSFraction) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

func (e *ESSFraction) Reset() {
	e.total = 0
	e.samples = 0
}

// ResampleRate is the fraction of generations after the first that
// resampled.
type ResampleRate struct {
	name      string
	resampled int
	samples   int
}

func NewResampleRate() *ResampleRate {
	return &ResampleRate{name: "resample_rate"}
}

func (r *ResampleRate) Name() string { return r.name }

func (r *ResampleRate) Observe(s Sample) {
	if s.Generation == 0 {
		return
	}
	r.samples++
	if s.Resampled {
		r.resampled++
	}
}

func (r *ResampleRate) Value() float64 {
	if r.samples == 0 {
		return 0
	}
	return float64(r.resampled) / float64(r.samples)
}

func (r *ResampleRate) Reset() {
	r.resampled = 0
	r.samples = 0
}
