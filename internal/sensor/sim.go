package sensor

import "sync"

// Simulator produces a deterministic, repeating sequence of readings.
type Simulator struct {
	mu       sync.Mutex
	n        int
	inited   bool
	failures map[int]error
}

func NewSimulator() *Simulator {
	return &Simulator{failures: make(map[int]error)}
}

// FailAt makes the sample with the given zero-based index return err.
func (s *Simulator) FailAt(sample int, err error) {
	s.mu.Lock()
	s.failures[sample] = err
	s.mu.Unlock()
}

func (s *Simulator) Init() error {
	s.mu.Lock()
	s.inited = true
	s.mu.Unlock()
	return nil
}

func (s *Simulator) ReadMeasurements() (Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.n
	s.n++
	if err, ok := s.failures[i]; ok {
		return Measurement{}, err
	}
	return Sample(i), nil
}

func (s *Simulator) Close() error { return nil }

// Sample returns the i-th simulated reading.
func Sample(i int) Measurement {
	return Measurement{
		Co2:         triangle(i, 400, 1400, 100),
		Temperature: triangle(i, 2000, 2400, 40),
		RelHumidity: triangle(i, 4000, 8000, 60),
	}
}

// triangle rises from lo to hi over the first half of period and falls back
// over the second half.
func triangle(i, lo, hi, period int) int {
	half := period / 2
	p := i % period
	if p < half {
		return lo + (hi-lo)*p/half
	}
	return hi - (hi-lo)*(p-half)/half
}
