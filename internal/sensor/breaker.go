package sensor

import (
	"errors"
	"fmt"
)

// InitAttempts bounds how often Init is tried before giving up.
const InitAttempts = 3

// InitWithRetry calls s.Init up to attempts times. Fatal errors are
// returned at once.
func InitWithRetry(s Sensor, attempts int) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.Init(); err == nil || IsFatal(err) {
			return err
		}
	}
	return err
}

// Breaker counts consecutive bad readings and trips once they exceed the
// threshold.
type Breaker struct {
	threshold int
	count     int
}

func NewBreaker(threshold int) *Breaker {
	return &Breaker{threshold: threshold}
}

// Success resets the consecutive error count.
func (b *Breaker) Success() { b.count = 0 }

// Failure records a bad reading and reports whether the breaker tripped.
func (b *Breaker) Failure() bool {
	b.count++
	return b.count > b.threshold
}

// Count returns the current consecutive error count.
func (b *Breaker) Count() int { return b.count }

// Read takes one sample from s.
//
// A zero CO2 reading means the sensor is still warming up; it is dropped
// with ok false and no error. A retryable error re-initialises the sensor
// and is returned so the caller can log it. Fatal errors are returned
// unchanged. Once the breaker trips the error wraps ErrHardwareFail.
func (b *Breaker) Read(s Sensor) (m Measurement, ok bool, err error) {
	m, err = s.ReadMeasurements()
	if err == nil {
		if m.Co2 == 0 {
			return Measurement{}, false, nil
		}
		b.Success()
		return m, true, nil
	}
	if IsFatal(err) {
		return Measurement{}, false, err
	}
	if b.Failure() {
		return Measurement{}, false, fmt.Errorf("%w after %d consecutive errors: %w", ErrHardwareFail, b.count, err)
	}
	if ierr := InitWithRetry(s, InitAttempts); ierr != nil {
		if IsFatal(ierr) {
			return Measurement{}, false, ierr
		}
		err = errors.Join(err, fmt.Errorf("reinit: %w", ierr))
		// A sensor that will not come back counts against the breaker too.
		if b.Failure() {
			return Measurement{}, false, fmt.Errorf("%w after %d consecutive errors: %w", ErrHardwareFail, b.count, err)
		}
	}
	return Measurement{}, false, err
}
