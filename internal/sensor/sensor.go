// Package sensor reads CO2, temperature and humidity from the supported
// probes.
//
// Temperature and relative humidity are reported in hundredths
// (2150 = 21.50 °C, 4550 = 45.50 %). CO2 is in ppm.
package sensor

import (
	"errors"
	"fmt"
	"strings"
)

// Measurement is one sample from a sensor.
type Measurement struct {
	Co2         int // ppm
	Temperature int // °C ×100
	RelHumidity int // % ×100
}

// Sensor is implemented by every probe.
//
// Init is idempotent and may be called again after a failed read to bring
// the hardware back.
type Sensor interface {
	Init() error
	ReadMeasurements() (Measurement, error)
	Close() error
}

// Factory builds a sensor from its configured kind and port.
type Factory func(kind, port string) (Sensor, error)

// Supported kinds.
const (
	KindK30   = "k30"
	KindSCD30 = "scd30"
	KindSim   = "sim"
)

var (
	ErrCRC          = errors.New("crc mismatch")
	ErrNotReady     = errors.New("data not ready")
	ErrSentinel     = errors.New("unexpected reply")
	ErrTimeout      = errors.New("timed out")
	ErrShortIO      = errors.New("short transfer")
	ErrHardwareFail = errors.New("sensor hardware failure")
	ErrUnknownKind  = errors.New("unknown sensor type")
)

// Error is a sensor failure. Fatal errors cannot be cured by re-running
// Init and must not be retried.
type Error struct {
	Op    string
	Fatal bool
	Err   error
}

func (e *Error) Error() string {
	if e.Fatal {
		return fmt.Sprintf("sensor %s (fatal): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sensor %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsFatal reports whether err, or anything it wraps, is a fatal sensor error.
func IsFatal(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Fatal
}

func retryable(op string, err error) error { return &Error{Op: op, Err: err} }
func fatal(op string, err error) error     { return &Error{Op: op, Fatal: true, Err: err} }

// New is the default Factory.
func New(kind, port string) (Sensor, error) {
	switch strings.ToLower(kind) {
	case KindK30:
		return NewK30(port), nil
	case KindSCD30:
		return NewSCD30(port), nil
	case KindSim:
		return NewSimulator(), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
}
