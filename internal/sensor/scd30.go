package sensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	scd30Addr        = 0x61
	scd30DefaultBus  = "/dev/i2c-1"
	scd30Interval    = 2 // seconds between measurements
	scd30WriteDelay  = 5 * time.Millisecond
	scd30ResetDelay  = 50 * time.Millisecond
	scd30PollEvery   = 100 * time.Millisecond
	scd30ReadyWithin = time.Second
)

const (
	scd30TriggerCont  uint16 = 0x0010
	scd30StopCont     uint16 = 0x0104
	scd30MeasInterval uint16 = 0x4600
	scd30DataReady    uint16 = 0x0202
	scd30ReadMeas     uint16 = 0x0300
	scd30ASC          uint16 = 0x5306
	scd30SoftReset    uint16 = 0xd304
	scd30FirmwareRev  uint16 = 0xd100
)

// i2cBus is an I2C device already bound to the sensor address.
type i2cBus interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// SCD30 is a Sensirion SCD30 probe on an I2C bus.
type SCD30 struct {
	dev   string
	bus   i2cBus
	open  func(dev string, addr int) (i2cBus, error)
	sleep func(time.Duration)
}

// NewSCD30 returns an SCD30 on the given i2c device node.
// An empty or "dummy" port selects /dev/i2c-1.
func NewSCD30(dev string) *SCD30 {
	if dev == "" || dev == "dummy" {
		dev = scd30DefaultBus
	}
	return &SCD30{dev: dev, open: openI2C, sleep: time.Sleep}
}

func (s *SCD30) Init() error {
	if s.bus == nil {
		bus, err := s.open(s.dev, scd30Addr)
		if err != nil {
			return fatal("open "+s.dev, err)
		}
		s.bus = bus
	}
	if err := s.send(scd30SoftReset); err != nil {
		return retryable("soft reset", err)
	}
	s.sleep(scd30ResetDelay)
	if err := s.send(scd30MeasInterval, scd30Interval); err != nil {
		return retryable("set interval", err)
	}
	if err := s.send(scd30ASC, 1); err != nil {
		return retryable("enable asc", err)
	}
	if err := s.send(scd30TriggerCont, 0); err != nil {
		return retryable("start measurement", err)
	}
	return nil
}

// Firmware returns the sensor firmware revision.
func (s *SCD30) Firmware() (major, minor int, err error) {
	if err := s.send(scd30FirmwareRev); err != nil {
		return 0, 0, retryable("firmware", err)
	}
	w, err := s.readWords(1)
	if err != nil {
		return 0, 0, retryable("firmware", err)
	}
	return int(w[0] >> 8), int(w[0] & 0xff), nil
}

func (s *SCD30) ReadMeasurements() (Measurement, error) {
	if s.bus == nil {
		return Measurement{}, fatal("read", fmt.Errorf("%s not open", s.dev))
	}
	if err := s.waitReady(); err != nil {
		return Measurement{}, retryable("data ready", err)
	}
	if err := s.send(scd30ReadMeas); err != nil {
		return Measurement{}, retryable("read", err)
	}
	w, err := s.readWords(6)
	if err != nil {
		return Measurement{}, retryable("read", err)
	}

	var f [3]float64
	for i := range f {
		v := float64(math.Float32frombits(uint32(w[2*i])<<16 | uint32(w[2*i+1])))
		if math.IsNaN(v) || math.IsInf(v, 0) || (v < 0 && i != 1) {
			return Measurement{}, retryable("read", fmt.Errorf("%w: value %v", ErrSentinel, v))
		}
		f[i] = v
	}
	return Measurement{
		Co2:         int(math.Round(f[0])),
		Temperature: int(math.Round(f[1] * 100)),
		RelHumidity: int(math.Round(f[2] * 100)),
	}, nil
}

func (s *SCD30) Close() error {
	if s.bus == nil {
		return nil
	}
	_ = s.send(scd30StopCont)
	err := s.bus.Close()
	s.bus = nil
	return err
}

func (s *SCD30) waitReady() error {
	attempts := int(scd30ReadyWithin / scd30PollEvery)
	for i := 0; i < attempts; i++ {
		if err := s.send(scd30DataReady); err != nil {
			return err
		}
		w, err := s.readWords(1)
		if err != nil {
			return err
		}
		if w[0] != 0 {
			return nil
		}
		s.sleep(scd30PollEvery)
	}
	return fmt.Errorf("%w after %s: %w", ErrNotReady, scd30ReadyWithin, ErrTimeout)
}

func (s *SCD30) send(cmd uint16, args ...uint16) error {
	buf := make([]byte, 2, 2+3*len(args))
	binary.BigEndian.PutUint16(buf, cmd)
	for _, a := range args {
		word := []byte{byte(a >> 8), byte(a)}
		buf = append(buf, word[0], word[1], crc8(word))
	}
	n, err := s.bus.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("%w: wrote %d/%d", ErrShortIO, n, len(buf))
	}
	s.sleep(scd30WriteDelay)
	return nil
}

func (s *SCD30) readWords(n int) ([]uint16, error) {
	buf := make([]byte, 3*n)
	got, err := s.bus.Read(buf)
	if err != nil {
		return nil, err
	}
	if got != len(buf) {
		return nil, fmt.Errorf("%w: read %d/%d", ErrShortIO, got, len(buf))
	}
	words := make([]uint16, n)
	for i := 0; i < n; i++ {
		chunk := buf[3*i : 3*i+3]
		if c := crc8(chunk[:2]); c != chunk[2] {
			return nil, fmt.Errorf("%w: word %d got %#02x want %#02x", ErrCRC, i, chunk[2], c)
		}
		words[i] = binary.BigEndian.Uint16(chunk[:2])
	}
	return words, nil
}
