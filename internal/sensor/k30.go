package sensor

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

type k30Cmd struct {
	name     string
	req      []byte
	replyLen int
	valPos   int
	valLen   int
}

var (
	k30Initiate = k30Cmd{"initiate", []byte{0xfe, 0x41, 0x00, 0x60, 0x01, 0x35, 0xe8, 0x53}, 4, 0, 0}
	k30ReadCo2  = k30Cmd{"read co2", []byte{0xfe, 0x44, 0x00, 0x08, 0x02, 0x9f, 0x25}, 7, 3, 2}
	k30ReadTemp = k30Cmd{"read temperature", []byte{0xfe, 0x44, 0x00, 0x12, 0x02, 0x94, 0x45}, 7, 3, 2}
	k30ReadRH   = k30Cmd{"read humidity", []byte{0xfe, 0x44, 0x00, 0x14, 0x02, 0x97, 0xe5}, 7, 3, 2}
)

const (
	k30Baud      = 9600
	k30ReplyWait = 100 * time.Millisecond
	k30Settle    = 200 * time.Millisecond
)

// K30 is a SenseAir K30 probe on a serial port.
type K30 struct {
	port  string
	rw    io.ReadWriteCloser
	open  func(name string) (io.ReadWriteCloser, error)
	sleep func(time.Duration)
}

// NewK30 returns a K30 that opens port on first Init.
func NewK30(port string) *K30 {
	return &K30{port: port, open: openSerial, sleep: time.Sleep}
}

func openSerial(name string) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        k30Baud,
		ReadTimeout: k30ReplyWait,
	})
}

func (k *K30) Init() error {
	if k.rw == nil {
		rw, err := k.open(k.port)
		if err != nil {
			return fatal("open "+k.port, err)
		}
		k.rw = rw
	}
	if f, ok := k.rw.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if _, err := k.send(k30Initiate); err != nil {
		return err
	}
	k.sleep(k30Settle)
	return nil
}

func (k *K30) ReadMeasurements() (Measurement, error) {
	var m Measurement
	var err error
	if m.Co2, err = k.send(k30ReadCo2); err != nil {
		return Measurement{}, err
	}
	if m.Temperature, err = k.send(k30ReadTemp); err != nil {
		return Measurement{}, err
	}
	if m.RelHumidity, err = k.send(k30ReadRH); err != nil {
		return Measurement{}, err
	}
	return m, nil
}

func (k *K30) Close() error {
	if k.rw == nil {
		return nil
	}
	err := k.rw.Close()
	k.rw = nil
	return err
}

func (k *K30) send(cmd k30Cmd) (int, error) {
	if k.rw == nil {
		return 0, fatal(cmd.name, fmt.Errorf("port %s not open", k.port))
	}
	n, err := k.rw.Write(cmd.req)
	if err != nil {
		return 0, retryable(cmd.name, err)
	}
	if n != len(cmd.req) {
		return 0, retryable(cmd.name, fmt.Errorf("%w: wrote %d/%d", ErrShortIO, n, len(cmd.req)))
	}

	k.sleep(k30ReplyWait)

	reply := make([]byte, cmd.replyLen)
	if err := k.readReply(reply); err != nil {
		return 0, retryable(cmd.name, err)
	}
	if reply[0] != cmd.req[0] || reply[1] != cmd.req[1] {
		return 0, retryable(cmd.name, fmt.Errorf("%w: header % x", ErrSentinel, reply[:2]))
	}
	want := crc16(reply[:len(reply)-2])
	got := binary.LittleEndian.Uint16(reply[len(reply)-2:])
	if got != want {
		return 0, retryable(cmd.name, fmt.Errorf("%w: got %#04x want %#04x", ErrCRC, got, want))
	}

	val := 0
	for _, b := range reply[cmd.valPos : cmd.valPos+cmd.valLen] {
		val = val<<8 | int(b)
	}
	return val, nil
}

// readReply fills buf, treating an empty read as the reply timeout.
func (k *K30) readReply(buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := k.rw.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err == io.EOF || (err == nil && n == 0) {
			return fmt.Errorf("%w: read %d/%d", ErrTimeout, got, len(buf))
		}
		if err != nil {
			return err
		}
	}
	return nil
}
