package message

import (
	"encoding/binary"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sweeney/co2mon/internal/lifecycle"
	"github.com/sweeney/co2mon/internal/logic"
)

// Version is the envelope schema version written by Marshal.
const Version = 1

// prefixLen is the size of the big-endian body length in front of every frame.
const prefixLen = 4

// MaxFrame bounds accepted frames; bus payloads are a few hundred bytes.
const MaxFrame = 64 * 1024

var (
	// ErrMalformed means the bytes could not be decoded into an envelope.
	ErrMalformed = errors.New("message: malformed frame")
	// ErrUnsupportedVersion means the frame was written by a newer schema.
	ErrUnsupportedVersion = errors.New("message: unsupported version")
)

// Envelope field numbers.
const (
	fieldVersion     protowire.Number = 1
	fieldType        protowire.Number = 2
	fieldUIConfig    protowire.Number = 10
	fieldFanConfig   protowire.Number = 11
	fieldCo2Config   protowire.Number = 12
	fieldCo2State    protowire.Number = 13
	fieldNetConfig   protowire.Number = 14
	fieldNetState    protowire.Number = 15
	fieldThreadState protowire.Number = 16
	fieldRestart     protowire.Number = 17
)

// Marshal encodes m as a length-prefixed protobuf frame.
func Marshal(m Message) ([]byte, error) {
	if !m.Type.valid() {
		return nil, fmt.Errorf("message: cannot marshal type %s", m.Type)
	}

	e := encoder{b: make([]byte, prefixLen, 64)}
	e.uvarint(fieldVersion, Version)
	e.uvarint(fieldType, uint64(m.Type))

	if m.UIConfig != nil {
		e.sub(fieldUIConfig, encodeUIConfig(m.UIConfig))
	}
	if m.FanConfig != nil {
		e.sub(fieldFanConfig, encodeFanConfig(m.FanConfig))
	}
	if m.Co2Config != nil {
		e.sub(fieldCo2Config, encodeCo2Config(m.Co2Config))
	}
	if m.Co2State != nil {
		e.sub(fieldCo2State, encodeCo2State(m.Co2State))
	}
	if m.NetConfig != nil {
		e.sub(fieldNetConfig, encodeNetConfig(m.NetConfig))
	}
	if m.NetState != nil {
		var s encoder
		if m.NetState.State != nil {
			s.uvarint(1, uint64(*m.NetState.State))
		}
		e.sub(fieldNetState, s.b)
	}
	if m.ThreadState != nil {
		var s encoder
		if m.ThreadState.State != nil {
			s.uvarint(1, uint64(*m.ThreadState.State))
		}
		e.sub(fieldThreadState, s.b)
	}
	if m.Restart != nil {
		var s encoder
		if m.Restart.Type != nil {
			s.uvarint(1, uint64(*m.Restart.Type))
		}
		e.sub(fieldRestart, s.b)
	}

	body := len(e.b) - prefixLen
	if body > MaxFrame {
		return nil, fmt.Errorf("message: frame too large (%d bytes)", body)
	}
	binary.BigEndian.PutUint32(e.b[:prefixLen], uint32(body))
	return e.b, nil
}

// Unmarshal decodes a frame produced by Marshal. A frame whose payload
// variant is absent still decodes; callers use HasPayload or Require*.
func Unmarshal(frame []byte) (Message, error) {
	if len(frame) < prefixLen {
		return Message{}, fmt.Errorf("%w: short frame (%d bytes)", ErrMalformed, len(frame))
	}
	n := binary.BigEndian.Uint32(frame[:prefixLen])
	body := frame[prefixLen:]
	if int(n) != len(body) || n > MaxFrame {
		return Message{}, fmt.Errorf("%w: length prefix %d, body %d", ErrMalformed, n, len(body))
	}

	var (
		m          Message
		version    uint64
		hasVersion bool
		hasType    bool
	)
	err := walk(body, func(f field) error {
		switch {
		case f.num == fieldVersion || f.num == fieldType:
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
		case f.num >= fieldUIConfig && f.num <= fieldRestart:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
		}
		switch f.num {
		case fieldVersion:
			version, hasVersion = f.varint, true
		case fieldType:
			m.Type, hasType = Type(f.varint), true
		case fieldUIConfig:
			c, err := decodeUIConfig(f.bytes)
			m.UIConfig = c
			return err
		case fieldFanConfig:
			c, err := decodeFanConfig(f.bytes)
			m.FanConfig = c
			return err
		case fieldCo2Config:
			c, err := decodeCo2Config(f.bytes)
			m.Co2Config = c
			return err
		case fieldCo2State:
			c, err := decodeCo2State(f.bytes)
			m.Co2State = c
			return err
		case fieldNetConfig:
			c, err := decodeNetConfig(f.bytes)
			m.NetConfig = c
			return err
		case fieldNetState:
			m.NetState = &NetState{}
			return walk(f.bytes, func(sf field) error {
				if sf.num == 1 {
					v := NetStatus(sf.varint)
					m.NetState.State = &v
				}
				return nil
			})
		case fieldThreadState:
			m.ThreadState = &ThreadState{}
			return walk(f.bytes, func(sf field) error {
				if sf.num == 1 {
					v := lifecycle.State(sf.varint)
					m.ThreadState.State = &v
				}
				return nil
			})
		case fieldRestart:
			m.Restart = &RestartMsg{}
			return walk(f.bytes, func(sf field) error {
				if sf.num == 1 {
					v := RestartType(sf.varint)
					m.Restart.Type = &v
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}

	if hasVersion && version > Version {
		return Message{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if !hasType || !m.Type.valid() {
		return Message{}, fmt.Errorf("%w: missing or unknown message type", ErrMalformed)
	}
	return m, nil
}

// encoder appends protobuf fields. Nil pointers are skipped, which is what
// makes absent fields report as absent after a round trip.
type encoder struct {
	b []byte
}

func (e *encoder) uvarint(num protowire.Number, v uint64) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) int32(num protowire.Number, v *int32) {
	if v != nil {
		e.uvarint(num, uint64(int64(*v)))
	}
}

func (e *encoder) int64(num protowire.Number, v *int64) {
	if v != nil {
		e.uvarint(num, uint64(*v))
	}
}

func (e *encoder) string(num protowire.Number, v *string) {
	if v != nil {
		e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
		e.b = protowire.AppendString(e.b, *v)
	}
}

func (e *encoder) sub(num protowire.Number, body []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, body)
}

// field is one decoded protobuf field; varint or bytes depending on typ.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f field) int32() *int32 {
	v := int32(int64(f.varint))
	return &v
}

func (f field) int64() *int64 {
	v := int64(f.varint)
	return &v
}

func (f field) string() *string {
	v := string(f.bytes)
	return &v
}

// walk calls fn for every varint and length-delimited field in b.
// Other wire types are skipped so newer peers can add fields.
func walk(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// expect guards against a known field arriving with the wrong wire type.
func expect(f field, typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, f.num, f.typ)
	}
	return nil
}

func encodeUIConfig(c *UIConfig) []byte {
	var e encoder
	e.string(1, c.FBDev)
	e.string(2, c.MouseDev)
	e.string(3, c.MouseDrv)
	e.string(4, c.MouseRelative)
	e.string(5, c.VideoDriver)
	e.string(6, c.TTFDir)
	e.string(7, c.BitmapDir)
	e.int32(8, c.ScreenRefreshRate)
	e.int32(9, c.ScreenTimeout)
	return e.b
}

func decodeUIConfig(b []byte) (*UIConfig, error) {
	c := &UIConfig{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1, 2, 3, 4, 5, 6, 7:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
		case 8, 9:
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
		}
		switch f.num {
		case 1:
			c.FBDev = f.string()
		case 2:
			c.MouseDev = f.string()
		case 3:
			c.MouseDrv = f.string()
		case 4:
			c.MouseRelative = f.string()
		case 5:
			c.VideoDriver = f.string()
		case 6:
			c.TTFDir = f.string()
		case 7:
			c.BitmapDir = f.string()
		case 8:
			c.ScreenRefreshRate = f.int32()
		case 9:
			c.ScreenTimeout = f.int32()
		}
		return nil
	})
	return c, err
}

func encodeFanConfig(c *FanConfig) []byte {
	var e encoder
	e.int32(1, c.FanOnOverrideTime)
	e.int32(2, c.RelHumFanOnThreshold)
	e.int32(3, c.Co2FanOnThreshold)
	if c.FanOverride != nil {
		e.uvarint(4, uint64(*c.FanOverride))
	}
	return e.b
}

func decodeFanConfig(b []byte) (*FanConfig, error) {
	c := &FanConfig{}
	err := walk(b, func(f field) error {
		if f.num >= 1 && f.num <= 4 {
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
		}
		switch f.num {
		case 1:
			c.FanOnOverrideTime = f.int32()
		case 2:
			c.RelHumFanOnThreshold = f.int32()
		case 3:
			c.Co2FanOnThreshold = f.int32()
		case 4:
			v := logic.OverrideMode(f.varint)
			if !v.Valid() {
				return fmt.Errorf("%w: fan override %d", ErrMalformed, f.varint)
			}
			c.FanOverride = &v
		}
		return nil
	})
	return c, err
}

func encodeCo2Config(c *Co2Config) []byte {
	var e encoder
	e.string(1, c.SensorType)
	e.string(2, c.SensorPort)
	e.string(3, c.Co2LogBaseDir)
	return e.b
}

func decodeCo2Config(b []byte) (*Co2Config, error) {
	c := &Co2Config{}
	err := walk(b, func(f field) error {
		if f.num >= 1 && f.num <= 3 {
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
		}
		switch f.num {
		case 1:
			c.SensorType = f.string()
		case 2:
			c.SensorPort = f.string()
		case 3:
			c.Co2LogBaseDir = f.string()
		}
		return nil
	})
	return c, err
}

func encodeCo2State(s *Co2State) []byte {
	var e encoder
	e.int32(1, s.Temperature)
	e.int32(2, s.RelHumidity)
	e.int32(3, s.Co2)
	if s.FanState != nil {
		e.uvarint(4, uint64(*s.FanState))
	}
	e.int64(5, s.Timestamp)
	return e.b
}

func decodeCo2State(b []byte) (*Co2State, error) {
	s := &Co2State{}
	err := walk(b, func(f field) error {
		if f.num >= 1 && f.num <= 5 {
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
		}
		switch f.num {
		case 1:
			s.Temperature = f.int32()
		case 2:
			s.RelHumidity = f.int32()
		case 3:
			s.Co2 = f.int32()
		case 4:
			v := logic.FanState(f.varint)
			s.FanState = &v
		case 5:
			s.Timestamp = f.int64()
		}
		return nil
	})
	return s, err
}

func encodeNetConfig(c *NetConfig) []byte {
	var e encoder
	e.string(1, c.NetDevice)
	e.int32(2, c.NetworkCheckPeriod)
	e.int32(3, c.NetDeviceDownRebootMinTime)
	e.int32(4, c.NetDownRebootMinTime)
	return e.b
}

func decodeNetConfig(b []byte) (*NetConfig, error) {
	c := &NetConfig{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}
			c.NetDevice = f.string()
		case 2, 3, 4:
			if err := expect(f, protowire.VarintType); err != nil {
				return err
			}
			switch f.num {
			case 2:
				c.NetworkCheckPeriod = f.int32()
			case 3:
				c.NetDeviceDownRebootMinTime = f.int32()
			case 4:
				c.NetDownRebootMinTime = f.int32()
			}
		}
		return nil
	})
	return c, err
}
