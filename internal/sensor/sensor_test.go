package sensor

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"time"
)

func TestCRC16MatchesK30Commands(t *testing.T) {
	for _, cmd := range []k30Cmd{k30Initiate, k30ReadCo2, k30ReadTemp, k30ReadRH} {
		body := cmd.req[:len(cmd.req)-2]
		want := binary.LittleEndian.Uint16(cmd.req[len(cmd.req)-2:])
		if got := crc16(body); got != want {
			t.Errorf("%s: crc16 = %#04x, want %#04x", cmd.name, got, want)
		}
	}
}

func TestCRC8Datasheet(t *testing.T) {
	if got := crc8([]byte{0xbe, 0xef}); got != 0x92 {
		t.Errorf("crc8(0xbeef) = %#02x, want 0x92", got)
	}
}

func TestFactory(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{"k30", "*sensor.K30"},
		{"SCD30", "*sensor.SCD30"},
		{"sim", "*sensor.Simulator"},
	}
	for _, tt := range tests {
		s, err := New(tt.kind, "dummy")
		if err != nil {
			t.Fatalf("New(%q): %v", tt.kind, err)
		}
		if got := typeName(s); got != tt.want {
			t.Errorf("New(%q) = %s, want %s", tt.kind, got, tt.want)
		}
	}
	if _, err := New("dht22", ""); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind error = %v", err)
	}
}

func typeName(s Sensor) string {
	switch s.(type) {
	case *K30:
		return "*sensor.K30"
	case *SCD30:
		return "*sensor.SCD30"
	case *Simulator:
		return "*sensor.Simulator"
	}
	return "?"
}

func TestErrorClassification(t *testing.T) {
	r := retryable("read", ErrCRC)
	f := fatal("open", errors.New("no such device"))

	if IsFatal(r) {
		t.Error("retryable error reported fatal")
	}
	if !IsFatal(f) {
		t.Error("fatal error not reported fatal")
	}
	if !errors.Is(r, ErrCRC) {
		t.Error("retryable error should unwrap to ErrCRC")
	}
	if IsFatal(errors.New("plain")) {
		t.Error("plain error reported fatal")
	}
}

// --- K30 ---

type fakePort struct {
	writes  [][]byte
	replies [][]byte
	pending []byte
	closed  bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), b...))
	if len(p.replies) > 0 {
		p.pending = p.replies[0]
		p.replies = p.replies[1:]
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func k30Reply(cmd k30Cmd, val int) []byte {
	var r []byte
	if cmd.replyLen == 4 {
		r = []byte{cmd.req[0], cmd.req[1]}
	} else {
		r = []byte{cmd.req[0], cmd.req[1], 0x02, byte(val >> 8), byte(val)}
	}
	return binary.LittleEndian.AppendUint16(r, crc16(r))
}

func newTestK30(p *fakePort) *K30 {
	k := NewK30("/dev/ttyTEST")
	k.open = func(string) (io.ReadWriteCloser, error) { return p, nil }
	k.sleep = func(time.Duration) {}
	return k
}

func TestK30InitAndRead(t *testing.T) {
	p := &fakePort{replies: [][]byte{
		k30Reply(k30Initiate, 0),
		k30Reply(k30ReadCo2, 850),
		k30Reply(k30ReadTemp, 2150),
		k30Reply(k30ReadRH, 4550),
	}}
	k := newTestK30(p)

	if err := k.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m, err := k.ReadMeasurements()
	if err != nil {
		t.Fatalf("ReadMeasurements: %v", err)
	}
	want := Measurement{Co2: 850, Temperature: 2150, RelHumidity: 4550}
	if m != want {
		t.Errorf("measurement = %+v, want %+v", m, want)
	}

	wantCmds := []k30Cmd{k30Initiate, k30ReadCo2, k30ReadTemp, k30ReadRH}
	if len(p.writes) != len(wantCmds) {
		t.Fatalf("writes = %d, want %d", len(p.writes), len(wantCmds))
	}
	for i, cmd := range wantCmds {
		if string(p.writes[i]) != string(cmd.req) {
			t.Errorf("write %d = % x, want % x", i, p.writes[i], cmd.req)
		}
	}

	if err := k.Close(); err != nil || !p.closed {
		t.Errorf("Close: err=%v closed=%v", err, p.closed)
	}
}

func TestK30ReplyErrors(t *testing.T) {
	badCRC := k30Reply(k30ReadCo2, 850)
	badCRC[len(badCRC)-1] ^= 0xff
	badHeader := k30Reply(k30ReadCo2, 850)
	badHeader[1] = 0x41

	tests := []struct {
		name  string
		reply []byte
		want  error
	}{
		{"crc", badCRC, ErrCRC},
		{"header", badHeader, ErrSentinel},
		{"short", k30Reply(k30ReadCo2, 850)[:4], ErrTimeout},
		{"silent", nil, ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePort{replies: [][]byte{k30Reply(k30Initiate, 0), tt.reply}}
			k := newTestK30(p)
			if err := k.Init(); err != nil {
				t.Fatal(err)
			}
			_, err := k.ReadMeasurements()
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if IsFatal(err) {
				t.Error("reply error should be retryable")
			}
		})
	}
}

func TestK30OpenFailureIsFatal(t *testing.T) {
	k := NewK30("/dev/ttyNONE")
	k.open = func(string) (io.ReadWriteCloser, error) { return nil, errors.New("no such file") }
	k.sleep = func(time.Duration) {}

	if err := k.Init(); !IsFatal(err) {
		t.Errorf("Init err = %v, want fatal", err)
	}
}

// --- SCD30 ---

type fakeBus struct {
	writes    [][]byte
	responses [][]byte
	closed    bool
}

func (b *fakeBus) Write(p []byte) (int, error) {
	b.writes = append(b.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (b *fakeBus) Read(p []byte) (int, error) {
	if len(b.responses) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, b.responses[0])
	b.responses = b.responses[1:]
	return n, nil
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func sensirionWords(ws ...uint16) []byte {
	var out []byte
	for _, w := range ws {
		pair := []byte{byte(w >> 8), byte(w)}
		out = append(out, pair[0], pair[1], crc8(pair))
	}
	return out
}

func floatWords(fs ...float32) []byte {
	var ws []uint16
	for _, f := range fs {
		u := math.Float32bits(f)
		ws = append(ws, uint16(u>>16), uint16(u))
	}
	return sensirionWords(ws...)
}

func newTestSCD30(b *fakeBus) *SCD30 {
	s := NewSCD30("")
	s.open = func(string, int) (i2cBus, error) { return b, nil }
	s.sleep = func(time.Duration) {}
	return s
}

func TestSCD30Init(t *testing.T) {
	b := &fakeBus{}
	s := newTestSCD30(b)
	if s.dev != "/dev/i2c-1" {
		t.Errorf("default device = %q", s.dev)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	want := [][]byte{
		{0xd3, 0x04},
		append([]byte{0x46, 0x00}, sensirionWords(2)...),
		append([]byte{0x53, 0x06}, sensirionWords(1)...),
		append([]byte{0x00, 0x10}, sensirionWords(0)...),
	}
	if len(b.writes) != len(want) {
		t.Fatalf("writes = % x", b.writes)
	}
	for i := range want {
		if string(b.writes[i]) != string(want[i]) {
			t.Errorf("write %d = % x, want % x", i, b.writes[i], want[i])
		}
	}
}

func TestSCD30ReadMeasurements(t *testing.T) {
	b := &fakeBus{responses: [][]byte{
		sensirionWords(0),
		sensirionWords(1),
		floatWords(850.4, 21.5, 45.5),
	}}
	s := newTestSCD30(b)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	m, err := s.ReadMeasurements()
	if err != nil {
		t.Fatalf("ReadMeasurements: %v", err)
	}
	want := Measurement{Co2: 850, Temperature: 2150, RelHumidity: 4550}
	if m != want {
		t.Errorf("measurement = %+v, want %+v", m, want)
	}
}

func TestSCD30NotReadyTimesOut(t *testing.T) {
	b := &fakeBus{}
	for i := 0; i < 10; i++ {
		b.responses = append(b.responses, sensirionWords(0))
	}
	s := newTestSCD30(b)
	s.Init()

	_, err := s.ReadMeasurements()
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want not-ready timeout", err)
	}
	if IsFatal(err) {
		t.Error("timeout should be retryable")
	}
}

func TestSCD30BadWordCRC(t *testing.T) {
	data := floatWords(850, 21.5, 45.5)
	data[5] ^= 0x01
	b := &fakeBus{responses: [][]byte{sensirionWords(1), data}}
	s := newTestSCD30(b)
	s.Init()

	if _, err := s.ReadMeasurements(); !errors.Is(err, ErrCRC) {
		t.Errorf("err = %v, want ErrCRC", err)
	}
}

func TestSCD30NaNIsSentinel(t *testing.T) {
	b := &fakeBus{responses: [][]byte{sensirionWords(1), floatWords(float32(math.NaN()), 21.5, 45.5)}}
	s := newTestSCD30(b)
	s.Init()

	if _, err := s.ReadMeasurements(); !errors.Is(err, ErrSentinel) {
		t.Errorf("err = %v, want ErrSentinel", err)
	}
}

func TestSCD30CloseStopsMeasurement(t *testing.T) {
	b := &fakeBus{}
	s := newTestSCD30(b)
	s.Init()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	last := b.writes[len(b.writes)-1]
	if last[0] != 0x01 || last[1] != 0x04 || !b.closed {
		t.Errorf("last write = % x, closed = %v", last, b.closed)
	}
}

// --- Simulator ---

func TestSimulatorSequence(t *testing.T) {
	if got, want := Sample(0), (Measurement{Co2: 400, Temperature: 2000, RelHumidity: 4000}); got != want {
		t.Errorf("Sample(0) = %+v, want %+v", got, want)
	}
	if got := Sample(50).Co2; got != 1400 {
		t.Errorf("co2 peak = %d, want 1400", got)
	}
	if got := Sample(30).RelHumidity; got != 8000 {
		t.Errorf("rh peak = %d, want 8000", got)
	}
	if Sample(600) != Sample(0) {
		t.Error("sequence should repeat on the common period")
	}

	s := NewSimulator()
	s.FailAt(1, retryable("read", ErrCRC))
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(); err != nil {
		t.Fatal("Init should be idempotent")
	}
	if m, err := s.ReadMeasurements(); err != nil || m != Sample(0) {
		t.Errorf("first read = %+v, %v", m, err)
	}
	if _, err := s.ReadMeasurements(); !errors.Is(err, ErrCRC) {
		t.Errorf("second read err = %v, want ErrCRC", err)
	}
	if m, _ := s.ReadMeasurements(); m != Sample(2) {
		t.Errorf("third read = %+v, want Sample(2)", m)
	}
}
