package sensor

import "sync"

// FakeSensor replays scripted readings and errors for testing.
// Once the script is exhausted the last reading repeats.
type FakeSensor struct {
	mu        sync.Mutex
	steps     []fakeStep
	initErrs  []error
	last      Measurement
	initCalls int
	readCalls int
	closed    bool
}

type fakeStep struct {
	m   Measurement
	err error
}

func NewFakeSensor() *FakeSensor {
	return &FakeSensor{}
}

// QueueReading appends a successful reading.
func (f *FakeSensor) QueueReading(m Measurement) {
	f.mu.Lock()
	f.steps = append(f.steps, fakeStep{m: m})
	f.mu.Unlock()
}

// QueueError appends a failed reading.
func (f *FakeSensor) QueueError(err error) {
	f.mu.Lock()
	f.steps = append(f.steps, fakeStep{err: err})
	f.mu.Unlock()
}

// QueueInitError makes the next Init call fail with err.
func (f *FakeSensor) QueueInitError(err error) {
	f.mu.Lock()
	f.initErrs = append(f.initErrs, err)
	f.mu.Unlock()
}

func (f *FakeSensor) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if len(f.initErrs) > 0 {
		err := f.initErrs[0]
		f.initErrs = f.initErrs[1:]
		return err
	}
	return nil
}

func (f *FakeSensor) ReadMeasurements() (Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if len(f.steps) == 0 {
		return f.last, nil
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	if s.err != nil {
		return Measurement{}, s.err
	}
	f.last = s.m
	return s.m, nil
}

func (f *FakeSensor) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakeSensor) InitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

func (f *FakeSensor) ReadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls
}

func (f *FakeSensor) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
