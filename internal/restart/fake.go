package restart

import (
	"context"
	"sync"
)

// FakeSystem records host actions instead of performing them.
type FakeSystem struct {
	mu        sync.Mutex
	Syncs     int
	Reboots   int
	PowerOffs int
	Err       error
}

func (f *FakeSystem) Sync() {
	f.mu.Lock()
	f.Syncs++
	f.mu.Unlock()
}

func (f *FakeSystem) Reboot() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reboots++
	return f.Err
}

func (f *FakeSystem) PowerOff() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PowerOffs++
	return f.Err
}

// MemoryStore is an in-memory RecordStore.
type MemoryStore struct {
	mu      sync.Mutex
	rec     Record
	Writes  []Record
	ReadErr error
}

func NewMemoryStore(initial Record) *MemoryStore {
	return &MemoryStore{rec: initial}
}

func (s *MemoryStore) Read(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return Record{}, s.ReadErr
	}
	return s.rec, nil
}

func (s *MemoryStore) Write(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = r
	s.Writes = append(s.Writes, r)
	return nil
}

// Current returns the last written record.
func (s *MemoryStore) Current() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}
