package store

import (
	"context"
	"slices"
	"sync"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]map[int32]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]map[int32]Checkpoint)
	return nil
}

func (s *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	ticks, ok := s.runs[cp.Run]
	if !ok {
		ticks = make(map[int32]Checkpoint)
		s.runs[cp.Run] = ticks
	}
	cp.Payload = append([]byte(nil), cp.Payload...)
	ticks[cp.Tick] = cp
	return nil
}

func (s *MemoryStore) Load(_ context.Context, run string, tick int32) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return Checkpoint{}, false, ErrNotInitialized
	}
	cp, ok := s.runs[run][tick]
	return cp, ok, nil
}

func (s *MemoryStore) Latest(ctx context.Context, run string) (Checkpoint, bool, error) {
	ticks, err := s.List(ctx, run)
	if err != nil || len(ticks) == 0 {
		return Checkpoint{}, false, err
	}
	return s.Load(ctx, run, ticks[len(ticks)-1])
}

func (s *MemoryStore) List(_ context.Context, run string) ([]int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	ticks := make([]int32, 0, len(s.runs[run]))
	for tick := range s.runs[run] {
		ticks = append(ticks, tick)
	}
	slices.Sort(ticks)
	return ticks, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
