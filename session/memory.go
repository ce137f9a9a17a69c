package session

import (
	"context"
	"sync"
)

// MemoryStore keeps the session in process memory. The zero value is ready to use.
type MemoryStore struct {
	mtx  sync.RWMutex
	data map[Key]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[Key]string{}}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (string, bool, error) {
	if err := CheckKey(key); err != nil {
		return "", false, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key Key, value string) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	s.mtx.Lock()
	if s.data == nil {
		s.data = map[Key]string{}
	}
	s.data[key] = value
	s.mtx.Unlock()
	return nil
}
