package memory

import (
	"context"
	"sync"

	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

type KeyValueStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ ports.KeyValueStore = (*KeyValueStore)(nil)

func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{values: make(map[string][]byte)}
}

func (s *KeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ports.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *KeyValueStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.values[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}
