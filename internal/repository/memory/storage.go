// Package memory holds in-process implementations of the repository ports,
// used when no database or object store is configured and in tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

type Storage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ ports.ObjectStorage = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{objects: make(map[string][]byte)}
}

func objectPath(bucket, objectName string) string {
	return bucket + "/" + objectName
}

func (s *Storage) Upload(ctx context.Context, bucket, objectName, contentType string, reader io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("upload %s: read %d bytes, expected %d", objectName, len(data), size)
	}
	s.mu.Lock()
	s.objects[objectPath(bucket, objectName)] = data
	s.mu.Unlock()
	return "memory://" + objectPath(bucket, objectName), nil
}

func (s *Storage) Open(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objects[objectPath(bucket, objectName)]
	s.mu.RUnlock()
	if !ok {
		return nil, ports.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Storage) Remove(ctx context.Context, bucket, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectPath(bucket, objectName)
	if _, ok := s.objects[key]; !ok {
		return ports.ErrObjectNotFound
	}
	delete(s.objects, key)
	return nil
}

// Len is the number of stored objects.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
