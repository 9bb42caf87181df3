package ports

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
