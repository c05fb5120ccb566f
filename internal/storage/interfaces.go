package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when nothing is stored under a key.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a flat byte store addressed by slash-separated relative keys.
type Storage interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, pattern string) ([]string, error)
}
