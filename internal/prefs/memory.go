package prefs

import (
	"context"

	"github.com/cornelk/hashmap"
)

// MemoryBackend keeps preferences in process memory only.
type MemoryBackend struct {
	values *hashmap.Map[string, string]
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: hashmap.New[string, string]()}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := b.values.Get(key)
	return v, ok, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.values.Set(key, value)
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
