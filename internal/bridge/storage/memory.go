package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	entries sync.Map // namespace + "\x00" + key -> string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := s.entries.Load(entryKey(namespace, key))
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.entries.Store(entryKey(namespace, key), value)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := namespace + "\x00"
	var keys []string
	s.entries.Range(func(k, _ any) bool {
		if rest, ok := strings.CutPrefix(k.(string), prefix); ok {
			keys = append(keys, rest)
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

func entryKey(namespace, key string) string {
	return namespace + "\x00" + key
}
