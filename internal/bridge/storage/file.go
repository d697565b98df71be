package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
)

// FileStore keeps one JSON file per key under <dir>/<namespace>/. Files are
// named by the sha256 of the key so name length never depends on the key;
// the key itself is stored in the file. Reads are served from an in-memory
// cache once a key has been seen.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	cache sync.Map
}

type fileEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewFileStore creates the root directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if v, ok := s.cache.Load(entryKey(namespace, key)); ok {
		return v.(string), true, nil
	}

	data, err := os.ReadFile(s.path(namespace, key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var entry fileEntry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return "", false, fmt.Errorf("corrupt entry: %w", err)
	}
	s.cache.Store(entryKey(namespace, key), entry.Value)
	return entry.Value, true, nil
}

func (s *FileStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := sonic.Marshal(fileEntry{Key: key, Value: value})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nsDir := filepath.Join(s.dir, namespace)
	if err := os.MkdirAll(nsDir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(nsDir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(namespace, key)); err != nil {
		return err
	}

	s.cache.Store(entryKey(namespace, key), value)
	return nil
}

func (s *FileStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nsDir := filepath.Join(s.dir, namespace)
	if _, err := os.Stat(nsDir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(nsDir), "*.json")
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(matches))
	for _, name := range matches {
		data, err := os.ReadFile(filepath.Join(nsDir, name))
		if err != nil {
			return nil, err
		}
		var entry fileEntry
		if err := sonic.Unmarshal(data, &entry); err != nil {
			continue
		}
		keys = append(keys, entry.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) path(namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, namespace, hex.EncodeToString(sum[:])+".json")
}
