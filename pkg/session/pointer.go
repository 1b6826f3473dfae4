package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Keys used in a PointerStore.
const (
	SessionPointerKey = "session"
	LastViewedKey     = "bookID"
)

// PointerStore is the small key-value store that survives restarts.
type PointerStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryPointerStore keeps pointers in-process.
type MemoryPointerStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryPointerStore initializes an empty pointer store.
func NewMemoryPointerStore() *MemoryPointerStore {
	return &MemoryPointerStore{values: make(map[string]string)}
}

func (m *MemoryPointerStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryPointerStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryPointerStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// FilePointerStore keeps all pointers in one JSON file, replaced atomically
// on every write.
type FilePointerStore struct {
	path string
	mu   sync.Mutex
}

// NewFilePointerStore creates the parent directory if missing.
func NewFilePointerStore(path string) (*FilePointerStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("pointer file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pointer dir: %w", err)
	}
	return &FilePointerStore{path: path}, nil
}

func (f *FilePointerStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FilePointerStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value
	return f.save(values)
}

func (f *FilePointerStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.save(values)
}

func (f *FilePointerStore) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pointers: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse pointers: %w", err)
	}
	return values, nil
}

func (f *FilePointerStore) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write pointers: %w", err)
	}
	return os.Rename(tmp, f.path)
}
