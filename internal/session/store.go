package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgnsrekt/cargoviz-realtime/internal/model"
)

var ErrCorruptSession = errors.New("stored session is corrupt")

// Persisted is the stored form of a session.
type Persisted struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Store persists the session between runs.
type Store interface {
	// Load returns nil, nil when nothing is stored.
	Load() (*Persisted, error)
	Save(p Persisted) error
	Clear() error
}

// FileStore keeps the session in a JSON file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load() (*Persisted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return &p, nil
}

func (f *FileStore) Save(p Persisted) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	// Write then rename so a crash never leaves a half-written file.
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming session file: %w", err)
	}
	return nil
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu sync.Mutex
	p  *Persisted
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (*Persisted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.p == nil {
		return nil, nil
	}
	p := *m.p
	return &p, nil
}

func (m *MemoryStore) Save(p Persisted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = &p
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = nil
	return nil
}
