package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/diewo77/studio-console/auth"
)

// Credentials is what a client persists between runs.
type Credentials struct {
	Session *auth.Session `yaml:"session,omitempty"`
	// ReturnTo is the location a login redirect was issued from.
	ReturnTo string `yaml:"return_to,omitempty"`
}

// CredentialStore persists Credentials.
type CredentialStore interface {
	Load() (Credentials, error)
	Save(Credentials) error
}

// MemoryStore keeps credentials in memory.
type MemoryStore struct {
	mu    sync.Mutex
	creds Credentials
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCredentials(s.creds), nil
}

func (s *MemoryStore) Save(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = copyCredentials(c)
	return nil
}

// FileStore keeps credentials in a YAML file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

// Path is the backing file.
func (s *FileStore) Path() string { return s.path }

// Load returns empty credentials when the file does not exist.
func (s *FileStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials %s: %w", s.path, err)
	}
	return c, nil
}

func (s *FileStore) Save(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func copyCredentials(c Credentials) Credentials {
	if c.Session != nil {
		s := *c.Session
		c.Session = &s
	}
	return c
}
