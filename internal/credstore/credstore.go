package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	tokenFile = "token"
	prefsFile = "prefs.yaml"
)

// Prefs is the small bag of UI state the client keeps between runs.
type Prefs struct {
	SidebarCollapsed bool `yaml:"sidebar_collapsed"`
}

// Store persists the bearer credential and UI prefs in the client config
// directory. An absent token file means "unauthenticated". The token is the
// only secret here and is written with 0600.
type Store struct {
	mu  sync.Mutex
	dir string
}

func New(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("credstore dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create credstore dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) tokenPath() string { return filepath.Join(s.dir, tokenFile) }
func (s *Store) prefsPath() string { return filepath.Join(s.dir, prefsFile) }

// Token returns the stored credential and whether one is present.
func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.tokenPath())
	if err != nil {
		return "", false
	}
	tok := strings.TrimSpace(string(raw))
	if tok == "" {
		return "", false
	}
	return tok, true
}

func (s *Store) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("refusing to store an empty token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.tokenPath(), []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Clear removes the credential. Removing an already-absent token is not an
// error so session invalidation stays idempotent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.tokenPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

func (s *Store) Prefs() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p Prefs
	raw, err := os.ReadFile(s.prefsPath())
	if err != nil {
		return p
	}
	_ = yaml.Unmarshal(raw, &p)
	return p
}

func (s *Store) SetPrefs(p Prefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.WriteFile(s.prefsPath(), raw, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
