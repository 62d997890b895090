// Package appstate is the shared application state store the reconciler
// writes into.
//
// The contract is intentionally small: set a field to a value, durably.
// Each field is backed by its own state/<field>.json file, independent of any
// job workspace, so reconciled values survive job cleanup.
package appstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var fieldNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Store holds the live key/value view plus the durable per-field backing.
type Store struct {
	dir string

	mu     sync.RWMutex
	fields map[string]any
}

func NewStore(dir string) *Store {
	return &Store{
		dir:    strings.TrimSpace(dir),
		fields: make(map[string]any),
	}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) FieldPath(field string) string {
	return filepath.Join(s.dir, field+".json")
}

// Set writes value under field, persisting the backing file before updating
// the in-memory view. Field names are restricted so they map safely to
// file names.
func (s *Store) Set(field string, value any) error {
	field = strings.TrimSpace(field)
	if !fieldNameRe.MatchString(field) {
		return fmt.Errorf("invalid state field name %q", field)
	}
	if s.dir == "" {
		return fmt.Errorf("state dir is empty")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	b, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state value: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.dir, field+".json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.FieldPath(field)); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}

	s.mu.Lock()
	s.fields[field] = value
	s.mu.Unlock()
	return nil
}

// Get returns the in-memory value for field.
func (s *Store) Get(field string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.fields[field]
	return v, ok
}

// Fields returns the known field names, sorted.
func (s *Store) Fields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.fields))
	for k := range s.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Load rebuilds the in-memory view from the backing files. Unparseable
// files are skipped; the reconciler rewrites them on the next apply.
func (s *Store) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read state dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			continue
		}
		s.fields[strings.TrimSuffix(name, ".json")] = v
	}
	return nil
}
