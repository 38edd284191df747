package registry

import (
	"log/slog"
	"sync/atomic"
)

// Store serves the current registry snapshot and replaces it on Reload.
type Store struct {
	path    string
	current atomic.Pointer[Registry]
}

// NewStore loads the document at path. The error is a *config.Error and the
// caller should not start serving.
func NewStore(path string) (*Store, error) {
	r, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.current.Store(r)
	return s, nil
}

// Path returns the config document the store reloads from.
func (s *Store) Path() string { return s.path }

// Current returns the snapshot in service.
func (s *Store) Current() *Registry { return s.current.Load() }

func (s *Store) Lookup(id string) (ContainerEntry, bool) { return s.Current().Lookup(id) }

func (s *Store) Entries() []ContainerEntry { return s.Current().Entries() }

// Reload rebuilds the registry from disk and swaps it in. On error the
// previous snapshot stays in service.
func (s *Store) Reload() error {
	r, err := Load(s.path)
	if err != nil {
		return err
	}
	old := s.current.Swap(r)
	slog.Info("registry reloaded", "component", "registry", "containers", r.Len(), "previous", old.Len())
	return nil
}
