// Package registry holds the set of containers modidock is allowed to touch.
//
// A Registry is built once from a config document and never modified. Store
// publishes the current Registry behind an atomic pointer so a reload swaps the
// whole mapping at once and readers never see a half-built one.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zpdzap/modidock/internal/config"
)

// ErrUnknownContainer is returned when a container id is not in the registry.
var ErrUnknownContainer = errors.New("unknown container")

// FileDescriptor is one allowlisted file.
type FileDescriptor struct {
	RelativePath string
	Label        string
}

// ContainerEntry is a managed container. ID is the engine's own container name
// or id.
type ContainerEntry struct {
	ID           string
	DisplayName  string
	Icon         string
	VolumeRoot   string
	AllowedFiles []FileDescriptor
}

// Allows reports whether rel is declared verbatim in the allowlist.
func (e ContainerEntry) Allows(rel string) bool {
	for _, f := range e.AllowedFiles {
		if f.RelativePath == rel {
			return true
		}
	}
	return false
}

func (e ContainerEntry) clone() ContainerEntry {
	e.AllowedFiles = slices.Clone(e.AllowedFiles)
	return e
}

// Registry maps container ids to entries. It is safe for concurrent use
// because it is never mutated after construction.
type Registry struct {
	entries map[string]ContainerEntry
	order   []string
}

// New builds a registry from entries, rejecting empty or duplicate ids.
func New(entries []ContainerEntry) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]ContainerEntry, len(entries)),
		order:   make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("container id is required")
		}
		if _, dup := r.entries[e.ID]; dup {
			return nil, fmt.Errorf("duplicate container id %q", e.ID)
		}
		r.entries[e.ID] = e.clone()
		r.order = append(r.order, e.ID)
	}
	return r, nil
}

// FromDocument converts a validated config document into a registry.
func FromDocument(doc *config.Document) (*Registry, error) {
	entries := make([]ContainerEntry, 0, len(doc.Containers))
	for _, c := range doc.Containers {
		files := make([]FileDescriptor, 0, len(c.Files))
		for _, f := range c.Files {
			label := f.Label
			if label == "" {
				label = f.Path
			}
			files = append(files, FileDescriptor{RelativePath: f.Path, Label: label})
		}
		entries = append(entries, ContainerEntry{
			ID:           c.ID,
			DisplayName:  c.DisplayName,
			Icon:         c.Icon,
			VolumeRoot:   c.VolumeRoot,
			AllowedFiles: files,
		})
	}
	return New(entries)
}

// Load reads the config document at path and builds a registry from it.
// Any failure is a *config.Error.
func Load(path string) (*Registry, error) {
	doc, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	r, err := FromDocument(doc)
	if err != nil {
		return nil, &config.Error{Source: path, Err: err}
	}
	return r, nil
}

// Lookup returns the entry for id. A missing id is not an error.
func (r *Registry) Lookup(id string) (ContainerEntry, bool) {
	e, ok := r.entries[id]
	if !ok {
		return ContainerEntry{}, false
	}
	return e.clone(), true
}

// Entries returns every entry in document order.
func (r *Registry) Entries() []ContainerEntry {
	out := make([]ContainerEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].clone())
	}
	return out
}

// Len returns the number of containers.
func (r *Registry) Len() int { return len(r.order) }
