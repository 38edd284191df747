package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the container document lives inside the modidock image.
const DefaultPath = "/app/config/editable-config.json"

// Format is the on-disk encoding of a config document.
type Format int

const (
	FormatJSON Format = iota // JSON, with JSONC comments and trailing commas allowed
	FormatYAML
)

// FormatFor picks the document format from the file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Document is the editable-container configuration.
type Document struct {
	Containers []Container `json:"containers" yaml:"containers"`
}

// Container declares one managed container and the files an operator may edit.
type Container struct {
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// ContainerID is the older spelling of ID. Parse folds it into ID.
	ContainerID string `json:"containerId,omitempty" yaml:"containerId,omitempty"`
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
	VolumeRoot  string `json:"volumeRoot" yaml:"volumeRoot"`
	Files       []File `json:"files" yaml:"files"`
}

// File is one allowlisted path, relative to the container's volume root.
type File struct {
	Path  string `json:"path" yaml:"path"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// UnmarshalJSON accepts either {"path": ..., "label": ...} or a bare path string.
func (f *File) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		*f = File{Path: path}
		return nil
	}
	type plain File
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = File(p)
	return nil
}

// Load reads and validates the document at path. Every failure is an *Error.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Source: path, Err: fmt.Errorf("reading config: %w", err)}
	}
	doc, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, &Error{Source: path, Err: err}
	}
	return doc, nil
}

// Parse decodes, schema-checks, normalizes and validates a document.
func Parse(data []byte, format Format) (*Document, error) {
	raw, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := doc.normalize(); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func toJSON(data []byte, format Format) ([]byte, error) {
	if format == FormatJSON {
		return jsonc.ToJSON(data), nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return raw, nil
}

func (d *Document) normalize() error {
	for i := range d.Containers {
		c := &d.Containers[i]
		if c.ContainerID != "" {
			if c.ID != "" && c.ID != c.ContainerID {
				return fmt.Errorf("containers[%d]: id %q and containerId %q disagree", i, c.ID, c.ContainerID)
			}
			c.ID = c.ContainerID
			c.ContainerID = ""
		}
		for j := range c.Files {
			if c.Files[j].Label == "" {
				c.Files[j].Label = c.Files[j].Path
			}
		}
	}
	return nil
}

// Validate checks the rules the schema cannot express.
func (d *Document) Validate() error {
	var errs []error
	seen := make(map[string]int, len(d.Containers))
	for i, c := range d.Containers {
		switch {
		case strings.TrimSpace(c.ID) == "":
			errs = append(errs, fmt.Errorf("containers[%d]: id is required", i))
		case c.ID != strings.TrimSpace(c.ID):
			errs = append(errs, fmt.Errorf("containers[%d]: id %q has surrounding whitespace", i, c.ID))
		default:
			if prev, dup := seen[c.ID]; dup {
				errs = append(errs, fmt.Errorf("containers[%d]: duplicate id %q (first declared at containers[%d])", i, c.ID, prev))
			} else {
				seen[c.ID] = i
			}
		}

		if !filepath.IsAbs(c.VolumeRoot) {
			errs = append(errs, fmt.Errorf("containers[%d]: volumeRoot %q must be an absolute path", i, c.VolumeRoot))
		}

		paths := make(map[string]struct{}, len(c.Files))
		for j, f := range c.Files {
			if f.Path == "" {
				errs = append(errs, fmt.Errorf("containers[%d].files[%d]: path is required", i, j))
				continue
			}
			if _, dup := paths[f.Path]; dup {
				errs = append(errs, fmt.Errorf("containers[%d].files[%d]: duplicate path %q", i, j, f.Path))
			}
			paths[f.Path] = struct{}{}
		}
	}
	return errors.Join(errs...)
}

// Save writes doc to path, as YAML or indented JSON depending on the extension.
func Save(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	// The schema wants arrays, not nulls.
	out := Document{Containers: make([]Container, len(doc.Containers))}
	copy(out.Containers, doc.Containers)
	for i := range out.Containers {
		if out.Containers[i].Files == nil {
			out.Containers[i].Files = []File{}
		}
	}
	doc = &out

	var (
		data []byte
		err  error
	)
	if FormatFor(path) == FormatYAML {
		data, err = yaml.Marshal(doc)
	} else {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Exists returns true if a config document is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
