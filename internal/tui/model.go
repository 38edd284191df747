package tui

import (
	"context"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/zpdzap/modidock/internal/engine"
	"github.com/zpdzap/modidock/internal/registry"
)

// Catalog lists the managed containers.
type Catalog interface {
	Entries() []registry.ContainerEntry
}

// Files reads and writes allowlisted files.
type Files interface {
	Read(ctx context.Context, containerID, rel string) ([]byte, error)
	Write(ctx context.Context, containerID, rel string, contents []byte) error
}

// Containers restarts containers and reports their engine state.
type Containers interface {
	Restart(ctx context.Context, containerID string) error
	Status(ctx context.Context, containerID string) engine.Status
}

// Backend is everything the dashboard talks to.
type Backend struct {
	Catalog    Catalog
	Files      Files
	Containers Containers
}

// target names one allowlisted file.
type target struct {
	container string
	file      string
}

// row is one line of the dashboard list: a container header, or one of its
// files when file >= 0.
type row struct {
	entry registry.ContainerEntry
	file  int
}

func (r row) target() (target, bool) {
	if r.file < 0 {
		return target{}, false
	}
	return target{container: r.entry.ID, file: r.entry.AllowedFiles[r.file].RelativePath}, true
}

// model is the Bubble Tea model for the modidock dashboard.
type model struct {
	backend    Backend
	input      textinput.Model
	cursor     int
	message    string
	isError    bool
	commanding bool // true when in command mode (/ pressed)
	quitting   bool
	editTarget *target // file to open in $EDITOR after tea quits
	width      int
	height     int

	statuses map[string]engine.Status
	previews map[target]preview

	showHelp bool

	// Double-press restart confirmation
	confirmRestart   bool
	confirmRestartID string
}

type preview struct {
	contents string
	err      error
}

func newModel(backend Backend, flash string, flashIsError bool) model {
	ti := textinput.New()
	ti.Placeholder = "edit <container> <file>, restart <container> | quit"
	ti.CharLimit = 256
	ti.Width = 80
	ti.Blur()

	// Initial size so the first render isn't at width=0
	w, h, _ := term.GetSize(int(os.Stdout.Fd()))
	if w == 0 {
		w = 80
	}
	if h == 0 {
		h = 24
	}

	return model{
		backend:  backend,
		input:    ti,
		width:    w,
		height:   h,
		message:  flash,
		isError:  flashIsError,
		statuses: make(map[string]engine.Status),
		previews: make(map[target]preview),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refreshStatuses(), m.loadPreview())
}

// rows flattens the catalog into list lines.
func (m model) rows() []row {
	var rows []row
	for _, e := range m.backend.Catalog.Entries() {
		rows = append(rows, row{entry: e, file: -1})
		for i := range e.AllowedFiles {
			rows = append(rows, row{entry: e, file: i})
		}
	}
	return rows
}

func (m model) selected() (row, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return row{}, false
	}
	return rows[m.cursor], true
}
