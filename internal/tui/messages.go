package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zpdzap/modidock/internal/engine"
)

const (
	statusPollTimeout = 2 * time.Second
	previewTimeout    = 5 * time.Second
)

// statusTickMsg triggers a status refresh poll.
type statusTickMsg time.Time

// statusesMsg carries a fresh engine state per container id.
type statusesMsg map[string]engine.Status

// previewMsg carries the contents of one file for the preview pane.
type previewMsg struct {
	target target
	preview
}

// restartedMsg is sent when a restart finishes.
type restartedMsg struct {
	id  string
	err error
}

type confirmRestartExpiredMsg struct{}

// tickCmd returns a command that sends a tick every 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

func (m model) refreshStatuses() tea.Cmd {
	entries := m.backend.Catalog.Entries()
	containers := m.backend.Containers
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), statusPollTimeout)
		defer cancel()
		out := make(statusesMsg, len(entries))
		for _, e := range entries {
			out[e.ID] = containers.Status(ctx, e.ID)
		}
		return out
	}
}

// loadPreview reads the selected file unless it is already cached.
func (m model) loadPreview() tea.Cmd {
	r, ok := m.selected()
	if !ok {
		return nil
	}
	t, ok := r.target()
	if !ok {
		return nil
	}
	if _, cached := m.previews[t]; cached {
		return nil
	}
	files := m.backend.Files
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), previewTimeout)
		defer cancel()
		data, err := files.Read(ctx, t.container, t.file)
		return previewMsg{target: t, preview: preview{contents: string(data), err: err}}
	}
}

func (m model) restart(id string) tea.Cmd {
	containers := m.backend.Containers
	return func() tea.Msg {
		return restartedMsg{id: id, err: containers.Restart(context.Background(), id)}
	}
}
