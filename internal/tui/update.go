package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zpdzap/modidock/internal/engine"
	"github.com/zpdzap/modidock/internal/pathguard"
	"github.com/zpdzap/modidock/internal/registry"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6 // account for "  > /" prefix
		return m, nil

	case statusTickMsg:
		return m, m.refreshStatuses()

	case statusesMsg:
		m.statuses = msg
		return m, tickCmd()

	case previewMsg:
		m.previews[msg.target] = msg.preview
		return m, nil

	case restartedMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("Restart %s failed: %s", msg.id, describe(msg.err))
			m.isError = true
		} else {
			m.message = fmt.Sprintf("Restarted %s", msg.id)
			m.isError = false
		}
		return m, m.refreshStatuses()

	case confirmRestartExpiredMsg:
		m.confirmRestart = false
		m.confirmRestartID = ""
		return m, nil

	case tea.KeyMsg:
		if m.commanding {
			return m.handleCommandMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	// Forward to input if in command mode
	if m.commanding {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleNormalMode handles keys when navigating the container list.
func (m model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		switch msg.String() {
		case "?", "esc":
			m.showHelp = false
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	// If confirming a restart, second r confirms, anything else cancels
	if m.confirmRestart {
		m.confirmRestart = false
		id := m.confirmRestartID
		m.confirmRestartID = ""
		if msg.String() == "r" {
			return m.startRestart(id)
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "/":
		m.commanding = true
		m.input.Focus()
		m.input.SetValue("")
		return m, textinput.Blink

	case "r":
		if r, ok := m.selected(); ok {
			m.confirmRestart = true
			m.confirmRestartID = r.entry.ID
			return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
				return confirmRestartExpiredMsg{}
			})
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "up", "k":
		if n := len(m.rows()); m.cursor > 0 {
			m.cursor--
		} else if n > 0 {
			m.cursor = n - 1
		}
		return m, m.loadPreview()

	case "down", "j":
		if m.cursor < len(m.rows())-1 {
			m.cursor++
		}
		return m, m.loadPreview()

	case "enter", "e":
		r, ok := m.selected()
		if !ok {
			return m, nil
		}
		t, ok := r.target()
		if !ok {
			m.message = fmt.Sprintf("Select one of %s's files to edit", r.entry.ID)
			m.isError = false
			return m, nil
		}
		m.editTarget = &t
		return m, tea.Quit
	}

	return m, nil
}

// handleCommandMode handles keys when the command input is active.
func (m model) handleCommandMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.commanding = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil

	case "enter":
		m.commanding = false
		m.input.Blur()
		return m.processInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) processInput() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if input == "" {
		return m, nil
	}

	// Allow commands with or without the / prefix
	if input[0] != '/' {
		input = "/" + input
	}
	cmd, err := ParseCommand(input)
	if err != nil {
		m.message = err.Error()
		m.isError = true
		return m, nil
	}
	if cmd == nil {
		return m, nil
	}

	switch cmd.Name {
	case "/edit":
		m.editTarget = &target{container: cmd.Args[0], file: cmd.Args[1]}
		return m, tea.Quit
	case "/restart":
		return m.startRestart(cmd.Args[0])
	default:
		m.quitting = true
		return m, tea.Quit
	}
}

func (m model) startRestart(id string) (tea.Model, tea.Cmd) {
	m.message = fmt.Sprintf("Restarting %s...", id)
	m.isError = false
	m.statuses[id] = engine.StatusStarting
	return m, m.restart(id)
}

// describe shortens the errors whose wrapped text would repeat what the
// operator already typed.
func describe(err error) string {
	switch {
	case errors.Is(err, registry.ErrUnknownContainer):
		return "unknown container"
	case errors.Is(err, pathguard.ErrForbidden):
		return "file is not editable"
	default:
		return err.Error()
	}
}
