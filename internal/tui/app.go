package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the dashboard. It cycles between Bubble Tea and an $EDITOR
// session on the chosen file until the user quits.
func Run(ctx context.Context, backend Backend) error {
	flash, flashIsError := "", false
	for {
		m := newModel(backend, flash, flashIsError)
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		result, err := p.Run()
		if err != nil {
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("TUI error: %w", err)
		}

		final := result.(model)
		if final.quitting || final.editTarget == nil {
			return nil
		}

		flash, err = editFile(ctx, backend.Files, *final.editTarget, editorCommand)
		flashIsError = err != nil
		if err != nil {
			flash = fmt.Sprintf("Edit %s/%s failed: %s", final.editTarget.container, final.editTarget.file, describe(err))
		}
	}
}

// editorCommand runs $VISUAL or $EDITOR (falling back to vi) on path,
// attached to the terminal.
func editorCommand(path string) *exec.Cmd {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	args := strings.Fields(editor)
	cmd := exec.Command(args[0], append(args[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// editFile copies the file into a private scratch file, runs the editor on
// it, and writes the result back through files when it changed.
func editFile(ctx context.Context, files Files, t target, editor func(string) *exec.Cmd) (string, error) {
	original, err := files.Read(ctx, t.container, t.file)
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "modidock-edit-")
	if err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	scratch := filepath.Join(dir, filepath.Base(t.file))
	if err := os.WriteFile(scratch, original, 0o600); err != nil {
		return "", fmt.Errorf("writing scratch file: %w", err)
	}

	if err := editor(scratch).Run(); err != nil {
		return "", fmt.Errorf("running editor: %w", err)
	}

	edited, err := os.ReadFile(scratch)
	if err != nil {
		return "", fmt.Errorf("reading scratch file: %w", err)
	}
	if bytes.Equal(edited, original) {
		return fmt.Sprintf("No changes to %s/%s", t.container, t.file), nil
	}
	if err := files.Write(ctx, t.container, t.file, edited); err != nil {
		return "", err
	}
	return fmt.Sprintf("Saved %s/%s (previous version backed up)", t.container, t.file), nil
}
