package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zpdzap/modidock/internal/engine"
)

func (m model) View() string {
	if m.quitting {
		return ""
	}

	rows := m.rows()

	title := "modidock"
	stats := statsStyle.Render(fmt.Sprintf("%d containers", countContainers(rows)))
	gap := max(1, m.width-lipgloss.Width(title)-lipgloss.Width(stats)-4)
	header := headerStyle.Width(m.width).Render(title + strings.Repeat(" ", gap) + stats)

	if len(rows) == 0 {
		return m.renderEmptyState(header)
	}
	return m.renderSplitView(header, rows)
}

func countContainers(rows []row) int {
	n := 0
	for _, r := range rows {
		if r.file < 0 {
			n++
		}
	}
	return n
}

func (m model) renderEmptyState(header string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")
	b.WriteString(emptyStyle.Render("No containers configured. Run `modidock init` to write a config."))
	b.WriteString("\n\n")
	b.WriteString(hotkeysStyle.Render("[?] help  [q] quit"))
	b.WriteString("\n")
	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	m.renderStatusAndInput(&b)

	if m.showHelp {
		return m.renderHelpOverlay(b.String())
	}
	return b.String()
}

func (m model) renderSplitView(header string, rows []row) string {
	var b strings.Builder

	b.WriteString(header)
	b.WriteString("\n")

	for i, r := range rows {
		b.WriteString(m.renderRow(i, r))
		b.WriteString("\n")
	}

	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	// header(1) + rows + divider(1) + bottom divider(1) + footer
	footerLines := 3
	if m.commanding {
		footerLines++
	}
	previewHeight := max(3, m.height-1-len(rows)-1-1-footerLines)
	b.WriteString(m.renderPreview(previewHeight))

	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	if m.commanding {
		b.WriteString(hotkeysStyle.Render("[enter] execute  [esc] cancel"))
	} else if m.confirmRestart {
		b.WriteString(confirmStyle.Render(fmt.Sprintf("Restart %s? Press r again to confirm, any other key to cancel", m.confirmRestartID)))
	} else {
		b.WriteString(hotkeysStyle.Render("[↑↓] select  [enter] edit  [r]estart  [/] command  [?] help  [q] quit"))
	}
	b.WriteString("\n")

	m.renderStatusAndInput(&b)

	if m.showHelp {
		return m.renderHelpOverlay(b.String())
	}
	return b.String()
}

func (m model) renderRow(index int, r row) string {
	cursor := "  "
	nStyle := nameStyle
	if index == m.cursor {
		cursor = "▸ "
		nStyle = selectedNameStyle
	}

	if r.file >= 0 {
		f := r.entry.AllowedFiles[r.file]
		return fmt.Sprintf("  %s    %s  %s", cursor, nStyle.Render(f.Label), pathStyle.Render(f.RelativePath))
	}

	status, ok := m.statuses[r.entry.ID]
	if !ok {
		status = engine.StatusUnknown
	}
	icon, iStyle := statusIcon(status)
	name := r.entry.DisplayName
	if name == "" {
		name = r.entry.ID
	}

	parts := []string{fmt.Sprintf("  %s%s %s", cursor, iStyle.Render(icon), nStyle.Render(name))}
	if name != r.entry.ID {
		parts = append(parts, labelStyle.Render(r.entry.ID))
	}
	parts = append(parts, iStyle.Render(string(status)))
	return strings.Join(parts, "  ")
}

func statusIcon(s engine.Status) (string, lipgloss.Style) {
	switch s {
	case engine.StatusRunning:
		return "●", statusRunning
	case engine.StatusStopped, engine.StatusMissing, engine.StatusError:
		return "○", statusStopped
	case engine.StatusStarting:
		return "◍", statusOther
	default:
		return "◌", statusOther
	}
}

func (m model) renderPreview(height int) string {
	var b strings.Builder
	pad := func(from int) {
		for i := from; i < height; i++ {
			b.WriteString("\n")
		}
	}
	placeholder := func(text string) string {
		b.WriteString(previewEmptyStyle.Render(text))
		b.WriteString("\n")
		pad(1)
		return b.String()
	}

	r, ok := m.selected()
	if !ok {
		return placeholder("Nothing selected")
	}
	t, ok := r.target()
	if !ok {
		if len(r.entry.AllowedFiles) == 0 {
			return placeholder(fmt.Sprintf("%s has no editable files", r.entry.ID))
		}
		return placeholder(fmt.Sprintf("%d editable files. Select one to preview it.", len(r.entry.AllowedFiles)))
	}

	p, ok := m.previews[t]
	switch {
	case !ok:
		return placeholder("Loading...")
	case p.err != nil:
		return placeholder("Cannot read file: " + describe(p.err))
	case p.contents == "":
		return placeholder("(empty file)")
	}

	lines := strings.Split(strings.TrimRight(p.contents, "\n"), "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for _, line := range lines {
		line = strings.ReplaceAll(line, "\t", "    ")
		if w := m.width - 4; w > 0 && lipgloss.Width(line) > w {
			line = truncate(line, w)
		}
		b.WriteString(previewStyle.Render(line))
		b.WriteString("\n")
	}
	pad(len(lines))
	return b.String()
}

// truncate cuts s to at most w runes.
func truncate(s string, w int) string {
	runes := []rune(s)
	if len(runes) > w {
		runes = runes[:w]
	}
	return string(runes)
}

func (m model) renderStatusAndInput(b *strings.Builder) {
	if m.message != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.message))
		} else {
			b.WriteString(messageStyle.Render(m.message))
		}
		b.WriteString("\n")
	}
	if m.commanding {
		b.WriteString("  ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
}

func (m model) renderHelpOverlay(base string) string {
	usages := make([]string, 0, len(commands))
	for _, c := range commands {
		usages = append(usages, helpDescStyle.Render("  "+c.usage()))
	}

	lines := []string{
		helpHeaderStyle.Render("Navigation"),
		helpKeyStyle.Render("  ↑/k  ↓/j") + helpDescStyle.Render("   Select container or file"),
		helpKeyStyle.Render("  Enter/e") + helpDescStyle.Render("     Edit file in $EDITOR"),
		"",
		helpHeaderStyle.Render("Actions"),
		helpKeyStyle.Render("  r") + helpDescStyle.Render("           Restart selected container"),
		"",
		helpHeaderStyle.Render("Commands"),
		helpKeyStyle.Render("  /") + helpDescStyle.Render("           Open command bar"),
	}
	lines = append(lines, usages...)
	lines = append(lines,
		"",
		helpKeyStyle.Render("  q")+helpDescStyle.Render("  quit")+"     "+helpKeyStyle.Render("?")+helpDescStyle.Render("  close this help"),
	)
	help := strings.Join(lines, "\n")

	modal := helpStyle.Render(help)
	modalWidth := lipgloss.Width(modal)
	modalHeight := lipgloss.Height(modal)

	baseLines := strings.Split(base, "\n")
	xOffset := max(0, (m.width-modalWidth)/2)
	yOffset := max(0, (m.height-modalHeight)/2)

	for i, mLine := range strings.Split(modal, "\n") {
		row := yOffset + i
		if row < len(baseLines) {
			padding := strings.Repeat(" ", xOffset)
			baseLines[row] = padding + mLine + strings.Repeat(" ", max(0, m.width-xOffset-lipgloss.Width(mLine)))
		}
	}
	return strings.Join(baseLines, "\n")
}
