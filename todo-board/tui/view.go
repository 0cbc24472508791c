package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"prism-todo/todo-api/domain"
)

// View renders the board.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(m.renderColumns())
	b.WriteByte('\n')
	b.WriteString(m.renderStatus())
	b.WriteByte('\n')
	if m.adding {
		b.WriteString(m.input.View())
	} else {
		b.WriteString(m.help.View(m.keys))
	}
	return b.String()
}

func (m Model) renderHeader() string {
	title := headerStyle.Render("Prism Todo")
	if m.opts.User != "" {
		title += " " + userStyle.Render(m.opts.User)
	}
	if m.narrow() && m.carousel.Count() > 0 {
		title += " " + userStyle.Render(fmt.Sprintf("%d/%d", m.carousel.Index()+1, m.carousel.Count()))
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(title)
}

func (m Model) renderColumns() string {
	cols := m.layout()
	if len(cols) == 0 {
		return statusStyle.Render("window too small")
	}
	session := m.coord.Session()
	rendered := make([]string, len(cols))
	for i, c := range cols {
		style := columnStyle
		switch {
		case session.Active && string(session.Hover) == string(c.state):
			style = dropColumnStyle
		case c.index == m.focusCol:
			style = focusedColumnStyle
		}
		w := c.innerWidth()
		h := c.rect.Bottom - c.rect.Top + 1 - columnChrome
		rendered[i] = style.Width(w).Height(h).MaxHeight(h + columnChrome).Render(m.renderColumnBody(c, session.Item))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) renderColumnBody(c columnLayout, dragged string) string {
	w := c.innerWidth()
	clip := lipgloss.NewStyle().MaxWidth(w)
	tasks := m.proj.Column(c.state)

	lines := []string{
		clip.Render(columnTitleStyle.Render(fmt.Sprintf("%s (%d)", c.state.Title(), len(tasks)))),
		ruleStyle.Render(strings.Repeat("─", w)),
	}
	offset := m.scroll[c.state]
	end := min(offset+c.visibleCards(), len(tasks))
	for row := offset; row < end; row++ {
		t := tasks[row]
		title, meta := cardLines(t, w)
		style := cardStyle
		switch {
		case t.ID == dragged:
			style = draggedCardStyle
		case c.index == m.focusCol && row == m.focusRow:
			style = selectedCardStyle
		}
		lines = append(lines, style.Render(title), cardMetaStyle.Render(meta))
	}
	return strings.Join(lines, "\n")
}

// cardLines returns the two card rows padded or clipped to width w.
func cardLines(t domain.Task, w int) (string, string) {
	box := "[ ]"
	if isChecked(t.State) {
		box = "[x]"
	}
	meta := t.Description
	if t.DueDate > 0 {
		meta = "due " + time.UnixMilli(t.DueDate).Format("2006-01-02")
		if t.PlannedFinishDate > 0 {
			meta += " plan " + time.UnixMilli(t.PlannedFinishDate).Format("01-02")
		}
	}
	return fit(box+" "+t.Title, w), fit("    "+meta, w)
}

func fit(s string, w int) string {
	if w <= 0 {
		return ""
	}
	s = lipgloss.NewStyle().MaxWidth(w).Render(s)
	if pad := w - lipgloss.Width(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

func (m Model) renderStatus() string {
	if m.toast != "" {
		return toastStyle.Render(m.toast)
	}
	if s := m.coord.Session(); s.Active {
		title := s.Item
		if state, row, ok := m.proj.Find(s.Item); ok {
			title = m.proj.Column(state)[row].Title
		}
		target := "nowhere"
		if s.Hover != "" {
			target = domain.State(s.Hover).Title()
		}
		return statusStyle.Render(fmt.Sprintf("moving %q to %s", title, target))
	}
	if m.loading {
		return statusStyle.Render("syncing...")
	}
	total := 0
	for _, s := range m.proj.States() {
		total += len(m.proj.Column(s))
	}
	return statusStyle.Render(fmt.Sprintf("%d tasks", total))
}
