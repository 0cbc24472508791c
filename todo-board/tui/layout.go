package tui

import (
	"prism-todo/todo-api/domain"
	"prism-todo/todo-board/dnd"
)

const (
	headerHeight = 1
	footerHeight = 2
	// border top and bottom
	columnChrome = 2
	// column title and rule
	columnHeaderRows = 2
	cardHeight       = 2
)

type columnLayout struct {
	index int
	state domain.State
	rect  dnd.Rect
}

// firstCardRow is the screen row of the first visible card.
func (c columnLayout) firstCardRow() int {
	return c.rect.Top + 1 + columnHeaderRows
}

func (c columnLayout) visibleCards() int {
	n := (c.rect.Bottom - c.rect.Top + 1 - columnChrome - columnHeaderRows) / cardHeight
	return max(n, 0)
}

func (c columnLayout) innerWidth() int {
	return max(c.rect.Right-c.rect.Left+1-2, 0)
}

func (m Model) narrow() bool {
	return m.width < m.opts.CarouselBreakpoint
}

func (m Model) columnsHeight() int {
	return m.height - headerHeight - footerHeight
}

// layout returns the on-screen rectangle of every visible column. In narrow mode only
// the carousel's current slide is visible.
func (m Model) layout() []columnLayout {
	states := m.proj.States()
	n := len(states)
	h := m.columnsHeight()
	if n == 0 || m.width <= 0 || h < columnChrome+columnHeaderRows {
		return nil
	}
	if m.narrow() {
		i := m.carousel.Index()
		return []columnLayout{{index: i, state: states[i], rect: dnd.RectOf(0, headerHeight, m.width, h)}}
	}
	w := m.width / n
	if w < 4 {
		return nil
	}
	out := make([]columnLayout, n)
	for i, s := range states {
		x := i * w
		cw := w
		if i == n-1 {
			cw = m.width - x
		}
		out[i] = columnLayout{index: i, state: s, rect: dnd.RectOf(x, headerHeight, cw, h)}
	}
	return out
}

// cardAt maps a screen position to a column index and task row.
func (m Model) cardAt(p dnd.Point) (int, int, bool) {
	for _, c := range m.layout() {
		if !c.rect.Contains(p) {
			continue
		}
		top := c.firstCardRow()
		if p.Y < top || p.Y >= top+c.visibleCards()*cardHeight || p.X == c.rect.Left || p.X == c.rect.Right {
			return 0, 0, false
		}
		row := (p.Y-top)/cardHeight + m.scroll[c.state]
		if row >= len(m.proj.Column(c.state)) {
			return 0, 0, false
		}
		return c.index, row, true
	}
	return 0, 0, false
}

// syncZones registers exactly the visible columns as drop zones.
func (m *Model) syncZones() {
	for _, id := range m.coord.Zones() {
		m.coord.UnregisterZone(id)
	}
	for _, c := range m.layout() {
		m.coord.RegisterZone(dnd.ID(c.state), dnd.Fixed(c.rect))
	}
}

// ensureVisible scrolls the focused column so the focused row is on screen.
func (m *Model) ensureVisible() {
	states := m.proj.States()
	if m.focusCol < 0 || m.focusCol >= len(states) {
		return
	}
	state := states[m.focusCol]
	visible := 1
	for _, c := range m.layout() {
		if c.state == state {
			visible = max(c.visibleCards(), 1)
		}
	}
	offset := m.scroll[state]
	switch {
	case m.focusRow < offset:
		offset = m.focusRow
	case m.focusRow >= offset+visible:
		offset = m.focusRow - visible + 1
	}
	maxOffset := max(len(m.proj.Column(state))-visible, 0)
	m.scroll[state] = min(max(offset, 0), maxOffset)
}
