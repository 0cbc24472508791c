package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"prism-todo/todo-api/domain"
	"prism-todo/todo-board/board"
	"prism-todo/todo-board/dnd"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if !m.narrow() {
			m.carousel.SlideTo(m.focusCol)
		}
		m.clampFocus()
		m.syncZones()
		return m, nil

	case tasksLoadedMsg:
		m.loading = false
		m.setProjection(msg.proj, msg.focusID)
		return m, nil

	case tasksPushedMsg:
		m.setProjection(board.Project(msg.tasks, m.manager.States()), "")
		return m, m.listen()

	case draggingMsg:
		m.onDragging(msg.point)
		return m, m.listen()

	case errMsg:
		m.loading = false
		m.log.WithError(msg.err).WithField("op", msg.op).Warn("board request failed")
		return m, m.showToast(fmt.Sprintf("%s failed: %v", msg.op, msg.err))

	case toastExpiredMsg:
		if msg.id == m.toastID {
			m.toast = ""
		}
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		if m.adding {
			return m.handleInput(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	p := dnd.Point{X: msg.X, Y: msg.Y}
	switch msg.Action {
	case tea.MouseActionPress:
		switch msg.Button {
		case tea.MouseButtonLeft:
			col, row, ok := m.cardAt(p)
			if !ok || m.adding {
				return m, nil
			}
			m.focusCol, m.focusRow = col, row
			task, _ := m.currentTask()
			m.coord.Start(p, task.ID)
		case tea.MouseButtonWheelUp:
			m.focusRow--
			m.clampFocus()
		case tea.MouseButtonWheelDown:
			m.focusRow++
			m.clampFocus()
		}

	case tea.MouseActionMotion:
		m.coord.Move(p)

	case tea.MouseActionRelease:
		if !m.coord.Active() {
			return m, nil
		}
		end := m.coord.End(p)
		if _, ok := board.MoveRequest(end); !ok {
			return m, nil
		}
		m.loading = true
		return m, m.dragEndCmd(end)
	}
	return m, nil
}

// onDragging slides the carousel when a dragged card is held at a screen edge.
func (m *Model) onDragging(p dnd.Point) {
	if !m.coord.Active() || !m.narrow() {
		return
	}
	if !m.scroller.Scroll(p, m.width) {
		return
	}
	m.focusCol = m.carousel.Index()
	m.focusRow = 0
	m.clampFocus()
	m.syncZones()
	m.coord.Move(p)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.cancel):
		if m.coord.Active() {
			m.coord.End(dnd.Point{X: -1, Y: -1})
		}

	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.left):
		m.focusColumn(m.focusCol - 1)

	case key.Matches(msg, m.keys.right):
		m.focusColumn(m.focusCol + 1)

	case key.Matches(msg, m.keys.up):
		m.focusRow--
		m.clampFocus()

	case key.Matches(msg, m.keys.down):
		m.focusRow++
		m.clampFocus()

	case key.Matches(msg, m.keys.slidePrev):
		if m.carousel.Prev() {
			m.focusColumn(m.carousel.Index())
		}

	case key.Matches(msg, m.keys.slideNext):
		if m.carousel.Next() {
			m.focusColumn(m.carousel.Index())
		}

	case key.Matches(msg, m.keys.moveLeft), key.Matches(msg, m.keys.moveRight):
		dir := 1
		if key.Matches(msg, m.keys.moveLeft) {
			dir = -1
		}
		task, ok := m.currentTask()
		states := m.proj.States()
		target := m.focusCol + dir
		if !ok || target < 0 || target >= len(states) {
			return m, nil
		}
		m.loading = true
		return m, m.moveCmd(board.StateChange{ID: task.ID, State: states[target]})

	case key.Matches(msg, m.keys.check):
		task, ok := m.currentTask()
		if !ok {
			return m, nil
		}
		m.loading = true
		return m, m.checkCmd(task.ID, !isChecked(task.State))

	case key.Matches(msg, m.keys.delete):
		task, ok := m.currentTask()
		if !ok {
			return m, nil
		}
		m.loading = true
		return m, m.deleteCmd(task.ID)

	case key.Matches(msg, m.keys.reload):
		m.loading = true
		return m, m.loadCmd()

	case key.Matches(msg, m.keys.add):
		if _, ok := m.currentState(); !ok {
			return m, nil
		}
		m.adding = true
		m.input.Reset()
		return m, m.input.Focus()
	}
	return m, nil
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.adding = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		title := strings.TrimSpace(m.input.Value())
		if title == "" {
			return m, m.showToast("title is required")
		}
		state, _ := m.currentState()
		m.adding = false
		m.input.Blur()
		m.loading = true
		return m, m.createCmd(title, state)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// isChecked mirrors the check endpoint: review and done count as checked.
func isChecked(s domain.State) bool {
	return s == domain.StateReview || s == domain.StateDone
}
