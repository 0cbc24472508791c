package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"prism-todo/todo-api/domain"
	"prism-todo/todo-board/board"
	"prism-todo/todo-board/dnd"
)

type tasksLoadedMsg struct {
	proj    board.Projection
	focusID string
}

type tasksPushedMsg struct {
	tasks []domain.Task
}

type draggingMsg struct {
	point dnd.Point
}

type errMsg struct {
	op  string
	err error
}

type toastExpiredMsg struct {
	id int
}

func (m Model) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.opts.RequestTimeout)
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		p, err := m.manager.Reload(ctx)
		if err != nil {
			return errMsg{op: "reload", err: err}
		}
		return tasksLoadedMsg{proj: p}
	}
}

// dragEndCmd persists a completed drag. Drops that do not change column yield no message.
func (m Model) dragEndCmd(end dnd.DragEnd) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		p, moved, err := m.manager.HandleDragEnd(ctx, end)
		if err != nil {
			return errMsg{op: "move", err: err}
		}
		if !moved {
			return nil
		}
		return tasksLoadedMsg{proj: p, focusID: end.Item}
	}
}

func (m Model) moveCmd(req board.StateChange) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		p, err := m.manager.Move(ctx, req)
		if err != nil {
			return errMsg{op: "move", err: err}
		}
		return tasksLoadedMsg{proj: p, focusID: req.ID}
	}
}

func (m Model) checkCmd(id string, checked bool) tea.Cmd {
	return m.mutateCmd("check", id, func(ctx context.Context) error {
		return m.api.CheckTask(ctx, id, checked)
	})
}

func (m Model) deleteCmd(id string) tea.Cmd {
	return m.mutateCmd("delete", "", func(ctx context.Context) error {
		return m.api.DeleteTask(ctx, id)
	})
}

func (m Model) createCmd(title string, state domain.State) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		task, err := m.api.CreateTask(ctx, domain.CreateTaskRequest{Title: title, State: state})
		if err != nil {
			return errMsg{op: "create", err: err}
		}
		p, err := m.manager.Reload(ctx)
		if err != nil {
			return errMsg{op: "reload", err: err}
		}
		return tasksLoadedMsg{proj: p, focusID: task.ID}
	}
}

// mutateCmd runs fn and reloads the board on success.
func (m Model) mutateCmd(op, focusID string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		if err := fn(ctx); err != nil {
			return errMsg{op: op, err: err}
		}
		p, err := m.manager.Reload(ctx)
		if err != nil {
			return errMsg{op: "reload", err: err}
		}
		return tasksLoadedMsg{proj: p, focusID: focusID}
	}
}

func (m *Model) showToast(text string) tea.Cmd {
	m.toastID++
	m.toast = text
	id := m.toastID
	return tea.Tick(m.opts.ToastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}
