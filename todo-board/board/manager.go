package board

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"prism-todo/todo-api/domain"
	"prism-todo/todo-board/dnd"
)

// StateChange asks the API to move a task to another column.
type StateChange struct {
	ID    string
	State domain.State
}

// StateUpdater persists a task's new state.
type StateUpdater interface {
	UpdateState(ctx context.Context, id string, state domain.State) error
}

// TaskLoader fetches the authoritative task list.
type TaskLoader interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
}

// MoveRequest converts a released drag into a state change. It returns false when the
// item was dropped outside any column, back onto its own column, or nothing was dragged.
func MoveRequest(end dnd.DragEnd) (StateChange, bool) {
	if end.Over == "" || end.From == "" || end.Item == "" || end.Over == end.From {
		return StateChange{}, false
	}
	return StateChange{ID: end.Item, State: domain.State(end.Over)}, true
}

// Manager applies completed drags through the API and rebuilds the column projection
// from freshly loaded data.
type Manager struct {
	updater StateUpdater
	loader  TaskLoader
	states  []domain.State
	log     *log.Logger
}

// NewManager returns a manager projecting onto states.
func NewManager(updater StateUpdater, loader TaskLoader, states []domain.State, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Manager{updater: updater, loader: loader, states: states, log: logger}
}

// States returns the known column states.
func (m *Manager) States() []domain.State {
	return m.states
}

// Reload fetches the task list and projects it.
func (m *Manager) Reload(ctx context.Context) (Projection, error) {
	tasks, err := m.loader.ListTasks(ctx)
	if err != nil {
		return Projection{}, fmt.Errorf("load tasks: %w", err)
	}
	return Project(tasks, m.states), nil
}

// Move persists req and returns the reloaded projection. Nothing is changed locally
// when the update fails.
func (m *Manager) Move(ctx context.Context, req StateChange) (Projection, error) {
	if err := m.updater.UpdateState(ctx, req.ID, req.State); err != nil {
		m.log.WithError(err).WithFields(log.Fields{"task": req.ID, "state": req.State}).Warn("move failed")
		return Projection{}, fmt.Errorf("move %s to %s: %w", req.ID, req.State, err)
	}
	m.log.WithFields(log.Fields{"task": req.ID, "state": req.State}).Debug("task moved")
	return m.Reload(ctx)
}

// HandleDragEnd moves the dragged task when the drop targets a different column. The
// boolean reports whether a move was attempted.
func (m *Manager) HandleDragEnd(ctx context.Context, end dnd.DragEnd) (Projection, bool, error) {
	req, ok := MoveRequest(end)
	if !ok {
		return Projection{}, false, nil
	}
	p, err := m.Move(ctx, req)
	return p, true, err
}
