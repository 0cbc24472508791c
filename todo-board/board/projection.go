package board

import "prism-todo/todo-api/domain"

// Projection groups a flat task list into one column per state.
type Projection struct {
	states  []domain.State
	columns map[domain.State][]domain.Task
}

// Project builds a projection with an empty column for every state in states, then
// appends each task to the column for its state in input order. Tasks whose state is not
// listed get a trailing column of their own.
func Project(tasks []domain.Task, states []domain.State) Projection {
	p := Projection{
		states:  make([]domain.State, 0, len(states)),
		columns: make(map[domain.State][]domain.Task, len(states)),
	}
	for _, s := range states {
		if _, ok := p.columns[s]; ok {
			continue
		}
		p.states = append(p.states, s)
		p.columns[s] = []domain.Task{}
	}
	for _, t := range tasks {
		if _, ok := p.columns[t.State]; !ok {
			p.states = append(p.states, t.State)
		}
		p.columns[t.State] = append(p.columns[t.State], t)
	}
	return p
}

// States returns the column order.
func (p Projection) States() []domain.State {
	return p.states
}

// Column returns the tasks in state s, or nil when s has no column.
func (p Projection) Column(s domain.State) []domain.Task {
	return p.columns[s]
}

// Len returns the number of columns.
func (p Projection) Len() int {
	return len(p.states)
}

// Find returns the column and row of the task with the given id.
func (p Projection) Find(id string) (domain.State, int, bool) {
	for _, s := range p.states {
		for i, t := range p.columns[s] {
			if t.ID == id {
				return s, i, true
			}
		}
	}
	return "", 0, false
}
