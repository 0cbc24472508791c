package domain

// State is the board column a task currently sits in.
type State string

const (
	StateTodo       State = "todo"
	StateInProgress State = "in-progress"
	StateReview     State = "review"
	StateDone       State = "done"
)

// StateOption pairs a state value with its column title.
type StateOption struct {
	Value State
	Title string
}

// StateOptions lists the known states in board order.
var StateOptions = []StateOption{
	{Value: StateTodo, Title: "Todo"},
	{Value: StateInProgress, Title: "In Progress"},
	{Value: StateReview, Title: "Review"},
	{Value: StateDone, Title: "Done"},
}

// States returns the known state values in board order.
func States() []State {
	out := make([]State, len(StateOptions))
	for i, opt := range StateOptions {
		out[i] = opt.Value
	}
	return out
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	for _, opt := range StateOptions {
		if opt.Value == s {
			return true
		}
	}
	return false
}

// Title returns the column title for s, or the raw value for unknown states.
func (s State) Title() string {
	for _, opt := range StateOptions {
		if opt.Value == s {
			return opt.Title
		}
	}
	return string(s)
}

// CheckedState maps the checkbox affordance onto a board state.
func CheckedState(checked bool) State {
	if checked {
		return StateReview
	}
	return StateInProgress
}

// Task represents a single board item owned by one user.
// Dates are unix milliseconds; zero means unset.
type Task struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	State             State  `json:"state"`
	DueDate           int64  `json:"dueDate,omitempty"`
	PlannedFinishDate int64  `json:"plannedFinishDate,omitempty"`
	Order             int    `json:"order"`
	Owner             string `json:"owner,omitempty"`
	CreatedAt         int64  `json:"createdAt,omitempty"`
	UpdatedAt         int64  `json:"updatedAt,omitempty"`
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title             *string
	Description       *string
	State             *State
	DueDate           *int64
	PlannedFinishDate *int64
	Order             *int
	UpdatedAt         int64
}

// Empty reports whether the patch changes no task field.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.State == nil &&
		p.DueDate == nil && p.PlannedFinishDate == nil && p.Order == nil
}

// Apply returns a copy of t with the patch applied.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.State != nil {
		t.State = *p.State
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.PlannedFinishDate != nil {
		t.PlannedFinishDate = *p.PlannedFinishDate
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	if p.UpdatedAt != 0 {
		t.UpdatedAt = p.UpdatedAt
	}
	return t
}
