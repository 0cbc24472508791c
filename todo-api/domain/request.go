package domain

// CreateTaskRequest is the body of POST /api/todo/create.
type CreateTaskRequest struct {
	Title             string  `json:"title"`
	Description       *string `json:"description,omitempty"`
	State             State   `json:"state"`
	DueDate           *int64  `json:"dueDate,omitempty"`
	PlannedFinishDate *int64  `json:"plannedFinishDate,omitempty"`
}

// EditTaskRequest is the body of PATCH /api/todo/edit. A drag only sends ID and State.
type EditTaskRequest struct {
	ID                string  `json:"id"`
	Title             *string `json:"title,omitempty"`
	Description       *string `json:"description,omitempty"`
	State             State   `json:"state"`
	DueDate           *int64  `json:"dueDate,omitempty"`
	PlannedFinishDate *int64  `json:"plannedFinishDate,omitempty"`
	Order             *int    `json:"order,omitempty"`
}

// Patch converts the request into a storage patch.
func (r EditTaskRequest) Patch(now int64) TaskPatch {
	state := r.State
	return TaskPatch{
		Title:             r.Title,
		Description:       r.Description,
		State:             &state,
		DueDate:           r.DueDate,
		PlannedFinishDate: r.PlannedFinishDate,
		Order:             r.Order,
		UpdatedAt:         now,
	}
}

// CheckTaskRequest is the body of PATCH /api/todo/check.
type CheckTaskRequest struct {
	ID      string `json:"id"`
	Checked bool   `json:"checked"`
}

// DeleteTaskRequest is the body of DELETE /api/todo/delete.
type DeleteTaskRequest struct {
	ID string `json:"id"`
}

// FieldError describes a rejected request field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError is returned when a request body breaks a task invariant.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	f := e.Fields[0]
	if f.Path == "" {
		return f.Message
	}
	return f.Path + ": " + f.Message
}

// ValidateDeadlines enforces that a planned finish date is only set together with a
// due date and falls strictly before it.
func ValidateDeadlines(dueDate, plannedFinishDate *int64) error {
	due := valueOrZero(dueDate)
	planned := valueOrZero(plannedFinishDate)
	if planned == 0 {
		return nil
	}
	if due == 0 || due <= planned {
		return &ValidationError{Fields: []FieldError{{
			Path:    "plannedFinishDate",
			Message: "plannedFinishDate must be before dueDate",
		}}}
	}
	return nil
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
