package api

import "prism-todo/todo-api/domain"

const (
	requestMaxSize = 64 * 1024 // 64 KiB

	headerIdempotencyKey = "Idempotency-Key"
)

// GET /api/todo response body
type listTasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

// 400 response body for rejected requests
type validationResponse struct {
	Errors []domain.FieldError `json:"errors"`
}
