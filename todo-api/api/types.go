package api

import (
	"context"

	"prism-todo/todo-api/domain"
)

// Storage abstracts task persistence for handlers. Every call is scoped by owner.
type Storage interface {
	ListTasks(ctx context.Context, owner string) ([]domain.Task, error)
	// GetTask returns nil without error when the owner has no such task.
	GetTask(ctx context.Context, owner, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	UpdateTask(ctx context.Context, owner, id string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, owner, id string) error
}

// EventPublisher delivers task change events to downstream consumers.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, ev domain.TaskEvent) error
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Authenticator is implemented by types able to resolve the caller from a header.
type Authenticator interface {
	IdentityFromAuthHeader(string) (Identity, error)
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, userID, key string) error
}

// EventSender accepts task change events for asynchronous delivery.
type EventSender interface {
	Send(ev domain.TaskEvent)
}

// Services bundles the collaborators of the task routes. Deduper and Hub are optional.
type Services struct {
	Store   Storage
	Auth    Authenticator
	Events  EventSender
	Deduper Deduper
	Hub     *Hub
}
