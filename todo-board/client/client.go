package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"prism-todo/todo-api/domain"
)

// ErrUnauthorized is returned when the API rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is returned for any non-success API response.
type StatusError struct {
	Code    int
	Message string
	Fields  []domain.FieldError
}

func (e *StatusError) Error() string {
	if len(e.Fields) > 0 {
		f := e.Fields[0]
		if f.Path != "" {
			return fmt.Sprintf("%d: %s: %s", e.Code, f.Path, f.Message)
		}
		return fmt.Sprintf("%d: %s", e.Code, f.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
}

// Is lets callers match status errors with errors.Is.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case domain.ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// Identity mirrors GET /api/me.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Client talks to the todo API with a bearer token.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// New creates a client for baseURL, e.g. http://localhost:8080.
func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ListTasks returns the caller's tasks in board order.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var out struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/todo", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// CreateTask creates a task. Each call carries a fresh idempotency key.
func (c *Client) CreateTask(ctx context.Context, req domain.CreateTaskRequest) (domain.Task, error) {
	var task domain.Task
	headers := http.Header{"Idempotency-Key": []string{uuid.NewString()}}
	if err := c.do(ctx, http.MethodPost, "/api/todo/create", headers, req, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// EditTask applies a partial edit.
func (c *Client) EditTask(ctx context.Context, req domain.EditTaskRequest) error {
	return c.do(ctx, http.MethodPatch, "/api/todo/edit", nil, req, nil)
}

// UpdateState moves a task to another column.
func (c *Client) UpdateState(ctx context.Context, id string, state domain.State) error {
	return c.EditTask(ctx, domain.EditTaskRequest{ID: id, State: state})
}

// CheckTask toggles the checkbox state of a task.
func (c *Client) CheckTask(ctx context.Context, id string, checked bool) error {
	return c.do(ctx, http.MethodPatch, "/api/todo/check", nil, domain.CheckTaskRequest{ID: id, Checked: checked}, nil)
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/todo/delete", nil, domain.DeleteTaskRequest{ID: id}, nil)
}

// Me returns the identity behind the bearer token.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	var id Identity
	err := c.do(ctx, http.MethodGet, "/api/me", nil, nil, &id)
	return id, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, headers http.Header, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(code int, body []byte) error {
	e := &StatusError{Code: code}
	var verr struct {
		Errors []domain.FieldError `json:"errors"`
	}
	if code == http.StatusBadRequest && sonic.Unmarshal(body, &verr) == nil && len(verr.Errors) > 0 {
		e.Fields = verr.Errors
		return e
	}
	msg := strings.TrimSpace(string(body))
	if msg != http.StatusText(code) {
		e.Message = msg
	}
	return e
}
