package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"prism-todo/todo-api/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Key    string
	Body   string
}

func newTestAPI(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			Key:    r.Header.Get("Idempotency-Key"),
			Body:   string(body),
		})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "a.b.c"), &reqs
}

func TestListTasks(t *testing.T) {
	c, reqs := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tasks":[{"id":"1","title":"A","state":"todo","order":0}]}`))
	})

	tasks, err := c.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "1" || tasks[0].State != domain.StateTodo {
		t.Fatalf("unexpected tasks %#v", tasks)
	}
	got := (*reqs)[0]
	if got.Method != http.MethodGet || got.Path != "/api/todo" || got.Auth != "Bearer a.b.c" {
		t.Fatalf("unexpected request %#v", got)
	}
}

func TestUpdateStateSendsEdit(t *testing.T) {
	c, reqs := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := c.UpdateState(context.Background(), "t1", domain.StateDone); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := (*reqs)[0]
	if got.Method != http.MethodPatch || got.Path != "/api/todo/edit" {
		t.Fatalf("unexpected request %#v", got)
	}
	if got.Body != `{"id":"t1","state":"done"}` {
		t.Fatalf("unexpected body %s", got.Body)
	}
}

func TestCreateTaskSendsIdempotencyKey(t *testing.T) {
	c, reqs := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"new","title":"Write docs","state":"todo","order":2}`))
	})

	task, err := c.CreateTask(context.Background(), domain.CreateTaskRequest{Title: "Write docs", State: domain.StateTodo})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID != "new" || task.Order != 2 {
		t.Fatalf("unexpected task %#v", task)
	}
	if (*reqs)[0].Key == "" {
		t.Fatal("expected an idempotency key")
	}
}

func TestCheckAndDeleteRoutes(t *testing.T) {
	c, reqs := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {})

	if err := c.CheckTask(context.Background(), "t1", true); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := c.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if r := (*reqs)[0]; r.Method != http.MethodPatch || r.Path != "/api/todo/check" || r.Body != `{"id":"t1","checked":true}` {
		t.Fatalf("unexpected check request %#v", r)
	}
	if r := (*reqs)[1]; r.Method != http.MethodDelete || r.Path != "/api/todo/delete" || r.Body != `{"id":"t1"}` {
		t.Fatalf("unexpected delete request %#v", r)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
		text   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: "Unauthorized", target: ErrUnauthorized, text: "401 Unauthorized"},
		{name: "not found", status: http.StatusNotFound, body: "Not Found", target: domain.ErrNotFound, text: "404 Not Found"},
		{name: "validation", status: http.StatusBadRequest, body: `{"errors":[{"path":"title","message":"required"}]}`, text: "400: title: required"},
		{name: "conflict", status: http.StatusConflict, body: "duplicate request", text: "409: duplicate request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			err := c.EditTask(context.Background(), domain.EditTaskRequest{ID: "x", State: domain.StateTodo})
			var se *StatusError
			if !errors.As(err, &se) || se.Code != tt.status {
				t.Fatalf("expected StatusError %d, got %v", tt.status, err)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Fatalf("expected errors.Is(%v)", tt.target)
			}
			if err.Error() != tt.text {
				t.Fatalf("unexpected message %q", err.Error())
			}
		})
	}
}

func TestReadEvents(t *testing.T) {
	body := strings.NewReader(": keep-alive\n\n" +
		"data: {\"tasks\":[{\"id\":\"1\",\"state\":\"todo\"}]}\n\n" +
		"data: {\"tasks\":[]}\n\n")
	var got [][]domain.Task
	err := readEvents(body, func(tasks []domain.Task) { got = append(got, tasks) })
	if err == nil || err.Error() != "stream closed" {
		t.Fatalf("expected stream closed, got %v", err)
	}
	if len(got) != 2 || len(got[0]) != 1 || got[0][0].ID != "1" || len(got[1]) != 0 {
		t.Fatalf("unexpected events %#v", got)
	}
}

func TestReadEventsRejectsGarbage(t *testing.T) {
	err := readEvents(strings.NewReader("data: nope\n\n"), func([]domain.Task) {
		t.Fatal("callback should not run")
	})
	if err == nil || !strings.Contains(err.Error(), "decode stream event") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestStreamDeliversUntilCancelled(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"tasks\":[{\"id\":\"1\",\"state\":\"done\"}]}\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	logger, _ := test.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan []domain.Task, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Stream(ctx, logger, func(tasks []domain.Task) {
			select {
			case received <- tasks:
			default:
			}
		})
	}()

	select {
	case tasks := <-received:
		if len(tasks) != 1 || tasks[0].State != domain.StateDone {
			t.Fatalf("unexpected tasks %#v", tasks)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no stream event received")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStreamStopsOnUnauthorized(t *testing.T) {
	c, _ := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	logger, _ := test.NewNullLogger()
	err := c.Stream(context.Background(), logger, func([]domain.Task) {})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
