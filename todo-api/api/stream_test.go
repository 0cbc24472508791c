package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"prism-todo/todo-api/domain"
)

func TestHubBroadcastPerUser(t *testing.T) {
	hub := NewHub()
	mine := make(chan []byte, 1)
	theirs := make(chan []byte, 1)
	hub.add("user1", mine)
	hub.add("user2", theirs)

	hub.Broadcast("user1", []byte("hello"))
	select {
	case msg := <-mine:
		if string(msg) != "hello" {
			t.Fatalf("expected hello got %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	select {
	case <-theirs:
		t.Fatal("message leaked to another user")
	default:
	}

	hub.remove("user1", mine)
	if hub.Connected("user1") {
		t.Fatal("expected user1 to be disconnected")
	}
	hub.Broadcast("user1", []byte("world"))
	select {
	case <-mine:
		t.Fatal("received message after removal")
	default:
	}
}

func TestHubBroadcastDropsForSlowClient(t *testing.T) {
	hub := NewHub()
	ch := make(chan []byte, 1)
	hub.add("user1", ch)
	hub.Broadcast("user1", []byte("one"))
	hub.Broadcast("user1", []byte("two"))
	if got := string(<-ch); got != "one" {
		t.Fatalf("expected first message kept, got %s", got)
	}
}

func TestSubscribeUpdatesPushesFreshList(t *testing.T) {
	_, rc := newTestRedis(t)
	logger, _ := test.NewNullLogger()
	store := newMockStore(domain.Task{ID: "t1", Title: "task", State: domain.StateTodo, Owner: "user1"})
	hub := NewHub()
	ch := make(chan []byte, 1)
	hub.add("user1", ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		SubscribeUpdates(ctx, logger, rc, "task-updates", store, hub)
		close(done)
	}()

	payload, _ := sonic.MarshalString(domain.TaskEvent{ID: "e1", Type: domain.TaskCreated, TaskID: "t1", UserID: "user1"})
	deadline := time.Now().Add(time.Second)
	var got []byte
	for got == nil {
		if err := rc.Publish(context.Background(), "task-updates", payload).Err(); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case got = <-ch:
		case <-time.After(20 * time.Millisecond):
		}
		if got == nil && time.Now().After(deadline) {
			t.Fatal("no update relayed")
		}
	}

	var resp listTasksResponse
	if err := sonic.Unmarshal(got, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks %+v", resp.Tasks)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SubscribeUpdates did not exit")
	}
}

func TestStreamTasksSendsInitialListAndUpdates(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := newMockStore(domain.Task{ID: "t1", Title: "task", State: domain.StateTodo, Owner: "user"})
	hub := NewHub()
	e := echo.New()
	Register(e, Services{Store: store, Auth: mockAuth{}, Hub: hub}, logger)
	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/todo/stream?token=a.b.c", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	if !strings.Contains(first, `"id":"t1"`) {
		t.Fatalf("unexpected first event %s", first)
	}

	hub.Broadcast("user", []byte(`{"tasks":[]}`))
	if next := readEvent(t, reader); next != `{"tasks":[]}` {
		t.Fatalf("unexpected pushed event %s", next)
	}
}

func TestStreamTasksUnauthorized(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := newMockStore()
	e := echo.New()
	Register(e, Services{Store: store, Auth: mockAuth{}, Hub: NewHub()}, logger)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/todo/stream", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
	if store.Calls() != 0 {
		t.Fatalf("expected no store calls")
	}
}

func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	out := make(chan result, 1)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				out <- result{err: err}
				return
			}
			if strings.HasPrefix(line, "data: ") {
				out <- result{line: strings.TrimSpace(strings.TrimPrefix(line, "data: "))}
				return
			}
		}
	}()
	select {
	case res := <-out:
		if res.err != nil {
			t.Fatalf("read event: %v", res.err)
		}
		return res.line
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return ""
	}
}
