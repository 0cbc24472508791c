package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"prism-todo/todo-api/domain"
	"prism-todo/todo-board/board"
)

func TestPrintProjection(t *testing.T) {
	due := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC).UnixMilli()
	p := board.Project([]domain.Task{
		{ID: "1", Title: "Write docs", State: domain.StateTodo, DueDate: due},
		{ID: "2", Title: "Ship", State: domain.StateDone},
	}, domain.States())

	var out bytes.Buffer
	if err := printProjection(&out, p); err != nil {
		t.Fatalf("print: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Todo (1)\n  - Write docs (due 2026-10-20)\n", "In Progress (0)\n", "Done (1)\n  - Ship\n"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestListCommandUsesFlags(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"tasks":[{"id":"1","title":"Remote","state":"review"}]}`))
	}))
	defer srv.Close()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"list", "--config", filepath.Join(t.TempDir(), "none.toml"), "--api", srv.URL, "--token", "a.b.c"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotAuth != "Bearer a.b.c" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if !strings.Contains(out.String(), "Review (1)\n  - Remote\n") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestMissingTokenFails(t *testing.T) {
	t.Setenv("TODO_TOKEN", "")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"list", "--config", filepath.Join(t.TempDir(), "none.toml")})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "no token configured") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestLogFileFromConfig(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "board.log")
	cfgPath := filepath.Join(dir, "config.toml")
	content := "[api]\ntoken = \"a.b.c\"\nurl = \"http://127.0.0.1:1\"\n[log]\nfile = \"" + filepath.ToSlash(logPath) + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"whoami", "--config", cfgPath})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected connection error")
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("expected log file to be created: %v", err)
	}
}
