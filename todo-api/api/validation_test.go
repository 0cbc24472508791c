package api

import (
	"errors"
	"reflect"
	"testing"

	"prism-todo/todo-api/domain"
)

func TestCompileSchemas(t *testing.T) {
	schemas, err := compileSchemas()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, name := range []string{schemaCreate, schemaEdit, schemaCheck, schemaDelete} {
		if schemas[name] == nil {
			t.Fatalf("schema %s not compiled", name)
		}
	}
}

func TestValidateDocumentCollectsAllFields(t *testing.T) {
	doc := map[string]any{"title": "", "state": "blocked", "extra": true}
	err := validateDocument(requestSchemas[schemaCreate], doc)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("unexpected error type %T", err)
	}
	paths := map[string]bool{}
	for _, fe := range ve.Fields {
		paths[fe.Path] = true
	}
	if !paths["title"] || !paths["state"] || len(ve.Fields) < 3 {
		t.Fatalf("expected title, state and extra property errors, got %#v", ve.Fields)
	}
}

func TestValidateDocumentAcceptsDragEdit(t *testing.T) {
	doc := map[string]any{"id": "task-1", "state": "review"}
	if err := validateDocument(requestSchemas[schemaEdit], doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMissingProperties(t *testing.T) {
	got, ok := missingProperties(`missing properties: 'title', 'state'`)
	if !ok || !reflect.DeepEqual(got, []string{"title", "state"}) {
		t.Fatalf("unexpected result %v %v", got, ok)
	}
	if _, ok := missingProperties("length must be >= 1, but got 0"); ok {
		t.Fatal("expected non-required message to be ignored")
	}
}

func TestPointerToPath(t *testing.T) {
	tests := map[string]string{
		"":           "",
		"/title":     "title",
		"#/dueDate":  "dueDate",
		"/tags/0":    "tags.0",
		"/a~1b/c~0d": "a/b.c~d",
	}
	for in, want := range tests {
		if got := pointerToPath(in); got != want {
			t.Fatalf("pointerToPath(%q) = %q, want %q", in, got, want)
		}
	}
}
