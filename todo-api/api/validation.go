package api

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"prism-todo/todo-api/domain"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

const schemaBaseURL = "https://prism.todo/schemas/"

const (
	schemaCreate = "create.json"
	schemaEdit   = "edit.json"
	schemaCheck  = "check.json"
	schemaDelete = "delete.json"
)

var requestSchemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	schemas, err := compileSchemas()
	if err != nil {
		panic(fmt.Sprintf("compile request schemas: %v", err))
	}
	return schemas
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	entries, err := schemaFiles.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		data, err := schemaFiles.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, err
		}
		if err := compiler.AddResource(schemaBaseURL+entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}

	schemas := make(map[string]*jsonschema.Schema, 4)
	for _, name := range []string{schemaCreate, schemaEdit, schemaCheck, schemaDelete} {
		s, err := compiler.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		schemas[name] = s
	}
	return schemas, nil
}

// decodeRequest reads the body, validates it against the named schema and decodes it
// into dst. Any rejection is reported as *domain.ValidationError.
func decodeRequest(c echo.Context, schemaName string, dst any) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fieldError("", "request body too large")
		}
		return fieldError("", "unreadable request body")
	}

	var doc any
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return fieldError("", "invalid JSON body")
	}
	if err := validateDocument(requestSchemas[schemaName], doc); err != nil {
		return err
	}
	if err := sonic.Unmarshal(body, dst); err != nil {
		return fieldError("", "invalid JSON body")
	}
	return nil
}

func validateDocument(schema *jsonschema.Schema, doc any) error {
	err := schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fieldError("", err.Error())
	}
	out := &domain.ValidationError{}
	collectSchemaErrors(out, ve)
	if len(out.Fields) == 0 {
		out.Fields = append(out.Fields, domain.FieldError{Message: ve.Message})
	}
	return out
}

func collectSchemaErrors(out *domain.ValidationError, err *jsonschema.ValidationError) {
	if len(err.Causes) > 0 {
		for _, cause := range err.Causes {
			collectSchemaErrors(out, cause)
		}
		return
	}

	path := pointerToPath(err.InstanceLocation)
	if missing, ok := missingProperties(err.Message); ok {
		for _, name := range missing {
			out.Fields = append(out.Fields, domain.FieldError{Path: joinPath(path, name), Message: "required"})
		}
		return
	}
	out.Fields = append(out.Fields, domain.FieldError{Path: path, Message: err.Message})
}

func missingProperties(msg string) ([]string, bool) {
	const prefix = "missing properties: "
	if !strings.HasPrefix(msg, prefix) {
		return nil, false
	}
	var names []string
	for _, raw := range strings.Split(strings.TrimPrefix(msg, prefix), ",") {
		name := strings.Trim(strings.TrimSpace(raw), `'"`)
		if name != "" {
			names = append(names, name)
		}
	}
	return names, len(names) > 0
}

// pointerToPath turns a JSON pointer such as "/tags/0" into "tags.0".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "#")
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		parts[i] = strings.NewReplacer("~1", "/", "~0", "~").Replace(p)
	}
	return strings.Join(parts, ".")
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

func fieldError(path, msg string) *domain.ValidationError {
	return &domain.ValidationError{Fields: []domain.FieldError{{Path: path, Message: msg}}}
}
