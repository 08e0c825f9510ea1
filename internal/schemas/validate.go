// Package schemas validates control API payloads against the embedded JSON
// Schemas.
package schemas

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	schemafiles "github.com/jonathan/hirebot/schemas"
)

// Schema names.
const (
	MessageRequest = "message_request.schema.json"
	FeedsUpdated   = "feeds_updated.schema.json"
	FeedRecord     = "feed_record.schema.json"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Schema string
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

// compile loads every embedded schema once. The record schema is registered
// first so the others can reference it.
func compile() (map[string]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		read := func(name string) (gojsonschema.JSONLoader, error) {
			data, err := schemafiles.FS.ReadFile(name)
			if err != nil {
				return nil, &SchemaLoadError{Path: name, Message: "read embedded schema", Cause: err}
			}
			return gojsonschema.NewBytesLoader(data), nil
		}

		record, err := read(FeedRecord)
		if err != nil {
			compileErr = err
			return
		}
		out := make(map[string]*gojsonschema.Schema)
		for _, name := range []string{MessageRequest, FeedsUpdated, FeedRecord} {
			loader, err := read(name)
			if err != nil {
				compileErr = err
				return
			}
			sl := gojsonschema.NewSchemaLoader()
			if name != FeedRecord {
				if err := sl.AddSchemas(record); err != nil {
					compileErr = &SchemaLoadError{Path: FeedRecord, Message: "register schema", Cause: err}
					return
				}
			}
			schema, err := sl.Compile(loader)
			if err != nil {
				compileErr = &SchemaLoadError{Path: name, Message: "compile schema", Cause: err}
				return
			}
			out[name] = schema
		}
		compiled = out
	})
	return compiled, compileErr
}

// Validate checks doc, a JSON document, against the named embedded schema.
func Validate(name string, doc []byte) error {
	all, err := compile()
	if err != nil {
		return err
	}
	schema, ok := all[name]
	if !ok {
		return &SchemaLoadError{Path: name, Message: "unknown schema"}
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	return resultError(name, result)
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}
	return resultError("(string schema)", result)
}

func resultError(name string, result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	// Build structured error
	validationErr := &ValidationError{
		Schema: name,
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
