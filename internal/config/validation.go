package config

import (
	"fmt"
	"strings"
)

// FieldError is a single invalid setting
type FieldError struct {
	Field   string
	Problem string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []FieldError
}

// Add records a problem with field
func (e *ValidationErrors) Add(field, problem string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Problem: problem})
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Field, f.Problem))
	}

	return sb.String()
}

// Has reports whether field has a recorded problem
func (e *ValidationErrors) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
