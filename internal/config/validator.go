package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Env     string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	name := e.Field
	if e.Env != "" {
		name = fmt.Sprintf("%s (%s)", e.Field, e.Env)
	}
	return fmt.Sprintf("%s: %s (got: %v)", name, e.Message, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidValue.
func (e ValidationError) Unwrap() error {
	return ErrInvalidValue
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e ValidationErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

// Validate checks the non-numeric settings.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if !slices.Contains([]string{BackendFile, BackendSQLite}, c.State.Backend) {
		errs = append(errs, ValidationError{
			Field:   "state.backend",
			Env:     envBindings["state.backend"],
			Value:   c.State.Backend,
			Message: "must be one of: file, sqlite",
		})
	}

	kinds := []string{SourceMarkdown, SourceBoard, SourceSQLite}
	names := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if src.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Value: src.Name, Message: "is required"})
		} else if names[src.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Value: src.Name, Message: "must be unique"})
		}
		names[src.Name] = true
		if !slices.Contains(kinds, src.Kind) {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Value:   src.Kind,
				Message: "must be one of: " + strings.Join(kinds, ", "),
			})
		}
		if src.Path == "" {
			errs = append(errs, ValidationError{Field: field + ".path", Value: src.Path, Message: "is required"})
		}
	}
	return errs
}
