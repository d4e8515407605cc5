package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Required pairs a message field with its value for RequireFields.
type Required struct {
	Field string
	Value string
}

// Require is shorthand for a Required entry.
func Require(field string, value string) Required {
	return Required{Field: field, Value: value}
}

// RequireFields reports every blank field, in the order given, as one
// validation envelope. It returns nil when all fields are set.
func RequireFields(scope string, fields ...Required) error {
	var missing goerrors.ValidationErrors
	for _, field := range fields {
		if strings.TrimSpace(field.Value) != "" {
			continue
		}
		missing = append(missing, goerrors.FieldError{
			Field:   field.Field,
			Message: strings.ReplaceAll(field.Field, "_", " ") + " is required",
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return FieldError(scope, missing...)
}

// FieldError builds the 400 validation envelope shared by command and query
// messages.
func FieldError(scope string, fields ...goerrors.FieldError) error {
	return goerrors.NewValidation(scope+": validation failed", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

// InvalidInput is a 400 for input that is well formed but unusable.
func InvalidInput(scope string, message string) error {
	return goerrors.New(scope+": "+message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput)
}

// MissingDependency is the 500 a handler returns when it was built without
// the service it delegates to.
func MissingDependency(scope string, dependency string) error {
	return goerrors.New(scope+": "+dependency+" is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorInternal).
		WithMetadata(map[string]any{"dependency": dependency})
}
