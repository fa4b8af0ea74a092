// Package validation validates gateway inputs and HTTP request bodies with
// struct tags. Failures come back as a single VALIDATION UnifiedError whose
// details list every offending field.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"

	"github.com/go-playground/validator/v10"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Validator wraps a configured validator.Validate.
type Validator struct {
	validate *validator.Validate
}

var (
	instance *Validator
	once     sync.Once
)

// Default returns the shared validator instance.
func Default() *Validator {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New creates a validator with the graph rules registered.
func New() *Validator {
	v := &Validator{validate: validator.New()}

	// Use JSON tag names in error messages
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v.validate.RegisterValidation("hexcolor", validateHexColor)
	v.validate.RegisterValidation("edgekind", validateEdgeKind)
	v.validate.RegisterValidation("notblank", validateNotBlank)
	return v
}

// Struct validates s and returns nil or a VALIDATION *UnifiedError.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fields := Fields(err)
	if len(fields) == 0 {
		return apperrors.Validation(apperrors.CodeInvalidInput, "invalid input").
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return apperrors.Validation(apperrors.CodeInvalidInput, "invalid input").
		WithDetails(strings.Join(parts, "; ")).
		WithCause(err).
		Build()
}

// Var validates a single value against tag.
func (v *Validator) Var(value any, tag string) error {
	if err := v.validate.Var(value, tag); err != nil {
		return apperrors.Validation(apperrors.CodeInvalidInput, "invalid input").
			WithDetails(fmt.Sprintf("value %v: %s", value, message(tag, ""))).
			WithCause(err).
			Build()
	}
	return nil
}

// Fields extracts the per-field failures from a validator error chain.
func Fields(err error) []FieldError {
	var verrs validator.ValidationErrors
	if unified, ok := apperrors.As(err); ok && unified.Cause != nil {
		err = unified.Cause
	}
	if ve, ok := err.(validator.ValidationErrors); ok {
		verrs = ve
	}

	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, FieldError{
			Field:   e.Field(),
			Rule:    e.Tag(),
			Message: message(e.Tag(), e.Param()),
		})
	}
	return out
}

// Struct validates s with the shared instance.
func Struct(s any) error {
	return Default().Struct(s)
}

func message(tag, param string) string {
	switch tag {
	case "required", "notblank":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", param)
	case "hexcolor":
		return "must be a hex color such as #4a90e2"
	case "edgekind":
		return "must be one of default, success, warning, error"
	case "nefield":
		return fmt.Sprintf("must differ from %s", param)
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(param, " ", ", "))
	default:
		return fmt.Sprintf("failed %s validation", tag)
	}
}

func validateHexColor(fl validator.FieldLevel) bool {
	color := fl.Field().String()
	if color == "" {
		return true // optional
	}
	return hexColor.MatchString(color)
}

func validateEdgeKind(fl validator.FieldLevel) bool {
	return graph.EdgeKind(fl.Field().String()).Valid()
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
