package gateway

import (
	"fmt"

	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/validation"
)

// Validate checks a create input. Implementations call it before talking
// to the backend so that bad input fails the same way everywhere.
func (in CreateNodeInput) Validate() error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	return validateColor(in.Data.Color)
}

func (in UpdateNodeInput) Validate() error {
	if in.Empty() {
		return apperrors.Validation(apperrors.CodeInvalidInput, "update changes nothing").
			WithDetails("position or data is required").
			Build()
	}
	if in.Data != nil {
		return validateColor(in.Data.Color)
	}
	return nil
}

func (in CreateEdgeInput) Validate() error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	return validateKind(in.Data.Kind)
}

func (in UpdateEdgeInput) Validate() error {
	return validateKind(in.Data.Kind)
}

// RequireID rejects an empty entity id.
func RequireID[T ~string](kind string, id T) error {
	if id == "" {
		return apperrors.Validation(apperrors.CodeInvalidInput, fmt.Sprintf("%s id is required", kind)).Build()
	}
	return nil
}

func validateColor(color string) error {
	if color == "" {
		return nil
	}
	return validation.Default().Var(color, "hexcolor")
}

func validateKind(kind graph.EdgeKind) error {
	if kind.Valid() {
		return nil
	}
	return apperrors.Validation(apperrors.CodeInvalidEdgeKind, "unknown edge type").
		WithDetails(fmt.Sprintf("%q is not one of default, success, warning, error", kind)).
		Build()
}
