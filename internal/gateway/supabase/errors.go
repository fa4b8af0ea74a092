package supabase

import (
	"context"
	"errors"
	"regexp"
	"strings"

	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
)

// postgrest-go reports backend errors as "(<code>) <message>".
var backendError = regexp.MustCompile(`(?s)^\(([0-9A-Z]*)\) (.*)$`)

// classify maps a PostgREST client error onto the unified taxonomy:
//
//	PGRST116            -> NOT_FOUND (no row for .single())
//	22xxx, 23xxx        -> VALIDATION
//	other or empty code -> EXTERNAL
//	anything else       -> CONNECTION
func classify(op, resource string, err error) error {
	m := backendError.FindStringSubmatch(err.Error())
	if m == nil {
		if strings.Contains(err.Error(), "error parsing error response") {
			return apperrors.External(apperrors.CodeBackendError, "unreadable backend error").
				WithOperation(op).
				WithResource(resource).
				WithDetails(err.Error()).
				WithCause(err).
				Build()
		}
		return apperrors.Connection(apperrors.CodeTransport, "backend request failed").
			WithOperation(op).
			WithResource(resource).
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}

	code, msg := m[1], m[2]
	switch {
	case code == "":
		return apperrors.External(apperrors.CodeBackendError, "backend rejected request").
			WithOperation(op).
			WithResource(resource).
			WithDetails(msg).
			WithCause(err).
			Build()
	case code == "PGRST116":
		return apperrors.NotFound(notFoundCode(resource), "no matching row").
			WithOperation(op).
			WithResource(resource).
			WithDetails(msg).
			WithCause(err).
			Build()
	case strings.HasPrefix(code, "23"):
		return apperrors.Validation(apperrors.CodeConstraintViolation, "constraint violation").
			WithOperation(op).
			WithResource(resource).
			WithDetails(code + ": " + msg).
			WithCause(err).
			Build()
	case strings.HasPrefix(code, "22"):
		return apperrors.Validation(apperrors.CodeInvalidInput, "invalid value").
			WithOperation(op).
			WithResource(resource).
			WithDetails(code + ": " + msg).
			WithCause(err).
			Build()
	default:
		return apperrors.External(apperrors.CodeBackendError, "backend rejected request").
			WithOperation(op).
			WithResource(resource).
			WithDetails(code + ": " + msg).
			WithCause(err).
			Build()
	}
}

func notFoundCode(resource string) apperrors.Code {
	switch {
	case strings.HasPrefix(resource, "node:"):
		return apperrors.CodeNodeNotFound
	case strings.HasPrefix(resource, "edge:"):
		return apperrors.CodeEdgeNotFound
	default:
		return apperrors.CodeWorkspaceNotFound
	}
}

func cancelled(op string, err error) error {
	b := apperrors.Timeout(apperrors.CodeRequestTimeout, "request cancelled before it was sent").
		WithOperation(op).
		WithCause(err)
	if errors.Is(err, context.Canceled) {
		b = b.WithRetryable(false)
	}
	return b.Build()
}

func encodeError(op string, err error) error {
	return apperrors.Internal(apperrors.CodeDecode, "payload could not be encoded").
		WithOperation(op).
		WithDetails(err.Error()).
		WithCause(err).
		Build()
}
