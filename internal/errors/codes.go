package errors

// Code is a stable, machine-readable error code.
type Code string

const (
	// Node and edge errors
	CodeNodeNotFound        Code = "NODE_NOT_FOUND"
	CodeEdgeNotFound        Code = "EDGE_NOT_FOUND"
	CodeWorkspaceNotFound   Code = "WORKSPACE_NOT_FOUND"
	CodeNodeSelfLink        Code = "NODE_SELF_LINK"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeInvalidEdgeKind     Code = "INVALID_EDGE_KIND"
	CodeNoActiveWorkspace   Code = "NO_ACTIVE_WORKSPACE"
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"

	// Gateway and transport errors
	CodeBackendError   Code = "BACKEND_ERROR"
	CodeTransport      Code = "TRANSPORT_ERROR"
	CodeDecode         Code = "DECODE_ERROR"
	CodeCircuitOpen    Code = "CIRCUIT_OPEN"
	CodeFeedSubscribe  Code = "FEED_SUBSCRIBE_FAILED"
	CodeFeedClosed     Code = "FEED_CLOSED"
	CodeRequestTimeout Code = "REQUEST_TIMEOUT"

	// Fallbacks
	CodeWrapped Code = "WRAP_ERROR"
	CodeUnknown Code = "UNKNOWN"
)
