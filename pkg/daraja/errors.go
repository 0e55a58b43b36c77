package daraja

import "fmt"

// InitiationErrorKind tags the failure mode of an STK push submission.
type InitiationErrorKind string

const (
	// ErrKindNetwork covers transport-level failures: timeout, DNS, TLS,
	// or an open circuit breaker.
	ErrKindNetwork InitiationErrorKind = "NETWORK"
	// ErrKindProcessorRejected is a non-200 HTTP status from the processor.
	ErrKindProcessorRejected InitiationErrorKind = "PROCESSOR_REJECTED"
	// ErrKindInvalidResponse is a 200 with a body that is not valid JSON.
	ErrKindInvalidResponse InitiationErrorKind = "INVALID_RESPONSE"
	// ErrKindProcessorError is a well-formed response carrying the
	// processor's own error code, or a ResponseCode other than "0".
	ErrKindProcessorError InitiationErrorKind = "PROCESSOR_ERROR"
)

// AuthError means token acquisition failed; the payment endpoint was never
// called.
type AuthError struct {
	HTTPStatus int
	Err        error
}

func (e *AuthError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("daraja auth: token endpoint returned %d", e.HTTPStatus)
	}
	return fmt.Sprintf("daraja auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// InitiationError is a failed STK push submission. Code and Message carry the
// processor's own error detail when Kind is ErrKindProcessorError; operators
// need them for reconciliation, so they are never dropped.
type InitiationError struct {
	Kind       InitiationErrorKind
	HTTPStatus int
	Code       string
	Message    string
	Err        error
}

func (e *InitiationError) Error() string {
	switch e.Kind {
	case ErrKindProcessorRejected:
		return fmt.Sprintf("daraja stk push: processor returned %d", e.HTTPStatus)
	case ErrKindProcessorError:
		return fmt.Sprintf("daraja stk push: processor error %s: %s", e.Code, e.Message)
	case ErrKindInvalidResponse:
		return fmt.Sprintf("daraja stk push: invalid response body: %v", e.Err)
	default:
		return fmt.Sprintf("daraja stk push: %v", e.Err)
	}
}

func (e *InitiationError) Unwrap() error { return e.Err }

// ResolutionError means a status query could not be completed at all. It is
// distinct from a query that succeeds and resolves to StatusPending: callers
// must be able to tell "could not ask" from "asked, not yet decided".
type ResolutionError struct {
	HTTPStatus int
	Err        error
}

func (e *ResolutionError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("daraja stk query: processor returned %d", e.HTTPStatus)
	}
	return fmt.Sprintf("daraja stk query: %v", e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
