package attendance

import (
	"errors"
	"net/http"
)

// Kind classifies why an attempt aborted.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindNetworkIdentity      Kind = "network_identity"
	KindPermission           Kind = "permission"
	KindCaptureRequired      Kind = "capture_required"
	KindEnrollmentRequired   Kind = "enrollment_required"
	KindVerificationMismatch Kind = "verification_mismatch"
	KindStorage              Kind = "storage"
)

// Error is an aborted attempt. Msg is safe to show to the user.
type Error struct {
	Kind  Kind
	State State
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNetworkIdentity, KindPermission:
		return http.StatusForbidden
	case KindCaptureRequired:
		return http.StatusPreconditionRequired
	case KindEnrollmentRequired:
		return http.StatusUnprocessableEntity
	case KindVerificationMismatch:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// AsError unwraps err into an *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
