package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Caller-facing kinds. Every error leaving a service wraps exactly one of them.
var (
	ErrInvalidArgument      = fmt.Errorf("invalid argument")
	ErrNotFound             = fmt.Errorf("not found")
	ErrConflict             = fmt.Errorf("conflict")
	ErrPreconditionFailed   = fmt.Errorf("precondition failed")
	ErrPermissionDenied     = fmt.Errorf("permission denied")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")
	ErrUnavailable          = fmt.Errorf("unavailable")
	ErrUnauthenticated      = fmt.Errorf("unauthenticated")
)

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	ErrUserAlreadyExists  = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrTokenGeneration    = fmt.Errorf("%w: token generation failed", ErrUnavailable)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrUnauthenticated)
	ErrBackpressure       = fmt.Errorf("connection send queue is full")
	ErrConnectionDetached = fmt.Errorf("connection is detached")
	ErrDispatchTimeout    = fmt.Errorf("dispatch queue is full")
	ErrInvalidEmoji       = fmt.Errorf("%w: value must be a single emoji", ErrInvalidArgument)
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindNotFound
	KindConflict
	KindPreconditionFailed
	KindPermissionDenied
	KindUnsupportedMediaType
	KindUnavailable
	KindUnauthenticated
)

var kinds = []struct {
	sentinel error
	kind     Kind
	http     int
	grpc     codes.Code
}{
	{ErrInvalidArgument, KindInvalidArgument, http.StatusUnprocessableEntity, codes.InvalidArgument},
	{ErrNotFound, KindNotFound, http.StatusNotFound, codes.NotFound},
	{ErrConflict, KindConflict, http.StatusConflict, codes.AlreadyExists},
	{ErrPreconditionFailed, KindPreconditionFailed, http.StatusPreconditionFailed, codes.FailedPrecondition},
	{ErrPermissionDenied, KindPermissionDenied, http.StatusForbidden, codes.PermissionDenied},
	{ErrUnsupportedMediaType, KindUnsupportedMediaType, http.StatusUnsupportedMediaType, codes.InvalidArgument},
	{ErrUnavailable, KindUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
	{ErrUnauthenticated, KindUnauthenticated, http.StatusUnauthorized, codes.Unauthenticated},
}

// KindOf returns the first kind found in the chain of err.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if stderrors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// HTTPStatus maps err to the status code returned by the HTTP API.
// Unclassified errors are internal errors.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if stderrors.Is(err, k.sentinel) {
			return k.http
		}
	}
	return http.StatusInternalServerError
}

func GRPCCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	for _, k := range kinds {
		if stderrors.Is(err, k.sentinel) {
			return k.grpc
		}
	}
	return codes.Internal
}

// Unavailable wraps a storage or network failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindUnsupportedMediaType:
		return "UnsupportedMediaType"
	case KindUnavailable:
		return "Unavailable"
	case KindUnauthenticated:
		return "Unauthenticated"
	default:
		return "Unknown"
	}
}
