package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestKindOf_WrappedSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
		code   codes.Code
	}{
		{"invalid argument", fmt.Errorf("%w: empty id", ErrInvalidArgument), KindInvalidArgument, http.StatusUnprocessableEntity, codes.InvalidArgument},
		{"not found", fmt.Errorf("%w: conversation ABC123", ErrNotFound), KindNotFound, http.StatusNotFound, codes.NotFound},
		{"user already exists", ErrUserAlreadyExists, KindConflict, http.StatusConflict, codes.AlreadyExists},
		{"last member", fmt.Errorf("%w: last member", ErrPreconditionFailed), KindPreconditionFailed, http.StatusPreconditionFailed, codes.FailedPrecondition},
		{"not admin", fmt.Errorf("%w: not admin", ErrPermissionDenied), KindPermissionDenied, http.StatusForbidden, codes.PermissionDenied},
		{"pdf upload", fmt.Errorf("%w: .pdf", ErrUnsupportedMediaType), KindUnsupportedMediaType, http.StatusUnsupportedMediaType, codes.InvalidArgument},
		{"store down", Unavailable("find conversation", fmt.Errorf("disk")), KindUnavailable, http.StatusServiceUnavailable, codes.Unavailable},
		{"bad token", ErrInvalidToken, KindUnauthenticated, http.StatusUnauthorized, codes.Unauthenticated},
		{"invalid emoji", ErrInvalidEmoji, KindInvalidArgument, http.StatusUnprocessableEntity, codes.InvalidArgument},
		{"unclassified", fmt.Errorf("boom"), KindUnknown, http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			req.Equal(tt.kind, KindOf(tt.err))
			req.Equal(tt.status, HTTPStatus(tt.err))
			req.Equal(tt.code, GRPCCode(tt.err))
		})
	}
}

func TestGRPCCode_Nil(t *testing.T) {
	require.Equal(t, codes.OK, GRPCCode(nil))
}
