package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/koustreak/sqlsession/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"wrapped cancel", fmt.Errorf("put: %w", context.Canceled), errs.ErrKindTimeout},
		{"access denied", miniogo.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, errs.ErrKindConfiguration},
		{"no such bucket", miniogo.ErrorResponse{Code: "NoSuchBucket"}, errs.ErrKindConfiguration},
		{"slow down", miniogo.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, errs.ErrKindTimeout},
		{"unauthorized status", miniogo.ErrorResponse{StatusCode: http.StatusUnauthorized}, errs.ErrKindConfiguration},
		{"gateway timeout", miniogo.ErrorResponse{StatusCode: http.StatusGatewayTimeout}, errs.ErrKindTimeout},
		{"server error", miniogo.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, errs.ErrKindConnection},
		{"dial failure", errors.New("dial tcp 127.0.0.1:9000: connect: connection refused"), errs.ErrKindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "op")
			assert.Equal(t, tt.want, errs.KindOf(err))
			assert.Equal(t, tt.err, errors.Unwrap(err))
		})
	}

	assert.NoError(t, mapError(nil, "op"))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), filestore.Config{})
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))

	_, err = New(context.Background(), filestore.Config{Endpoint: "localhost:9000"})
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err), "credentials are required")
}
