package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/sqlsession/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// mapError translates a MinIO SDK error into a *errs.Error.
//
// Credential and naming problems are configuration errors. Anything the
// server could not be reached for is a connection error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"InvalidBucketName", "InvalidObjectName", "KeyTooLongError",
			"NoSuchBucket", "NoSuchKey":
			return errs.Wrap(errs.ErrKindConfiguration, msg, err)
		case "RequestTimeout", "SlowDown":
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}

		switch resp.StatusCode {
		case http.StatusForbidden, http.StatusUnauthorized, http.StatusNotFound, http.StatusBadRequest:
			return errs.Wrap(errs.ErrKindConfiguration, msg, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}
	}

	return errs.Wrap(errs.ErrKindConnection, msg, err)
}
