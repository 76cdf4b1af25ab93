package sthree

import (
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/storage/status"
)

// missingCodes are 404 error codes about a missing object or bucket.
// NotFound is returned by HEAD requests, which carry no body.
var missingCodes = map[string]bool{
	"NoSuchKey":    true,
	"NoSuchBucket": true,
	"NotFound":     true,
}

func filterErrNotExists(err error) error {
	if errors.Is(err, status.ErrNotExists) || errors.Is(err, status.ErrNotFound) {
		return nil
	}
	return err
}

// toSentinelErrors maps S3 request failures to the sentinel errors of the status package.
//
// See https://docs.aws.amazon.com/AmazonS3/latest/API/ErrorResponses.html#ErrorCodeList
func toSentinelErrors(err error) error {
	if err == nil {
		return nil
	}
	var failure awserr.RequestFailure
	if !errors.As(err, &failure) {
		return err
	}

	switch code := failure.StatusCode(); {
	case code == 400 && failure.Code() == "InvalidBucketName":
		return status.ErrInvalidResource.Wrap(err)
	case code == 401:
		return status.ErrUnauthorized.Wrap(err)
	case code == 403:
		return status.ErrForbidden.Wrap(err)
	case code == 404 && missingCodes[failure.Code()]:
		return status.ErrNotExists.Wrap(err)
	case code == 404:
		return status.ErrNotFound.Wrap(err)
	case code == 412:
		return status.ErrExists.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}
