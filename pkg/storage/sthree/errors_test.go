package sthree

import (
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/storage/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSentinelErrors(t *testing.T) {
	assert.NoError(t, toSentinelErrors(nil))

	plain := fmt.Errorf("network is down")
	assert.Equal(t, plain, toSentinelErrors(plain))

	for _, tc := range []struct {
		code   string
		status int
		target error
	}{
		{code: "InvalidBucketName", status: 400, target: status.ErrInvalidResource},
		{code: "BadDigest", status: 400, target: status.ErrStorageAPI},
		{code: "Unauthorized", status: 401, target: status.ErrUnauthorized},
		{code: "AccessDenied", status: 403, target: status.ErrForbidden},
		{code: "NoSuchKey", status: 404, target: status.ErrNotExists},
		{code: "NotFound", status: 404, target: status.ErrNotExists},
		{code: "Other", status: 404, target: status.ErrNotFound},
		{code: "PreconditionFailed", status: 412, target: status.ErrExists},
		{code: "SlowDown", status: 503, target: status.ErrStorageAPI},
	} {
		reqErr := awserr.NewRequestFailure(awserr.New(tc.code, "msg", nil), tc.status, "req-id")
		err := toSentinelErrors(reqErr)
		require.Error(t, err)
		assert.Truef(t, errors.Is(err, tc.target), "unexpected mapping for %s/%d: %v", tc.code, tc.status, err)
	}
}

func TestFilterErrNotExists(t *testing.T) {
	assert.NoError(t, filterErrNotExists(status.ErrNotExists.Wrap(fmt.Errorf("x"))))
	assert.NoError(t, filterErrNotExists(status.ErrNotFound))
	assert.Error(t, filterErrNotExists(status.ErrForbidden))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Prefix("data"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInvalidResource))
}
