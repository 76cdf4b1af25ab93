package httpfs

import (
	"fmt"
	"net/http"

	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/storage/status"
)

func toSentinelErrors(key string, code int) error {
	err := fmt.Errorf("%q: %s", key, http.StatusText(code))
	switch code {
	case http.StatusNotFound, http.StatusGone:
		return status.ErrNotExists.Wrap(err)
	case http.StatusUnauthorized:
		return status.ErrUnauthorized.Wrap(err)
	case http.StatusForbidden:
		return status.ErrForbidden.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}

func isNotExists(err error) bool {
	return errors.Is(err, status.ErrNotExists)
}
