// Copyright © 2018 One Concern

package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/model"
	"github.com/oneconcern/datasync/pkg/replica/status"
	"github.com/oneconcern/datasync/pkg/storage"
	storagestatus "github.com/oneconcern/datasync/pkg/storage/status"
	"go.uber.org/zap"
)

var errSizeMismatch = errors.New("size mismatch")

// Fetcher retrieves the index and blobs of a dataset from a remote source
type Fetcher struct {
	source        storage.Store
	retries       uint64
	retryInterval time.Duration
	l             *zap.Logger
}

// New Fetcher for some remote source
func New(source storage.Store, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:        source,
		retries:       DefaultRetries,
		retryInterval: defaultRetryInterval,
		l:             zap.NewNop(),
	}
	for _, apply := range opts {
		apply(f)
	}
	f.l = f.l.With(zap.String("remote", source.String()))
	return f
}

func (f *Fetcher) String() string {
	return f.source.String()
}

// FetchIndex downloads and decodes the remote index.
//
// Fetch failures are reported as status.ErrTransportFailure. An index which
// cannot be decoded or validated is reported as status.ErrIndexInvalid.
func (f *Fetcher) FetchIndex(ctx context.Context) (*model.Index, error) {
	var raw []byte
	err := f.retry(ctx, model.IndexKey, func() error {
		var e error
		raw, e = storage.ReadAll(ctx, f.source, model.IndexKey)
		return e
	})
	if err != nil {
		return nil, status.ErrTransportFailure.WrapMessage("fetching index from "+f.source.String(), err)
	}

	manifest, err := model.DecodeManifest(raw)
	if err != nil {
		return nil, status.ErrIndexInvalid.WrapMessage("remote index from "+f.source.String(), err)
	}
	f.l.Debug("fetched remote index",
		zap.Int("entries", len(manifest)),
		zap.Stringer("version", manifest.Version()),
	)
	return &model.Index{Manifest: manifest, Raw: raw}, nil
}

// FetchBlob downloads the content of a file, which must have the expected size.
//
// The progress callback, when not nil, receives the number of bytes read as they
// stream in. Bytes accounted for by a failed attempt are given back as a negative count.
func (f *Fetcher) FetchBlob(ctx context.Context, name string, size int64, progress func(int64)) ([]byte, error) {
	if progress == nil {
		progress = func(int64) {}
	}

	var blob []byte
	err := f.retry(ctx, name, func() error {
		reader, e := f.source.Get(ctx, name)
		if e != nil {
			return e
		}
		defer reader.Close()

		counter := &progressReader{reader: reader, report: progress}
		blob, e = io.ReadAll(io.LimitReader(counter, size+1))
		if e == nil && int64(len(blob)) != size {
			e = errSizeMismatch.Wrap(fmt.Errorf("%q: expected %d bytes, got at least %d", name, size, len(blob)))
		}
		if e != nil {
			progress(-counter.n)
			blob = nil
		}
		return e
	})
	if err != nil {
		return nil, status.ErrTransportFailure.WrapMessage("fetching "+name, err)
	}
	return blob, nil
}

func permanent(err error) bool {
	for _, sentinel := range []error{
		storagestatus.ErrNotExists,
		storagestatus.ErrNotFound,
		storagestatus.ErrUnauthorized,
		storagestatus.ErrForbidden,
		storagestatus.ErrInvalidResource,
		storagestatus.ErrNotSupported,
		storagestatus.ErrObjectTooBig,
		errSizeMismatch,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (f *Fetcher) retry(ctx context.Context, object string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.retryInterval

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	},
		backoff.WithContext(backoff.WithMaxRetries(policy, f.retries), ctx),
		func(err error, next time.Duration) {
			f.l.Warn("fetch failed, retrying",
				zap.String("object", object),
				zap.Duration("next", next),
				zap.Error(err),
			)
		},
	)
}

// progressReader reports the bytes read through it
type progressReader struct {
	reader io.Reader
	report func(int64)
	n      int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.n += int64(n)
		r.report(int64(n))
	}
	return n, err
}
