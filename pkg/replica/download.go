// Copyright © 2018 One Concern

package replica

import (
	"context"
	"sync"
	"time"

	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/model"
	"github.com/oneconcern/datasync/pkg/replica/status"
	"github.com/oneconcern/datasync/pkg/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errLocalIndexInvalid = errors.New("invalid local index")

// loadFromCache copies into the dataset every file the local store holds at a revision
// at least as recent as the remote one.
//
// Failures are not fatal: the missing files are left to the network pass.
func (s *Session) loadFromCache(ctx context.Context, dataset *model.Dataset) {
	conn := s.connection()
	if conn == nil {
		return
	}
	start := time.Now()
	err := conn.View(ctx, func(txn store.Txn) error {
		if err := s.checkEpoch(txn); err != nil {
			return err
		}

		raw, err := txn.Get(store.Blobs, model.IndexKey)
		if err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		local, err := model.DecodeManifest(raw)
		if err != nil {
			return errLocalIndexInvalid.Wrap(err)
		}

		remote := dataset.Manifest()
		for _, name := range remote.Names() {
			cached, ok := local[name]
			if !ok || cached.Revision.Less(remote[name].Revision) {
				continue
			}
			blob, err := txn.Get(store.Blobs, name)
			if err != nil {
				if errors.Is(err, store.ErrKeyNotFound) {
					continue
				}
				return err
			}
			if int64(len(blob)) != cached.Size {
				s.l.Warn("cached file does not match the local index: downloading it",
					zap.String("file", name),
					zap.Int64("expected", cached.Size),
					zap.Int("actual", len(blob)),
				)
				continue
			}
			dataset.Attach(name, blob, model.SourceCache)
			if s.metricsOn() {
				s.m.Volume.Cache.Record(int64(len(blob)), "read")
			}
		}
		return nil
	})

	switch {
	case err == nil:
		s.l.Debug("cache pass",
			zap.Int("cached", dataset.Count(model.SourceCache)),
			zap.Duration("duration", time.Since(start)),
		)
	case errors.Is(err, status.ErrStaleInstance):
		s.markStale(err)
	case errors.Is(err, errLocalIndexInvalid):
		s.l.Warn("local index is invalid: downloading everything", zap.Error(err))
	default:
		s.l.Warn("cannot read from local store: downloading everything", zap.Error(status.ErrStoreUnavailable.Wrap(err)))
	}
}

// download fetches all files still missing from the dataset.
//
// Any failure cancels the other fetches and fails the whole download.
func (s *Session) download(ctx context.Context, dataset *model.Dataset) error {
	missing := dataset.Missing()
	if len(missing) == 0 {
		return nil
	}
	manifest := dataset.Manifest()
	total := manifest.TotalSize(missing)

	var (
		mx   sync.Mutex
		done int64
	)
	report := func(n int64) {
		mx.Lock()
		defer mx.Unlock()
		done += n
		s.progress(Progress{Done: done, Total: total})
	}

	s.l.Info("downloading files",
		zap.Int("files", len(missing)),
		zap.Int64("bytes", total),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	blobs := make([][]byte, len(missing))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Concurrency)
	for i, name := range missing {
		i, name := i, name
		group.Go(func() error {
			size := manifest[name].Size
			start := time.Now()
			blob, err := s.fetcher.FetchBlob(gctx, name, size, report)
			if s.metricsOn() {
				s.m.IO.Fetch.Record(start, "fetch")(int64(len(blob)), err)
			}
			if err != nil {
				return err
			}
			blobs[i] = blob
			report(0)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, name := range missing {
		dataset.Attach(name, blobs[i], model.SourceNetwork)
		if s.metricsOn() {
			s.m.Volume.Network.Record(int64(len(blobs[i])), "download")
		}
	}
	return nil
}
