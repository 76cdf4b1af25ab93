// Copyright © 2018 One Concern

package replica

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/metrics"
	"github.com/oneconcern/datasync/pkg/model"
	"github.com/oneconcern/datasync/pkg/reconcile"
	"github.com/oneconcern/datasync/pkg/replica/status"
	"github.com/oneconcern/datasync/pkg/store"
	"go.uber.org/zap"
)

// commit brings the local store in line with the loaded dataset.
//
// Commit conflicts are retried from scratch. Failures are logged, never returned to the caller of Load.
func (s *Session) commit(ctx context.Context, dataset *model.Dataset) {
	var (
		result  CommitResult
		written int64
	)
	start := time.Now()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.CommitRetryInterval), s.cfg.CommitRetries),
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		var e error
		result, written, e = s.commitOnce(ctx, dataset)
		if e != nil && !errors.Is(e, store.ErrConflict) {
			return backoff.Permanent(e)
		}
		return e
	}, policy, func(err error, _ time.Duration) {
		s.l.Debug("commit conflict, retrying", zap.Error(err))
		if s.metricsOn() {
			metrics.Inc(s.m.Sync.CommitConflicts)
		}
	})
	if s.metricsOn() {
		s.m.IO.Commit.Record(start, "commit")(written, err)
	}

	if err != nil {
		if errors.Is(err, status.ErrStaleInstance) {
			s.markStale(err)
		}
		if errors.Is(err, store.ErrTooLarge) {
			s.l.Warn("dataset exceeds the transaction capacity of the local store",
				zap.Int("files", len(dataset.Index.Manifest)),
				zap.Int64("bytes", dataset.Index.Manifest.TotalSize(dataset.Index.Manifest.Names())),
			)
		}
		err = status.ErrSyncCommitFailure.Wrap(err)
		s.l.Warn("could not persist dataset to the local store", zap.Error(err))
		s.mx.Lock()
		s.commitErr = err
		s.mx.Unlock()
		s.result.Store(uint32(CommitFailed))
		return
	}

	s.l.Info("local store synchronized",
		zap.Stringer("result", result),
		zap.Int64("bytes", written),
		zap.Duration("duration", time.Since(start)),
	)
	s.result.Store(uint32(result))
}

// commitOnce runs a single commit transaction
func (s *Session) commitOnce(ctx context.Context, dataset *model.Dataset) (CommitResult, int64, error) {
	conn := s.connection()
	if conn == nil {
		return CommitFailed, 0, status.ErrStoreUnavailable
	}
	index := dataset.Index
	version := index.Manifest.Version()

	var (
		result  CommitResult
		written int64
	)
	err := conn.Update(ctx, func(txn store.Txn) error {
		written = 0
		if err := s.checkEpoch(txn); err != nil {
			return err
		}

		raw, err := txn.Get(store.Blobs, model.IndexKey)
		if err != nil {
			if !errors.Is(err, store.ErrKeyNotFound) {
				return err
			}
			raw = nil
		}
		plan, err := reconcile.DiffRaw(index.Manifest, raw)
		if err != nil {
			s.l.Warn("local index is invalid: rebuilding the local store", zap.Error(err))
		}

		if plan.Synchronized() {
			dataVersion, found, e := readDataVersion(txn)
			if e != nil {
				return e
			}
			if found && dataVersion == version {
				result = CommitUpToDate
				return nil
			}
		}

		if plan.Rebuild {
			if err = txn.Clear(store.Blobs); err != nil {
				return err
			}
		}
		for _, name := range plan.Removals() {
			if err = txn.Delete(store.Blobs, name); err != nil {
				return err
			}
		}
		for _, name := range plan.Updates() {
			blob, ok := dataset.Get(name)
			if !ok {
				return fmt.Errorf("file %q missing from dataset", name)
			}
			if err = txn.Set(store.Blobs, name, blob); err != nil {
				return err
			}
			written += int64(len(blob))
		}
		if err = txn.Set(store.Blobs, model.IndexKey, index.Raw); err != nil {
			return err
		}
		if err = txn.Set(store.Vars, varDataVersion, []byte(version)); err != nil {
			return err
		}

		s.l.Debug("committing",
			zap.Bool("rebuild", plan.Rebuild),
			zap.Int("updates", len(plan.Updates())),
			zap.Int("removals", len(plan.Removals())),
		)
		result = CommitWritten
		return nil
	})
	if err != nil {
		return CommitFailed, 0, err
	}
	return result, written, nil
}
