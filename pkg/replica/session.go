// Copyright © 2018 One Concern

package replica

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/metrics"
	"github.com/oneconcern/datasync/pkg/model"
	"github.com/oneconcern/datasync/pkg/remote"
	"github.com/oneconcern/datasync/pkg/replica/status"
	"github.com/oneconcern/datasync/pkg/store"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// Session loads a dataset once, then synchronizes the local store in the background.
//
// A session owns its local store connection and the epoch it observed.
// Sessions are not reusable: Load may be called only once.
type Session struct {
	metrics.Enable
	m *M

	id       string
	cfg      Config
	fetcher  *remote.Fetcher
	opener   *store.Opener
	progress func(Progress)
	l        *zap.Logger

	loaded atomic.Bool
	state  atomic.Uint32
	stale  atomic.Bool
	result atomic.Uint32

	mx         sync.Mutex
	conn       *store.Conn
	localEpoch uint64
	remote     *model.Index
	commitErr  error

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// NewSession prepares a session fetching from some remote source.
//
// The opener gives access to the local store. With a nil opener the session
// runs network-only.
func NewSession(fetcher *remote.Fetcher, opener *store.Opener, opts ...Option) *Session {
	s := &Session{
		id:       ksuid.New().String(),
		cfg:      DefaultConfig(),
		fetcher:  fetcher,
		opener:   opener,
		progress: func(Progress) {},
		l:        zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, apply := range opts {
		apply(s)
	}
	s.l = s.l.With(zap.String("session", s.id))
	if s.MetricsEnabled() {
		s.m = s.EnsureMetrics("replica", &M{}).(*M)
	}
	return s
}

// ID uniquely identifies this session
func (s *Session) ID() string {
	return s.id
}

// State of the session
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(uint32(state))
	s.l.Debug("session state", zap.Stringer("state", state))
}

// Stale tells if another instance has rebuilt the local store since this session started
func (s *Session) Stale() bool {
	return s.stale.Load()
}

// CommitResult tells what the background commit did
func (s *Session) CommitResult() CommitResult {
	return CommitResult(s.result.Load())
}

// Epoch observed by this session. 0 means the session never got hold of the local store.
func (s *Session) Epoch() uint64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.localEpoch
}

// Load the dataset.
//
// The returned dataset holds every file listed by the remote index. Only an invalid
// remote index or a failure to fetch from the remote source make Load fail: issues with
// the local store are logged and Load falls back to downloading.
//
// The background commit works on its own copy of the dataset maps, but shares blob
// contents: these must not be modified before Wait returns.
func (s *Session) Load(ctx context.Context) (dataset *model.Dataset, err error) {
	if !s.loaded.CompareAndSwap(false, true) {
		return nil, status.ErrSessionUsed
	}
	if s.metricsOn() {
		defer func(start time.Time) {
			s.m.Usage.Record(start, "Load")(err)
		}(time.Now())
	}

	index, err := s.fetcher.FetchIndex(ctx)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.mx.Lock()
	s.remote = index
	s.mx.Unlock()
	s.l.Info("remote index fetched",
		zap.String("remote", s.fetcher.String()),
		zap.Int("files", len(index.Manifest)),
		zap.Stringer("version", index.Manifest.Version()),
	)

	reload := true
	if s.openStore(ctx) {
		reload, err = s.begin(ctx)
		if err != nil {
			s.l.Warn("local store unusable, running network-only", zap.Error(err))
			s.countDegraded("unavailable")
			s.dropStore()
		}
	}
	if reload {
		s.setState(StateReload)
	}

	dataset = model.NewDataset(index)
	if s.connection() != nil {
		s.loadFromCache(ctx, dataset)
	}

	if err = s.download(ctx, dataset); err != nil {
		s.fail(err)
		return nil, err
	}
	s.setState(StateReady)
	s.l.Info("dataset loaded",
		zap.Int("files", len(index.Manifest)),
		zap.Int("cached", dataset.Count(model.SourceCache)),
		zap.Int("downloaded", dataset.Count(model.SourceNetwork)),
	)

	if s.connection() != nil && !s.Stale() {
		s.result.Store(uint32(CommitPending))
		snapshot := dataset.Snapshot()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.commit(context.WithoutCancel(ctx), snapshot)
		}()
	}
	return dataset, nil
}

// fail releases the local store: a failed session never commits
func (s *Session) fail(err error) {
	s.setState(StateError)
	s.l.Error("failed to load dataset", zap.Error(err))
	s.release()
}

// release stops watching for structural upgrades and closes the local store connection
func (s *Session) release() {
	s.once.Do(func() {
		close(s.done)
	})
	s.dropStore()
}

// openStore connects to the local store and watches for structural upgrades
func (s *Session) openStore(ctx context.Context) bool {
	s.setState(StateOpenStructural)
	if s.opener == nil {
		return false
	}

	conn, err := s.opener.Open(ctx, s.cfg.StoreName, s.cfg.StructuralVersion)
	if err != nil {
		err = status.ErrStoreUnavailable.Wrap(err)
		reason := "unavailable"
		switch {
		case errors.Is(err, store.ErrVersionTooNew):
			reason = "version"
		case errors.Is(err, store.ErrBlocked):
			reason = "blocked"
		}
		s.l.Warn("cannot open local store, running network-only", zap.String("reason", reason), zap.Error(err))
		s.countDegraded(reason)
		return false
	}

	s.mx.Lock()
	s.conn = conn
	s.mx.Unlock()

	go func() {
		select {
		case version := <-conn.VersionChange():
			s.l.Info("local store upgrade requested by another session: closing",
				zap.Int("version", version),
			)
			s.dropStore()
		case <-s.done:
		}
	}()
	return true
}

func (s *Session) connection() *store.Conn {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.conn
}

func (s *Session) dropStore() {
	s.mx.Lock()
	conn := s.conn
	s.conn = nil
	s.mx.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) markStale(err error) {
	if s.stale.CompareAndSwap(false, true) {
		s.l.Info("local store was rebuilt by another instance: leaving it alone", zap.Error(err))
		if s.metricsOn() {
			metrics.Inc(s.m.Sync.StaleInstances)
		}
	}
	s.dropStore()
}

// Wait for the background commit to complete. It returns the commit error, if any.
func (s *Session) Wait() error {
	s.wg.Wait()
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.commitErr
}

// Close waits for the background commit, then releases the local store
func (s *Session) Close() error {
	s.wg.Wait()
	s.release()
	return nil
}
