package replica

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oneconcern/datasync/internal/rand"
	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/model"
	"github.com/oneconcern/datasync/pkg/replica/status"
	"github.com/oneconcern/datasync/pkg/store"
	"github.com/oneconcern/datasync/pkg/store/bdgr"
	"github.com/oneconcern/datasync/pkg/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

const (
	rev1 = "2022-01-01:001"
	rev2 = "2022-01-01:002"
	rev3 = "2022-02-15:001"
)

func TestLoadIntoEmptyStore(t *testing.T) {
	e := newEnv(t)
	remoteManifest := e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "0123456789")})

	s, dataset := e.sync()
	assert.Equal(t, StateReady, s.State())
	assert.False(t, s.Stale())
	assert.Equal(t, CommitWritten, s.CommitResult())
	assert.Equal(t, uint64(1), s.Epoch())

	blob, ok := dataset.Get("a.gz")
	require.True(t, ok)
	assert.Equal(t, "0123456789", string(blob))
	assert.Equal(t, 0, dataset.Count(model.SourceCache))
	assert.Equal(t, 1, dataset.Count(model.SourceNetwork))

	st := e.inspect()
	assert.Equal(t, uint64(1), st.Epoch)
	assert.Equal(t, model.RevisionCode(rev1), st.DataVersion)
	assert.True(t, st.Consistent())
	assert.True(t, remoteManifest.Equal(st.Manifest))
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, int64(10), st.Bytes)
}

func TestSecondSyncIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{
		"a.gz": fileOf(rev1, "0123456789"),
		"b.gz": fileOf(rev2, "01234"),
	})
	e.sync()
	before := e.inspect()
	writes := e.backend.writes.Load()

	var calls int
	s, dataset := e.sync(WithProgress(func(Progress) { calls++ }))

	assert.Equal(t, CommitUpToDate, s.CommitResult())
	assert.Equal(t, int64(0), e.backend.writes.Load()-writes, "no store write expected")
	assert.Zero(t, calls, "nothing should be downloaded")
	assert.Equal(t, 2, dataset.Count(model.SourceCache))
	assert.Equal(t, 0, dataset.Count(model.SourceNetwork))
	assert.Equal(t, before, e.inspect())
}

func TestIncrementalUpdate(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "0123456789")})
	e.sync()

	remoteManifest := e.pub.publish(t, map[string]file{
		"a.gz": fileOf(rev1, "0123456789"),
		"b.gz": fileOf(rev1, "01234"),
		"c.gz": fileOf(rev3, "abc"),
	})
	s, dataset := e.sync()

	assert.Equal(t, uint64(2), s.Epoch(), "a newer remote version moves the epoch on")
	assert.Equal(t, CommitWritten, s.CommitResult())
	assert.Equal(t, model.SourceCache, dataset.Sources["a.gz"])
	assert.Equal(t, model.SourceNetwork, dataset.Sources["b.gz"])
	assert.Equal(t, model.SourceNetwork, dataset.Sources["c.gz"])

	st := e.inspect()
	assert.Equal(t, model.RevisionCode(rev3), st.DataVersion)
	assert.True(t, remoteManifest.Equal(st.Manifest))
}

func TestRevisedFile(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "old")})
	e.sync()

	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev2, "revised")})
	_, dataset := e.sync()

	blob, _ := dataset.Get("a.gz")
	assert.Equal(t, "revised", string(blob))
	assert.Equal(t, model.SourceNetwork, dataset.Sources["a.gz"])

	_, dataset = e.sync()
	blob, _ = dataset.Get("a.gz")
	assert.Equal(t, "revised", string(blob))
	assert.Equal(t, model.SourceCache, dataset.Sources["a.gz"])
}

func TestRemovedFile(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{
		"a.gz": fileOf(rev1, "0123456789"),
		"c.gz": fileOf(rev1, "ccc"),
	})
	e.sync()

	remoteManifest := e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "0123456789")})
	s, dataset := e.sync()

	assert.Equal(t, uint64(1), s.Epoch(), "same remote version: no reload")
	assert.Equal(t, CommitWritten, s.CommitResult())
	_, ok := dataset.Get("c.gz")
	assert.False(t, ok)

	keys := e.blobKeys()
	sort.Strings(keys)
	assert.Equal(t, []string{"a.gz", model.IndexKey}, keys)
	assert.True(t, remoteManifest.Equal(e.inspect().Manifest))
}

func TestEpochIsMonotonic(t *testing.T) {
	e := newEnv(t)
	var last uint64
	for i, rev := range []string{rev1, rev1, rev2, rev2, rev3, rev1} {
		e.pub.publish(t, map[string]file{"a.gz": fileOf(rev, "content")})
		if i == 3 {
			// an interrupted rebuild leaves no data version behind
			e.update(func(txn store.Txn) error { return txn.Delete(store.Vars, varDataVersion) })
		}
		s, _ := e.sync()
		epoch := e.inspect().Epoch
		assert.GreaterOrEqual(t, epoch, last)
		assert.Equal(t, epoch, s.Epoch())
		last = epoch
	}
	// 1 (created), 1, 2 (newer), 3 (no data version), 4 (newer), 4 (older remote)
	assert.Equal(t, uint64(4), last)
	assert.Equal(t, model.RevisionCode(rev1), e.inspect().DataVersion)
}

func TestInvalidLocalIndex(t *testing.T) {
	e := newEnv(t)
	remoteManifest := e.pub.publish(t, map[string]file{
		"a.gz": fileOf(rev1, "0123456789"),
		"b.gz": fileOf(rev1, "01234"),
	})
	e.sync()
	e.update(func(txn store.Txn) error {
		require.NoError(t, txn.Set(store.Blobs, "stray", []byte("x")))
		return txn.Set(store.Blobs, model.IndexKey, []byte("garbage"))
	})
	assert.NotEmpty(t, e.inspect().IndexError)

	s, dataset := e.sync()
	assert.Equal(t, 2, dataset.Count(model.SourceNetwork))
	assert.Equal(t, CommitWritten, s.CommitResult())

	st := e.inspect()
	assert.Empty(t, st.IndexError)
	assert.True(t, remoteManifest.Equal(st.Manifest))
	keys := e.blobKeys()
	sort.Strings(keys)
	assert.Equal(t, []string{"a.gz", "b.gz", model.IndexKey}, keys)
}

func TestMissingCachedBlob(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{
		"a.gz": fileOf(rev1, "0123456789"),
		"b.gz": fileOf(rev1, "01234"),
	})
	e.sync()
	e.update(func(txn store.Txn) error { return txn.Delete(store.Blobs, "b.gz") })

	_, dataset := e.sync()
	assert.Equal(t, model.SourceCache, dataset.Sources["a.gz"])
	assert.Equal(t, model.SourceNetwork, dataset.Sources["b.gz"])
}

func TestRemoteIndexInvalid(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "a")})
	require.NoError(t, e.pub.source.Delete(context.Background(), model.IndexKey))
	require.NoError(t, e.pub.source.Put(context.Background(), model.IndexKey,
		stringsReader(`{"a.gz":["2022-01-01:001",1]}`), false))

	s := e.session()
	dataset, err := s.Load(context.Background())
	require.Error(t, err)
	assert.Nil(t, dataset)
	assert.True(t, errors.Is(err, status.ErrIndexInvalid))
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, CommitNone, s.CommitResult())
}

func TestTransportFailure(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{
		"a.gz": fileOf(rev1, "a"),
		"b.gz": fileOf(rev1, "b"),
	})
	require.NoError(t, e.pub.source.Delete(context.Background(), "b.gz"))
	assert.Empty(t, e.inspect().DataVersion)
	ignored := goleak.IgnoreCurrent()

	s := e.session()
	dataset, err := s.Load(context.Background())
	require.Error(t, err)
	assert.Nil(t, dataset)
	assert.True(t, errors.Is(err, status.ErrTransportFailure))
	assert.Equal(t, StateError, s.State())

	// the session gave up its connection without waiting for Close
	assert.Nil(t, s.connection())
	goleak.VerifyNone(t, ignored)

	require.NoError(t, s.Wait())
	assert.Equal(t, CommitNone, s.CommitResult())
	assert.Empty(t, e.inspect().DataVersion)
}

func TestLoadOnce(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "a")})
	s := e.session()
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	_, err = s.Load(context.Background())
	assert.True(t, errors.Is(err, status.ErrSessionUsed))
}

func TestConcurrentInitialization(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "0123456789")})

	b := newBarrier(2)
	e.backend.mx.Lock()
	e.backend.onUpdate = func(txn store.Txn) store.Txn { return &barrierTxn{Txn: txn, b: b} }
	e.backend.mx.Unlock()

	sessions := []*Session{e.session(), e.session()}
	errs := make([]error, len(sessions))
	datasets := make([]*model.Dataset, len(sessions))
	var wg sync.WaitGroup
	for i, s := range sessions {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			datasets[i], errs[i] = s.Load(context.Background())
		}()
	}
	wg.Wait()

	var stale, committed int
	for i, s := range sessions {
		require.NoError(t, errs[i])
		assert.True(t, datasets[i].Complete())
		require.NoError(t, s.Wait())
		if s.Stale() {
			stale++
			assert.Equal(t, uint64(0), s.Epoch())
			assert.Equal(t, CommitNone, s.CommitResult())
		} else {
			committed++
			assert.Equal(t, uint64(1), s.Epoch())
			assert.Equal(t, CommitWritten, s.CommitResult())
		}
	}
	assert.Equal(t, 1, stale)
	assert.Equal(t, 1, committed)

	st := e.inspect()
	assert.Equal(t, uint64(1), st.Epoch)
	assert.Equal(t, model.RevisionCode(rev1), st.DataVersion)
}

func TestStaleDuringCachePass(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "0123456789")})
	e.sync()
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev2, "revised")})

	// another instance starts a reload right after this session's initial transaction
	var once sync.Once
	e.backend.mx.Lock()
	e.backend.onView = func() {
		once.Do(func() {
			e.backend.mx.Lock()
			e.backend.onView = nil
			e.backend.mx.Unlock()
			e.update(func(txn store.Txn) error { return writeEpoch(txn, 10) })
		})
	}
	e.backend.mx.Unlock()

	s := e.session()
	dataset, err := s.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Wait())

	assert.True(t, s.Stale())
	assert.Equal(t, CommitNone, s.CommitResult())
	blob, _ := dataset.Get("a.gz")
	assert.Equal(t, "revised", string(blob))

	// the store was left alone
	st := e.inspect()
	assert.Equal(t, uint64(10), st.Epoch)
	assert.Empty(t, st.DataVersion)
	assert.Equal(t, model.RevisionCode(rev1), st.Manifest["a.gz"].Revision)
}

func TestStaleAtCommit(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "0123456789")})

	// another instance moves the epoch on while the first commit attempt is in flight
	var updates atomic.Int32
	e.backend.mx.Lock()
	e.backend.onUpdate = func(txn store.Txn) store.Txn {
		if updates.Add(1) == 2 {
			e.update(func(txn store.Txn) error { return writeEpoch(txn, 5) })
		}
		return txn
	}
	e.backend.mx.Unlock()

	s := e.session(WithConfig(Config{CommitRetries: 3, CommitRetryInterval: time.Millisecond}))
	dataset, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, dataset.Complete())

	err = s.Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrSyncCommitFailure))
	assert.True(t, errors.Is(err, status.ErrStaleInstance))
	assert.Equal(t, CommitFailed, s.CommitResult())
	assert.True(t, s.Stale())
	// initial transaction, conflicting attempt, concurrent update, retry
	assert.Equal(t, int32(4), updates.Load())

	st := e.inspect()
	assert.Equal(t, uint64(5), st.Epoch)
	assert.Empty(t, st.DataVersion)
	assert.Nil(t, st.Manifest)
}

func TestNetworkOnly(t *testing.T) {
	pub := newPublisher()
	pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "a")})

	s := NewSession(pub.fetcher(), nil, WithLogger(zaptest.NewLogger(t)))
	defer s.Close()
	dataset, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, dataset.Complete())
	require.NoError(t, s.Wait())
	assert.Equal(t, CommitNone, s.CommitResult())
}

func TestStoreVersionTooNew(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "a")})
	conn, err := e.opener.Open(context.Background(), DefaultStoreName, StructuralVersion+1)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	s, dataset := e.sync()
	assert.True(t, dataset.Complete())
	assert.Equal(t, CommitNone, s.CommitResult())
	assert.Equal(t, uint64(0), s.Epoch())
}

func TestStoreUpgradeClosesSession(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "a")})
	s, _ := e.sync()
	require.Equal(t, CommitWritten, s.CommitResult())

	// the session still holds its connection: the upgrade asks it to let go
	conn, err := e.opener.Open(context.Background(), DefaultStoreName, StructuralVersion+1)
	require.NoError(t, err)
	defer conn.Close()
	assert.Nil(t, s.connection())

	require.NoError(t, conn.View(context.Background(), func(txn store.Txn) error {
		_, getErr := txn.Get(store.Vars, varEpoch)
		assert.True(t, errors.Is(getErr, store.ErrKeyNotFound))
		return nil
	}))
}

func TestProgress(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{
		"a.gz": fileOf(rev1, "0123456789"),
		"b.gz": fileOf(rev1, "01234"),
		"c.gz": fileOf(rev1, ""),
	})

	var (
		mx     sync.Mutex
		events []Progress
	)
	e.sync(
		WithConfig(Config{Concurrency: 2}),
		WithProgress(func(p Progress) {
			mx.Lock()
			events = append(events, p)
			mx.Unlock()
		}),
	)

	require.NotEmpty(t, events)
	for _, p := range events {
		assert.Equal(t, int64(15), p.Total)
		assert.LessOrEqual(t, p.Done, p.Total)
	}
	last := events[len(events)-1]
	assert.Equal(t, int64(15), last.Done)
	assert.InDelta(t, 100.0, last.Percent(), 1e-9)
	// at least one report per completed fetch
	assert.GreaterOrEqual(t, len(events), 3)
}

func TestProgressPercent(t *testing.T) {
	assert.InDelta(t, 50.0, Progress{Done: 5, Total: 10}.Percent(), 1e-9)
	assert.InDelta(t, 100.0, Progress{}.Percent(), 1e-9)
}

func TestEmptyDataset(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{})

	s, dataset := e.sync()
	assert.True(t, dataset.Complete())
	assert.Equal(t, CommitWritten, s.CommitResult())

	s, _ = e.sync()
	assert.Equal(t, CommitUpToDate, s.CommitResult())
}

func TestWithMetrics(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "0123456789")})
	s, _ := e.sync(WithMetrics(true))
	assert.True(t, s.MetricsEnabled())
	assert.Equal(t, CommitWritten, s.CommitResult())

	s, _ = e.sync(WithMetrics(true))
	assert.Equal(t, CommitUpToDate, s.CommitResult())
}

func TestSharedSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	pub := newPublisher()
	pub.publish(t, map[string]file{
		"a.gz": fileOf(rev1, "0123456789"),
		"b.gz": fileOf(rev2, "01234"),
	})

	// each opener stands for a separate process
	run := func() *Session {
		opener := store.NewOpener(sqlite.New(dir))
		defer opener.Close()
		s := NewSession(pub.fetcher(), opener, WithLogger(zaptest.NewLogger(t)))
		dataset, err := s.Load(context.Background())
		require.NoError(t, err)
		require.True(t, dataset.Complete())
		require.NoError(t, s.Close())
		return s
	}

	first := run()
	assert.Equal(t, CommitWritten, first.CommitResult())
	second := run()
	assert.Equal(t, CommitUpToDate, second.CommitResult())
	assert.Equal(t, first.Epoch(), second.Epoch())

	opener := store.NewOpener(sqlite.New(dir))
	defer opener.Close()
	st, err := Inspect(context.Background(), opener, Config{})
	require.NoError(t, err)
	assert.Equal(t, model.RevisionCode(rev2), st.DataVersion)
	assert.Equal(t, 2, st.Files)
}

func TestOnDiskBadgerStore(t *testing.T) {
	dir := t.TempDir()
	pub := newPublisher()
	pub.publish(t, map[string]file{"a.gz": fileOf(rev1, "0123456789")})

	for _, expected := range []CommitResult{CommitWritten, CommitUpToDate} {
		opener := store.NewOpener(bdgr.New(dir), store.BlockedTimeout(time.Second))
		s := NewSession(pub.fetcher(), opener, WithLogger(zaptest.NewLogger(t)))
		_, err := s.Load(context.Background())
		require.NoError(t, err)
		require.NoError(t, s.Close())
		assert.Equal(t, expected, s.CommitResult())
		require.NoError(t, opener.Close())
	}
}

func TestLargeDataset(t *testing.T) {
	pub := newPublisher()
	files := make(map[string]file, 40)
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("part-%02d.gz", i)] = fileOf(rev1, string(rand.Bytes(500*1024)))
	}
	pub.publish(t, files)

	for name, backend := range map[string]func(string) store.Backend{
		"badger": func(dir string) store.Backend { return bdgr.New(dir) },
		"sqlite": func(dir string) store.Backend { return sqlite.New(dir) },
	} {
		t.Run(name, func(t *testing.T) {
			opener := store.NewOpener(backend(t.TempDir()), store.BlockedTimeout(time.Second))
			t.Cleanup(func() { _ = opener.Close() })

			first := NewSession(pub.fetcher(), opener, WithLogger(zaptest.NewLogger(t)))
			dataset, err := first.Load(context.Background())
			require.NoError(t, err)
			require.NoError(t, first.Wait())
			require.NoError(t, first.Close())
			assert.Equal(t, CommitWritten, first.CommitResult())
			assert.Equal(t, len(files), dataset.Count(model.SourceNetwork))

			second := NewSession(pub.fetcher(), opener, WithLogger(zaptest.NewLogger(t)))
			dataset, err = second.Load(context.Background())
			require.NoError(t, err)
			require.NoError(t, second.Wait())
			require.NoError(t, second.Close())
			assert.Equal(t, CommitUpToDate, second.CommitResult())
			assert.Equal(t, len(files), dataset.Count(model.SourceCache))
			assert.Zero(t, dataset.Count(model.SourceNetwork))
			for name, f := range files {
				blob, ok := dataset.Get(name)
				require.True(t, ok)
				assert.True(t, f.content == string(blob), "%s differs", name)
			}
		})
	}
}

func TestCommitIgnoresCallerChanges(t *testing.T) {
	e := newEnv(t)
	e.pub.publish(t, map[string]file{
		"a.gz": fileOf(rev1, "a"),
		"b.gz": fileOf(rev1, "b"),
	})

	s := e.session()
	dataset, err := s.Load(context.Background())
	require.NoError(t, err)
	dataset.Blobs["a.gz"] = []byte("changed by the caller")
	delete(dataset.Blobs, "b.gz")
	require.NoError(t, s.Wait())
	assert.Equal(t, CommitWritten, s.CommitResult())

	_, dataset = e.sync()
	assert.Equal(t, 2, dataset.Count(model.SourceCache))
	blob, ok := dataset.Get("a.gz")
	require.True(t, ok)
	assert.Equal(t, "a", string(blob))
	blob, ok = dataset.Get("b.gz")
	require.True(t, ok)
	assert.Equal(t, "b", string(blob))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "read-dataversion-or-manifest", StateReadDataVersionOrManifest.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "up-to-date", CommitUpToDate.String())
	assert.Equal(t, "unknown", CommitResult(99).String())
}
