package replica

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oneconcern/datasync/pkg/model"
	"github.com/oneconcern/datasync/pkg/remote"
	"github.com/oneconcern/datasync/pkg/storage"
	"github.com/oneconcern/datasync/pkg/storage/localfs"
	"github.com/oneconcern/datasync/pkg/store"
	"github.com/oneconcern/datasync/pkg/store/bdgr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type file struct {
	rev     string
	content string
}

func fileOf(rev, content string) file {
	return file{rev: rev, content: content}
}

// publisher maintains a remote source in memory
type publisher struct {
	source storage.Store
}

func newPublisher() *publisher {
	return &publisher{source: localfs.New(afero.NewMemMapFs())}
}

func (p *publisher) publish(t testing.TB, files map[string]file) model.Manifest {
	ctx := context.Background()
	require.NoError(t, p.source.Clear(ctx))

	manifest := make(model.Manifest, len(files))
	for name, f := range files {
		manifest[name] = model.Entry{Revision: model.RevisionCode(f.rev), Size: int64(len(f.content))}
		require.NoError(t, p.source.Put(ctx, name, bytes.NewReader([]byte(f.content)), storage.OverWrite))
	}
	raw, err := model.EncodeManifest(manifest)
	require.NoError(t, err)
	require.NoError(t, p.source.Put(ctx, model.IndexKey, bytes.NewReader(raw), storage.OverWrite))
	return manifest
}

func (p *publisher) fetcher() *remote.Fetcher {
	return remote.New(p.source, remote.Retries(0))
}

// countingBackend counts the mutations made by update transactions
type countingBackend struct {
	store.Backend
	writes atomic.Int64

	mx       sync.Mutex
	onUpdate func(store.Txn) store.Txn
	onView   func()
}

func newCountingBackend() *countingBackend {
	return &countingBackend{Backend: bdgr.New("")}
}

func (b *countingBackend) Open(ctx context.Context, name string) (store.DB, error) {
	db, err := b.Backend.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingDB{DB: db, backend: b}, nil
}

func (b *countingBackend) hooks() (func(store.Txn) store.Txn, func()) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.onUpdate, b.onView
}

type countingDB struct {
	store.DB
	backend *countingBackend
}

func (d *countingDB) Update(ctx context.Context, fn func(store.Txn) error) error {
	return d.DB.Update(ctx, func(txn store.Txn) error {
		wrapped := store.Txn(&countingTxn{Txn: txn, writes: &d.backend.writes})
		if onUpdate, _ := d.backend.hooks(); onUpdate != nil {
			wrapped = onUpdate(wrapped)
		}
		return fn(wrapped)
	})
}

func (d *countingDB) View(ctx context.Context, fn func(store.Txn) error) error {
	if _, onView := d.backend.hooks(); onView != nil {
		onView()
	}
	return d.DB.View(ctx, fn)
}

type countingTxn struct {
	store.Txn
	writes *atomic.Int64
}

func (t *countingTxn) Set(c store.Collection, k string, v []byte) error {
	t.writes.Add(1)
	return t.Txn.Set(c, k, v)
}

func (t *countingTxn) Delete(c store.Collection, k string) error {
	t.writes.Add(1)
	return t.Txn.Delete(c, k)
}

func (t *countingTxn) Clear(c store.Collection) error {
	t.writes.Add(1)
	return t.Txn.Clear(c)
}

// barrierTxn holds the first readers of the epoch until all of them have read it
type barrierTxn struct {
	store.Txn
	b *barrier
}

type barrier struct {
	parties int32
	arrived atomic.Int32
	wg      sync.WaitGroup
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: int32(parties)}
	b.wg.Add(parties)
	return b
}

func (b *barrier) arrive() {
	if b.arrived.Add(1) <= b.parties {
		b.wg.Done()
		b.wg.Wait()
	}
}

func (t *barrierTxn) Get(c store.Collection, k string) ([]byte, error) {
	v, err := t.Txn.Get(c, k)
	if c == store.Vars && k == varEpoch {
		t.b.arrive()
	}
	return v, err
}

type env struct {
	t       testing.TB
	pub     *publisher
	backend *countingBackend
	opener  *store.Opener
}

func newEnv(t testing.TB) *env {
	backend := newCountingBackend()
	opener := store.NewOpener(backend, store.BlockedTimeout(5*time.Second))
	t.Cleanup(func() { _ = opener.Close() })
	return &env{
		t:       t,
		pub:     newPublisher(),
		backend: backend,
		opener:  opener,
	}
}

func (e *env) session(opts ...Option) *Session {
	s := NewSession(e.pub.fetcher(), e.opener, append([]Option{WithLogger(zaptest.NewLogger(e.t))}, opts...)...)
	e.t.Cleanup(func() { _ = s.Close() })
	return s
}

// sync runs a complete session and waits for its commit
func (e *env) sync(opts ...Option) (*Session, *model.Dataset) {
	s := e.session(opts...)
	dataset, err := s.Load(context.Background())
	require.NoError(e.t, err)
	_ = s.Wait()
	return s, dataset
}

func (e *env) inspect() *StoreStatus {
	st, err := Inspect(context.Background(), e.opener, DefaultConfig())
	require.NoError(e.t, err)
	return st
}

// update runs a raw transaction against the local store
func (e *env) update(fn func(store.Txn) error) {
	conn, err := e.opener.Open(context.Background(), DefaultStoreName, StructuralVersion)
	require.NoError(e.t, err)
	defer conn.Close()
	require.NoError(e.t, conn.Update(context.Background(), fn))
}

func (e *env) blobKeys() []string {
	conn, err := e.opener.Open(context.Background(), DefaultStoreName, StructuralVersion)
	require.NoError(e.t, err)
	defer conn.Close()

	var keys []string
	require.NoError(e.t, conn.View(context.Background(), func(txn store.Txn) error {
		var e error
		keys, e = txn.Keys(store.Blobs)
		return e
	}))
	return keys
}

func stringsReader(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}
