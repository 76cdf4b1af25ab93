// Package storetest exercises local store backends against the behavior expected by the store package.
package storetest

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/oneconcern/datasync/internal/rand"
	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run the backend conformance tests.
//
// When conflicts is true, the backend is expected to detect write-write conflicts between
// interleaved update transactions.
func Run(t *testing.T, backend store.Backend, conflicts bool) {
	t.Run("fresh database", func(t *testing.T) { testFresh(t, backend) })
	t.Run("round trip", func(t *testing.T) { testRoundTrip(t, backend) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, backend) })
	t.Run("recreate", func(t *testing.T) { testRecreate(t, backend) })
	t.Run("large transaction", func(t *testing.T) { testLargeTransaction(t, backend) })
	if conflicts {
		t.Run("conflict", func(t *testing.T) { testConflict(t, backend) })
	}
}

func open(t *testing.T, backend store.Backend, name string) store.DB {
	db, err := backend.Open(context.Background(), name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testFresh(t *testing.T, backend store.Backend) {
	ctx := context.Background()
	db := open(t, backend, "fresh")

	version, err := db.StructuralVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	require.NoError(t, db.View(ctx, func(txn store.Txn) error {
		for _, c := range store.Collections {
			keys, e := txn.Keys(c)
			require.NoError(t, e)
			assert.Empty(t, keys)
		}
		_, e := txn.Get(store.Vars, "image")
		assert.True(t, errors.Is(e, store.ErrKeyNotFound))
		return nil
	}))
}

func testRoundTrip(t *testing.T, backend store.Backend) {
	ctx := context.Background()
	db := open(t, backend, "roundtrip")
	require.NoError(t, db.Recreate(ctx, 1))

	blob := []byte{0x00, 0x1f, 0x8b, 0xff, 'x'}
	require.NoError(t, db.Update(ctx, func(txn store.Txn) error {
		require.NoError(t, txn.Set(store.Vars, "image", []byte("1")))
		require.NoError(t, txn.Set(store.Blobs, "a.gz", blob))
		require.NoError(t, txn.Set(store.Blobs, "b.gz", []byte{}))
		return txn.Set(store.Blobs, "c.gz", []byte("c"))
	}))

	require.NoError(t, db.View(ctx, func(txn store.Txn) error {
		v, e := txn.Get(store.Blobs, "a.gz")
		require.NoError(t, e)
		assert.Equal(t, blob, v)

		v, e = txn.Get(store.Blobs, "b.gz")
		require.NoError(t, e)
		assert.Empty(t, v)

		// collections are disjoint
		_, e = txn.Get(store.Vars, "a.gz")
		assert.True(t, errors.Is(e, store.ErrKeyNotFound))

		keys, e := txn.Keys(store.Blobs)
		require.NoError(t, e)
		sort.Strings(keys)
		assert.Equal(t, []string{"a.gz", "b.gz", "c.gz"}, keys)
		return nil
	}))

	require.NoError(t, db.Update(ctx, func(txn store.Txn) error {
		require.NoError(t, txn.Delete(store.Blobs, "c.gz"))
		require.NoError(t, txn.Delete(store.Blobs, "never-there"))
		return txn.Set(store.Blobs, "a.gz", []byte("replaced"))
	}))

	require.NoError(t, db.Update(ctx, func(txn store.Txn) error {
		v, e := txn.Get(store.Blobs, "a.gz")
		require.NoError(t, e)
		assert.Equal(t, []byte("replaced"), v)

		require.NoError(t, txn.Clear(store.Blobs))
		keys, e := txn.Keys(store.Blobs)
		require.NoError(t, e)
		assert.Empty(t, keys)
		return nil
	}))

	require.NoError(t, db.View(ctx, func(txn store.Txn) error {
		keys, e := txn.Keys(store.Blobs)
		require.NoError(t, e)
		assert.Empty(t, keys)

		v, e := txn.Get(store.Vars, "image")
		require.NoError(t, e)
		assert.Equal(t, []byte("1"), v)
		return nil
	}))
}

func testRollback(t *testing.T, backend store.Backend) {
	ctx := context.Background()
	db := open(t, backend, "rollback")
	require.NoError(t, db.Recreate(ctx, 1))

	boom := errors.New("boom")
	err := db.Update(ctx, func(txn store.Txn) error {
		require.NoError(t, txn.Set(store.Vars, "image", []byte("7")))
		return boom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	require.NoError(t, db.View(ctx, func(txn store.Txn) error {
		_, e := txn.Get(store.Vars, "image")
		assert.True(t, errors.Is(e, store.ErrKeyNotFound))
		return nil
	}))
}

func testRecreate(t *testing.T, backend store.Backend) {
	ctx := context.Background()
	db := open(t, backend, "recreate")
	require.NoError(t, db.Recreate(ctx, 1))
	require.NoError(t, db.Update(ctx, func(txn store.Txn) error {
		require.NoError(t, txn.Set(store.Vars, "image", []byte("3")))
		return txn.Set(store.Blobs, "a.gz", []byte("a"))
	}))

	require.NoError(t, db.Recreate(ctx, 2))
	version, err := db.StructuralVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	require.NoError(t, db.View(ctx, func(txn store.Txn) error {
		for _, c := range store.Collections {
			keys, e := txn.Keys(c)
			require.NoError(t, e)
			assert.Empty(t, keys)
		}
		return nil
	}))
}

// LargeBlobs is the number of blobs written by the large transaction test
const LargeBlobs = 24

// LargeBlobSize is the size of the blobs written by the large transaction test
const LargeBlobSize = 512 * 1024

// LargeTransaction writes LargeBlobs blobs of LargeBlobSize bytes in a single update
func LargeTransaction(ctx context.Context, db store.DB) ([][]byte, error) {
	blobs := make([][]byte, LargeBlobs)
	for i := range blobs {
		blobs[i] = rand.Bytes(LargeBlobSize)
	}
	return blobs, db.Update(ctx, func(txn store.Txn) error {
		for i, blob := range blobs {
			if err := txn.Set(store.Blobs, fmt.Sprintf("blob-%02d.gz", i), blob); err != nil {
				return err
			}
		}
		return txn.Set(store.Vars, "image", []byte("1"))
	})
}

func testLargeTransaction(t *testing.T, backend store.Backend) {
	ctx := context.Background()
	db := open(t, backend, "large")
	require.NoError(t, db.Recreate(ctx, 1))

	blobs, err := LargeTransaction(ctx, db)
	require.NoError(t, err)

	require.NoError(t, db.View(ctx, func(txn store.Txn) error {
		keys, e := txn.Keys(store.Blobs)
		require.NoError(t, e)
		assert.Len(t, keys, LargeBlobs)
		for i, blob := range blobs {
			v, e := txn.Get(store.Blobs, fmt.Sprintf("blob-%02d.gz", i))
			require.NoError(t, e)
			assert.True(t, bytes.Equal(blob, v), "blob %d differs", i)
		}
		return nil
	}))
}

// testConflict interleaves two update transactions which both read then write the same key
func testConflict(t *testing.T, backend store.Backend) {
	ctx := context.Background()
	db := open(t, backend, "conflict")
	require.NoError(t, db.Recreate(ctx, 1))

	var (
		read sync.WaitGroup
		done sync.WaitGroup
	)
	read.Add(2)
	done.Add(2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer done.Done()
			errs[i] = db.Update(ctx, func(txn store.Txn) error {
				_, e := txn.Get(store.Vars, "image")
				read.Done()
				read.Wait()
				if e != nil && !errors.Is(e, store.ErrKeyNotFound) {
					return e
				}
				return txn.Set(store.Vars, "image", []byte("1"))
			})
		}(i)
	}
	done.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
}
