package bdgr

import (
	"context"
	"testing"

	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/store"
	"github.com/oneconcern/datasync/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryBackend(t *testing.T) {
	// in-memory transactions are bounded by the memtable size
	storetest.Run(t, New("", Logger(zap.NewNop()), MemTableSize(128<<20)), true)
}

func TestInMemoryTransactionLimit(t *testing.T) {
	ctx := context.Background()
	db, err := New("").Open(ctx, "limit")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Recreate(ctx, 1))

	_, err = storetest.LargeTransaction(ctx, db)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrTooLarge))
	assert.False(t, errors.Is(err, store.ErrConflict))

	require.NoError(t, db.View(ctx, func(txn store.Txn) error {
		keys, e := txn.Keys(store.Blobs)
		require.NoError(t, e)
		assert.Empty(t, keys)
		return nil
	}))
}

func TestOnDiskLargeTransactionWithSmallMemTable(t *testing.T) {
	ctx := context.Background()
	// 15% of 16MB is less than the dataset: blobs must be kept out of the memtable
	db, err := New(t.TempDir(), MemTableSize(16<<20)).Open(ctx, "small")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Recreate(ctx, 1))

	_, err = storetest.LargeTransaction(ctx, db)
	require.NoError(t, err)
}

func TestOnDiskBackend(t *testing.T) {
	storetest.Run(t, New(t.TempDir()), true)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	backend := New(t.TempDir())

	db, err := backend.Open(ctx, "persist")
	require.NoError(t, err)
	require.NoError(t, db.Recreate(ctx, 4))
	require.NoError(t, db.Update(ctx, func(txn store.Txn) error {
		return txn.Set(store.Vars, "dataver", []byte("2022-01-01:001"))
	}))
	require.NoError(t, db.Close())

	db, err = backend.Open(ctx, "persist")
	require.NoError(t, err)
	defer db.Close()

	version, err := db.StructuralVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, version)
	require.NoError(t, db.View(ctx, func(txn store.Txn) error {
		v, e := txn.Get(store.Vars, "dataver")
		require.NoError(t, e)
		assert.Equal(t, "2022-01-01:001", string(v))
		return nil
	}))
}
