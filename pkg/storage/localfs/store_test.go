// Copyright © 2018 One Concern

package localfs

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/storage"
	"github.com/oneconcern/datasync/pkg/storage/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHas(t *testing.T) {
	bs := setupStore(t)

	has, err := bs.Has(context.Background(), "sixteentons")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "seventeentons")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "fifteentons")
	require.NoError(t, err)
	require.False(t, has)
}

func TestGet(t *testing.T) {
	bs := setupStore(t)

	rdr, err := bs.Get(context.Background(), "sixteentons")
	require.NoError(t, err)
	b, err := io.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())
	assert.Equal(t, "this is the text", string(b))

	b, err = storage.ReadAll(context.Background(), bs, "seventeentons")
	require.NoError(t, err)
	assert.Equal(t, "this is the text for another thing", string(b))

	_, err = bs.Get(context.Background(), "fifteentons")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotExists))
}

func TestKeys(t *testing.T) {
	bs := setupStore(t)

	keys, err := bs.Keys(context.Background())
	require.NoError(t, err)
	sort.Strings(keys)
	require.Equal(t, []string{"seventeentons", "sixteentons"}, keys)
}

func TestDelete(t *testing.T) {
	bs := setupStore(t)

	require.NoError(t, bs.Delete(context.Background(), "seventeentons"))
	require.NoError(t, bs.Delete(context.Background(), "seventeentons"))
	k, _ := bs.Keys(context.Background())
	assert.Len(t, k, 1)
}

func TestClear(t *testing.T) {
	bs := setupStore(t)

	require.NoError(t, bs.Clear(context.Background()))
	k, _ := bs.Keys(context.Background())
	require.Empty(t, k)
}

func TestPut(t *testing.T) {
	bs := setupStore(t)

	content := bytes.NewBufferString("here we go once again")
	err := bs.Put(context.Background(), "eighteentons", content, storage.NoOverWrite)
	require.NoError(t, err)

	b, err := storage.ReadAll(context.Background(), bs, "eighteentons")
	require.NoError(t, err)
	assert.Equal(t, "here we go once again", string(b))

	k, _ := bs.Keys(context.Background())
	assert.Len(t, k, 3)

	err = bs.Put(context.Background(), "eighteentons", bytes.NewBufferString("again"), storage.NoOverWrite)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrExists))

	require.NoError(t, bs.Put(context.Background(), "eighteentons", bytes.NewBufferString("again"), storage.OverWrite))
	b, err = storage.ReadAll(context.Background(), bs, "eighteentons")
	require.NoError(t, err)
	assert.Equal(t, "again", string(b))
}

func TestAtomicPut(t *testing.T) {
	fs := afero.NewMemMapFs()
	bs, err := NewAtomic(fs)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bs.Put(ctx, "dir/a.gz", bytes.NewBufferString("aaa"), storage.NoOverWrite))
	require.NoError(t, bs.Put(ctx, "b.gz", bytes.NewBufferString("bb"), storage.NoOverWrite))

	keys, err := bs.Keys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"b.gz", "dir/a.gz"}, keys)

	_, err = bs.Get(ctx, ".put-stage/b.gz")
	require.Error(t, err)

	err = bs.Put(ctx, "b.gz", bytes.NewBufferString("bb"), storage.NoOverWrite)
	assert.True(t, errors.Is(err, status.ErrExists))

	require.NoError(t, bs.Clear(ctx))
	keys, err = bs.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	require.NoError(t, bs.Put(ctx, "c.gz", bytes.NewBufferString("c"), storage.NoOverWrite))
}

func setupStore(t testing.TB) storage.Store {
	t.Helper()

	fs := afero.NewMemMapFs()
	f, err := fs.Create("sixteentons")
	require.NoError(t, err)
	_, err = f.WriteString("this is the text")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ff, err := fs.Create("seventeentons")
	require.NoError(t, err)
	_, err = ff.WriteString("this is the text for another thing")
	require.NoError(t, err)
	require.NoError(t, ff.Close())

	return New(fs)
}
