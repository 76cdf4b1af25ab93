// Copyright © 2018 One Concern

// Package bdgr implements local store databases on top of badger.
package bdgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dgraph-io/badger/v3"
	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/store"
	"go.uber.org/zap"
)

var (
	versionKey = []byte("meta:version")
	prefixes   = map[store.Collection][]byte{
		store.Vars:  []byte("vars:"),
		store.Blobs: []byte("blobs:"),
	}
)

// Option for the badger backend
type Option func(*backend)

// Logger routes badger logs to a zap logger
func Logger(l *zap.Logger) Option {
	return func(b *backend) {
		if l != nil {
			b.l = l
		}
	}
}

// MemTableSize sets the size of badger memtables.
//
// Badger limits the size of a single transaction to a fraction of this size:
// large datasets need larger memtables.
func MemTableSize(size int64) Option {
	return func(b *backend) {
		if size > 0 {
			b.memTableSize = size
		}
	}
}

// DefaultValueThreshold is the size from which values are kept in the value log.
//
// Blobs in the value log count as pointers toward the size limit of a transaction.
const DefaultValueThreshold = 64

// ValueThreshold sets the size from which values are kept in the value log.
//
// In-memory databases keep every value in memtables, and ignore this setting.
func ValueThreshold(size int64) Option {
	return func(b *backend) {
		if size > 0 {
			b.valueThreshold = size
		}
	}
}

type backend struct {
	baseDir        string
	memTableSize   int64
	valueThreshold int64
	l              *zap.Logger
}

// New badger backend, storing databases under some base directory.
//
// With an empty base directory, databases are kept in memory. A transaction on an
// in-memory database may then not exceed about 15% of the memtable size.
func New(baseDir string, opts ...Option) store.Backend {
	b := &backend{
		baseDir:        baseDir,
		valueThreshold: DefaultValueThreshold,
		l:              zap.NewNop(),
	}
	for _, apply := range opts {
		apply(b)
	}
	return b
}

func (b *backend) String() string {
	if b.baseDir == "" {
		return "badger (in-memory)"
	}
	return "badger:" + b.baseDir
}

func (b *backend) Open(_ context.Context, name string) (store.DB, error) {
	var options badger.Options
	if b.baseDir == "" {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		pth := filepath.Join(b.baseDir, name)
		if err := os.MkdirAll(pth, 0700); err != nil {
			return nil, fmt.Errorf("badger: mkdir: %w", err)
		}
		options = badger.DefaultOptions(pth).WithValueThreshold(b.valueThreshold)
	}
	options = options.
		WithLogger(badgerLogger{b.l.Sugar()}).
		WithLoggingLevel(badger.WARNING).
		WithMetricsEnabled(false)
	if b.memTableSize > 0 {
		options = options.WithMemTableSize(b.memTableSize)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, err
	}
	return &kvBadger{DB: db}, nil
}

// kvBadger provides a local store database based on dgraph-io/badger/v3
type kvBadger struct {
	*badger.DB
}

// Close reclaims value log space left by replaced blobs, then closes the database
func (kv *kvBadger) Close() error {
	for kv.DB.RunValueLogGC(0.5) == nil {
	}
	return kv.DB.Close()
}

func (kv *kvBadger) StructuralVersion(ctx context.Context) (int, error) {
	var version int
	err := kv.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			v, e := strconv.Atoi(string(val))
			version = v
			return e
		})
	})
	return version, err
}

func (kv *kvBadger) Recreate(ctx context.Context, version int) error {
	if err := kv.DB.DropAll(); err != nil {
		return err
	}
	return kv.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(versionKey, []byte(strconv.Itoa(version)))
	})
}

func (kv *kvBadger) View(ctx context.Context, fn func(store.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return kv.DB.View(func(txn *badger.Txn) error {
		return fn(&kvTxn{txn: txn})
	})
}

func (kv *kvBadger) Update(ctx context.Context, fn func(store.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := kv.DB.Update(func(txn *badger.Txn) error {
		return fn(&kvTxn{txn: txn})
	})
	switch {
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrTooLarge):
		return err
	case errors.Is(err, badger.ErrConflict):
		return store.ErrConflict.Wrap(err)
	case errors.Is(err, badger.ErrTxnTooBig):
		return store.ErrTooLarge.Wrap(err)
	default:
		return err
	}
}

type kvTxn struct {
	txn *badger.Txn
}

func key(c store.Collection, k string) []byte {
	prefix := prefixes[c]
	out := make([]byte, 0, len(prefix)+len(k))
	out = append(out, prefix...)
	return append(out, store.UnsafeStringToBytes(k)...)
}

func rewriteError(c store.Collection, k string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return store.ErrKeyNotFound.Wrap(fmt.Errorf("%s/%s", c, k))
	case errors.Is(err, badger.ErrConflict):
		return store.ErrConflict.Wrap(err)
	case errors.Is(err, badger.ErrTxnTooBig):
		return store.ErrTooLarge.Wrap(fmt.Errorf("%s/%s: %w", c, k, err))
	default:
		return err
	}
}

func (t *kvTxn) Get(c store.Collection, k string) ([]byte, error) {
	item, err := t.txn.Get(key(c, k))
	if err != nil {
		return nil, rewriteError(c, k, err)
	}
	return item.ValueCopy(nil)
}

func (t *kvTxn) Set(c store.Collection, k string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return rewriteError(c, k, t.txn.Set(key(c, k), value))
}

func (t *kvTxn) Delete(c store.Collection, k string) error {
	return rewriteError(c, k, t.txn.Delete(key(c, k)))
}

func (t *kvTxn) Keys(c store.Collection) ([]string, error) {
	prefix := prefixes[c]
	iterator := t.txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: false,
		Prefix:         prefix,
	})
	defer iterator.Close()

	var keys []string
	for iterator.Rewind(); iterator.Valid(); iterator.Next() {
		k := iterator.Item().Key()
		keys = append(keys, string(k[len(prefix):]))
	}
	return keys, nil
}

func (t *kvTxn) Clear(c store.Collection) error {
	keys, err := t.Keys(c)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := t.Delete(c, k); err != nil {
			return err
		}
	}
	return nil
}

// badgerLogger adapts a zap logger to badger's logging interface
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.SugaredLogger.Warnf(format, args...)
}
