// Package sqlite implements local store databases on top of an embedded SQLite engine.
//
// Several processes may share the same database file. Write transactions begin
// immediately, so concurrent writers are serialized by SQLite's own locking.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the SQLite engine
	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/store"
	"go.uber.org/zap"
)

const busyTimeoutMs = 10000

// Option for the sqlite backend
type Option func(*backend)

// Logger for the sqlite backend
func Logger(l *zap.Logger) Option {
	return func(b *backend) {
		if l != nil {
			b.l = l
		}
	}
}

type backend struct {
	baseDir string
	l       *zap.Logger
}

// New sqlite backend, storing one database file per name under some base directory
func New(baseDir string, opts ...Option) store.Backend {
	b := &backend{
		baseDir: baseDir,
		l:       zap.NewNop(),
	}
	for _, apply := range opts {
		apply(b)
	}
	return b
}

func (b *backend) String() string {
	return "sqlite:" + b.baseDir
}

func (b *backend) Open(ctx context.Context, name string) (store.DB, error) {
	if err := os.MkdirAll(b.baseDir, 0700); err != nil {
		return nil, fmt.Errorf("sqlite: mkdir: %w", err)
	}
	pth := filepath.Join(b.baseDir, name+".db")
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=journal_mode(wal)", pth, busyTimeoutMs)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", pth, err)
	}
	if err = conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", pth, err)
	}

	db := &sqliteDB{conn: conn, path: pth, l: b.l}
	if err = db.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	b.l.Debug("opened sqlite local store", zap.String("path", pth))
	return db, nil
}

type sqliteDB struct {
	conn *sql.DB
	path string
	l    *zap.Logger
}

func createStatements() []string {
	stmts := make([]string, 0, len(store.Collections))
	for _, c := range store.Collections {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value BLOB NOT NULL) WITHOUT ROWID`, c))
	}
	return stmts
}

func (db *sqliteDB) ensureSchema(ctx context.Context) error {
	for _, stmt := range createStatements() {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return rewriteError(err)
		}
	}
	return nil
}

func (db *sqliteDB) StructuralVersion(ctx context.Context) (int, error) {
	var version int
	if err := db.conn.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return 0, rewriteError(err)
	}
	return version, nil
}

func (db *sqliteDB) Recreate(ctx context.Context, version int) error {
	return db.Update(ctx, func(t store.Txn) error {
		tx := t.(*sqlTxn)
		for _, c := range store.Collections {
			if _, err := tx.tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, c)); err != nil {
				return err
			}
		}
		for _, stmt := range createStatements() {
			if _, err := tx.tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		// PRAGMA does not accept bound parameters
		_, err := tx.tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, version))
		return err
	})
}

func (db *sqliteDB) View(ctx context.Context, fn func(store.Txn) error) error {
	tx, err := db.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return rewriteError(err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&sqlTxn{ctx: ctx, tx: tx})
}

func (db *sqliteDB) Update(ctx context.Context, fn func(store.Txn) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return rewriteError(err)
	}
	if err = fn(&sqlTxn{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return rewriteError(tx.Commit())
}

func (db *sqliteDB) Close() error {
	return db.conn.Close()
}

type sqlTxn struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqlTxn) Get(c store.Collection, k string) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, c), k).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrKeyNotFound.Wrap(fmt.Errorf("%s/%s", c, k))
		}
		return nil, rewriteError(err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (t *sqlTxn) Set(c store.Collection, k string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := t.tx.ExecContext(t.ctx,
		fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, c),
		k, value)
	return rewriteError(err)
}

func (t *sqlTxn) Delete(c store.Collection, k string) error {
	_, err := t.tx.ExecContext(t.ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, c), k)
	return rewriteError(err)
}

func (t *sqlTxn) Keys(c store.Collection) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx, fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, c))
	if err != nil {
		return nil, rewriteError(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			return nil, rewriteError(err)
		}
		keys = append(keys, k)
	}
	return keys, rewriteError(rows.Err())
}

func (t *sqlTxn) Clear(c store.Collection) error {
	_, err := t.tx.ExecContext(t.ctx, fmt.Sprintf(`DELETE FROM %s`, c))
	return rewriteError(err)
}

// rewriteError maps lock contention onto the store conflict error
func rewriteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED) {
		return store.ErrConflict.Wrap(err)
	}
	return err
}
