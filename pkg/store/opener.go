// Copyright © 2018 One Concern

package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Opener hands out connections to named local databases and enforces
// structural version rules:
//
//   - a database with a newer version than requested cannot be opened (ErrVersionTooNew)
//   - a database with the requested version is connected to
//   - a database with an older version is wiped and recreated at the requested version,
//     once all other connections are closed. These connections are notified of the version
//     change. If they fail to close within the blocked timeout, Open returns ErrBlocked.
//
// Connections to the same name share one database handle.
type Opener struct {
	backend        Backend
	blockedTimeout time.Duration
	l              *zap.Logger

	mx  sync.Mutex
	dbs map[string]*handle
}

type handle struct {
	db      DB
	version int
	conns   map[*Conn]struct{}
	drained chan struct{}
}

// NewOpener builds an Opener for some backend
func NewOpener(backend Backend, opts ...Option) *Opener {
	o := &Opener{
		backend:        backend,
		blockedTimeout: DefaultBlockedTimeout,
		l:              zap.NewNop(),
		dbs:            make(map[string]*handle),
	}
	for _, apply := range opts {
		apply(o)
	}
	return o
}

func (o *Opener) String() string {
	return o.backend.String()
}

// lookup must be called with the lock held
func (o *Opener) lookup(ctx context.Context, name string) (*handle, error) {
	if h, ok := o.dbs[name]; ok {
		return h, nil
	}
	db, err := o.backend.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	version, err := db.StructuralVersion(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	h := &handle{
		db:      db,
		version: version,
		conns:   make(map[*Conn]struct{}),
	}
	o.dbs[name] = h
	return h, nil
}

// Open a connection to a named database at some structural version
func (o *Opener) Open(ctx context.Context, name string, version int) (*Conn, error) {
	if version < 1 {
		return nil, ErrInvalidVersion.Wrap(fmt.Errorf("%d", version))
	}

	o.mx.Lock()
	h, err := o.lookup(ctx, name)
	if err != nil {
		o.mx.Unlock()
		return nil, err
	}

	for {
		switch {
		case h.version > version:
			o.mx.Unlock()
			return nil, ErrVersionTooNew.Wrap(fmt.Errorf("%s is at version %d, requested %d", name, h.version, version))

		case h.version == version:
			conn := &Conn{
				name:          name,
				version:       version,
				db:            h.db,
				opener:        o,
				handle:        h,
				versionChange: make(chan int, 1),
			}
			h.conns[conn] = struct{}{}
			o.mx.Unlock()
			return conn, nil

		case len(h.conns) == 0:
			o.l.Info("upgrading local store",
				zap.String("store", name),
				zap.Int("from", h.version),
				zap.Int("to", version),
			)
			if err = h.db.Recreate(ctx, version); err != nil {
				o.mx.Unlock()
				return nil, err
			}
			h.version = version
			continue
		}

		if h.drained == nil {
			h.drained = make(chan struct{})
		}
		drained := h.drained
		for conn := range h.conns {
			conn.notify(version)
		}
		o.l.Info("waiting for connections to close before upgrade",
			zap.String("store", name),
			zap.Int("connections", len(h.conns)),
		)
		o.mx.Unlock()

		timer := time.NewTimer(o.blockedTimeout)
		select {
		case <-drained:
			timer.Stop()
		case <-timer.C:
			return nil, ErrBlocked.Wrap(fmt.Errorf("%s: waited %v", name, o.blockedTimeout))
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		o.mx.Lock()
	}
}

func (o *Opener) release(conn *Conn) {
	o.mx.Lock()
	defer o.mx.Unlock()
	h := conn.handle
	delete(h.conns, conn)
	if len(h.conns) == 0 && h.drained != nil {
		close(h.drained)
		h.drained = nil
	}
}

// Close all databases. Outstanding connections become unusable.
func (o *Opener) Close() error {
	o.mx.Lock()
	defer o.mx.Unlock()
	var firstErr error
	for name, h := range o.dbs {
		for conn := range h.conns {
			conn.closed.Store(true)
		}
		if err := h.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(o.dbs, name)
	}
	return firstErr
}

// Conn is a connection to a local database
type Conn struct {
	name          string
	version       int
	db            DB
	opener        *Opener
	handle        *handle
	closed        atomic.Bool
	versionChange chan int
}

func (c *Conn) notify(version int) {
	select {
	case c.versionChange <- version:
	default:
	}
}

// Name of the database
func (c *Conn) Name() string {
	return c.name
}

// Version is the structural version this connection was opened at
func (c *Conn) Version() int {
	return c.version
}

// VersionChange receives the requested structural version whenever another
// party wants to upgrade the database. The connection should be closed promptly.
func (c *Conn) VersionChange() <-chan int {
	return c.versionChange
}

// View runs a read-only transaction
func (c *Conn) View(ctx context.Context, fn func(Txn) error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.db.View(ctx, fn)
}

// Update runs a read-write transaction
func (c *Conn) Update(ctx context.Context, fn func(Txn) error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.db.Update(ctx, fn)
}

// Close the connection. Closing twice is a no-op.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.opener.release(c)
	return nil
}
