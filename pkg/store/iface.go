package store

import "context"

// Collection within a local database
type Collection string

const (
	// Vars holds the versioning variables
	Vars Collection = "vars"

	// Blobs holds file contents and the cached index
	Blobs Collection = "blobs"
)

// Collections lists all the collections of a local database
var Collections = []Collection{Vars, Blobs}

// Backend knows how to open named databases
type Backend interface {
	String() string

	// Open a database, creating it empty when it does not exist yet
	Open(context.Context, string) (DB, error)
}

// DB is a transactional local database.
//
// Update transactions are optimistic: a commit which conflicts with a concurrent
// commit fails with ErrConflict and leaves the database untouched.
type DB interface {
	// StructuralVersion of the database. A fresh database is at version 0.
	StructuralVersion(context.Context) (int, error)

	// Recreate wipes all collections and sets the structural version
	Recreate(context.Context, int) error

	View(context.Context, func(Txn) error) error
	Update(context.Context, func(Txn) error) error
	Close() error
}

// Txn gives access to collections within a transaction.
//
// Get returns ErrKeyNotFound for missing keys.
type Txn interface {
	Get(Collection, string) ([]byte, error)
	Set(Collection, string, []byte) error
	Delete(Collection, string) error
	Keys(Collection) ([]string, error)
	Clear(Collection) error
}
