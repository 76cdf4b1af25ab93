// Copyright © 2018 One Concern

// Package store defines the client-local store holding the replicated dataset.
//
// A local store is a named database with two collections: "vars" holds the
// versioning variables and "blobs" holds file contents plus the cached index.
// Databases carry a structural version, checked whenever a connection is opened
// through an Opener.
//
// Concrete databases are provided by backends: bdgr (badger) and sqlite.
package store
