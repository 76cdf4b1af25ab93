// Copyright © 2018 One Concern

package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/oneconcern/datasync/pkg/storage/status"
)

const (
	// MaxObjectSizeInMemory caps the size of objects read in memory
	MaxObjectSizeInMemory = 2 * 1024 * 1024 * 1024 // 2 gigs

	// NoOverWrite requires a Put to fail when the key already exists
	NoOverWrite = true

	// OverWrite allows a Put to replace an existing key
	OverWrite = false
)

// Store implementations know how to read and write entries to some K/V backend.
//
// Typically this is something file system-like. Examples are S3, GCS, a web server, local FS, ...
// Implementations of this interface are assumed to be fairly simple.
//
// Read-only implementations return status.ErrNotSupported on mutating calls.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader, bool) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	Clear(context.Context) error
}

// ReadAll retrieves a whole object in memory
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	object, err := io.ReadAll(io.LimitReader(reader, MaxObjectSizeInMemory+1))
	if err != nil {
		return nil, err
	}
	if len(object) > MaxObjectSizeInMemory {
		return nil, status.ErrObjectTooBig
	}
	return object, nil
}

// ReadTee reads from a source and duplicates the output to another destination store
func ReadTee(ctx context.Context, sStore Store, source string, dStore Store, destination string) ([]byte, error) {
	object, err := ReadAll(ctx, sStore, source)
	if err != nil {
		return nil, err
	}
	err = dStore.Put(ctx, destination, bytes.NewReader(object), OverWrite)
	if err != nil {
		return nil, err
	}
	return object, nil
}

// PipeIO copies a reader to a writer, preferring the fast path exposed by io.WriterTo
func PipeIO(writer io.Writer, reader io.Reader) (int64, error) {
	if wt, ok := reader.(io.WriterTo); ok {
		return wt.WriteTo(writer)
	}
	return io.Copy(writer, reader)
}
