package model

import "github.com/oneconcern/datasync/pkg/errors"

var (
	// ErrInvalidName indicates a manifest entry with a malformed or reserved file name
	ErrInvalidName = errors.New("invalid file name")

	// ErrInvalidRevision indicates a manifest entry with a malformed revision code
	ErrInvalidRevision = errors.New("invalid revision code")

	// ErrInvalidSize indicates a manifest entry with a negative or non-integer size
	ErrInvalidSize = errors.New("invalid byte size")

	// ErrInvalidEncoding indicates a manifest which could not be decoded
	ErrInvalidEncoding = errors.New("invalid manifest encoding")
)
