// Copyright © 2018 One Concern

// Package status declares the errors reported when synchronizing a local replica.
//
// Only ErrIndexInvalid and ErrTransportFailure abort a load. The other conditions
// are absorbed by the session, which then degrades to network-only operation or
// skips persistence.
package status

import "github.com/oneconcern/datasync/pkg/errors"

var (
	// ErrStoreUnavailable indicates that the local store could not be opened or used
	ErrStoreUnavailable = errors.New("local store unavailable")

	// ErrIndexInvalid indicates a manifest which could not be decoded or validated
	ErrIndexInvalid = errors.New("invalid index")

	// ErrTransportFailure indicates a failure to fetch some object from the remote source
	ErrTransportFailure = errors.New("transport failure")

	// ErrStaleInstance indicates that another instance has rebuilt the local store since this session started
	ErrStaleInstance = errors.New("stale instance")

	// ErrSyncCommitFailure indicates that persisting the dataset to the local store failed
	ErrSyncCommitFailure = errors.New("sync commit failure")

	// ErrSessionUsed indicates an attempt to load a session twice
	ErrSessionUsed = errors.New("session already loaded")
)
