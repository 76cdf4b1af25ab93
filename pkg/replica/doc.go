// Copyright © 2018 One Concern

// Package replica maintains a client-local replica of a remotely published dataset.
//
// A Session loads the complete dataset once: it fetches the remote index, reuses
// whatever is current in the local store, downloads the rest and hands the dataset
// back to the caller. The local store is then brought up to date in the background.
//
// Several sessions, possibly in different processes, may share the same local store.
// They coordinate through two variables kept in the store: the epoch ("image"), bumped
// each time some session starts rebuilding the store, and the data version ("dataver"),
// present only when the store holds a complete, consistent dataset. A session remembers
// the epoch it observed at start: once the stored epoch moves on, the session is stale and
// leaves the store alone.
package replica
