// Copyright © 2018 One Concern

// Package remote fetches the published dataset: its index and file contents.
//
// The remote source is any storage.Store. Published datasets hold one object per
// file, named after the file, plus the gzip-compressed index under the "index" key.
package remote
