// Copyright © 2018 One Concern

// Package storage provides interface to handle backend storage objects.
//
// Stores are used as remote sources of a published dataset and as plain
// destinations when exporting a dataset to disk.
//
// This package supports the following backends:
//   - GCS (Google)
//   - S3 (AWS)
//   - HTTP(S), read-only
//   - local file system
package storage
