// Package model describes the objects exchanged between a remote source and a local replica.
//
// The object model for datasync is composed of:
//
//	Revision codes:
//	  A per-file version string "YYYY-MM-DD:RRR", ordered by plain string comparison.
//
//	Manifests:
//	  A map of file names to their revision and size. A published manifest is the index
//	  of a dataset. It is stored under the reserved key "index", gzip-compressed JSON.
//
//	Datasets:
//	  The complete in-memory content of the files listed by a remote index, with the
//	  origin (cache or network) of every file.
package model
