// Copyright © 2018 One Concern

package model

import "maps"

// Index is a decoded manifest along with its original wire representation.
//
// The raw bytes are kept so the local store can persist the index exactly as published.
type Index struct {
	Manifest Manifest
	Raw      []byte
}

// NewIndex builds an Index from a manifest, encoding it to wire format
func NewIndex(m Manifest) (*Index, error) {
	raw, err := EncodeManifest(m)
	if err != nil {
		return nil, err
	}
	return &Index{Manifest: m, Raw: raw}, nil
}

// Source tells where a blob of the assembled dataset came from
type Source uint8

const (
	// SourceNone means the blob is not available yet
	SourceNone Source = iota
	// SourceCache means the blob was copied from the local store
	SourceCache
	// SourceNetwork means the blob was fetched from the remote source
	SourceNetwork
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	default:
		return "none"
	}
}

// Dataset is the complete in-memory dataset assembled for one remote manifest
type Dataset struct {
	Index   *Index
	Blobs   map[string][]byte
	Sources map[string]Source
}

// NewDataset prepares an empty dataset for a remote index
func NewDataset(index *Index) *Dataset {
	return &Dataset{
		Index:   index,
		Blobs:   make(map[string][]byte, len(index.Manifest)),
		Sources: make(map[string]Source, len(index.Manifest)),
	}
}

// Manifest of this dataset
func (d *Dataset) Manifest() Manifest {
	return d.Index.Manifest
}

// Snapshot copies the dataset maps. Blob contents are shared with the original.
func (d *Dataset) Snapshot() *Dataset {
	return &Dataset{
		Index:   d.Index,
		Blobs:   maps.Clone(d.Blobs),
		Sources: maps.Clone(d.Sources),
	}
}

// Get the content of a file
func (d *Dataset) Get(name string) ([]byte, bool) {
	b, ok := d.Blobs[name]
	return b, ok
}

// Attach a blob to the dataset
func (d *Dataset) Attach(name string, data []byte, source Source) {
	d.Blobs[name] = data
	d.Sources[name] = source
}

// Missing lists, in sorted order, the manifest entries with no attached blob yet
func (d *Dataset) Missing() []string {
	missing := make([]string, 0, len(d.Index.Manifest))
	for _, name := range d.Index.Manifest.Names() {
		if _, ok := d.Blobs[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Complete is true when every manifest entry has a blob
func (d *Dataset) Complete() bool {
	return len(d.Missing()) == 0
}

// Count the blobs attached from some source
func (d *Dataset) Count(source Source) int {
	var n int
	for _, s := range d.Sources {
		if s == source {
			n++
		}
	}
	return n
}
