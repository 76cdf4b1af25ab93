// Copyright © 2018 One Concern

package model

import (
	"fmt"
	"regexp"
	"sort"
)

// IndexKey is the reserved storage key holding the manifest itself,
// on the remote source as well as in the local store.
const IndexKey = "index"

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// ValidName checks a file name: alphanumerics, '_' and '-', with optional
// single internal dots. The reserved name "index" is rejected.
func ValidName(name string) error {
	if name == IndexKey {
		return ErrInvalidName.Wrap(fmt.Errorf("%q is reserved", name))
	}
	if !nameRe.MatchString(name) {
		return ErrInvalidName.Wrap(fmt.Errorf("%q", name))
	}
	return nil
}

// Entry describes one file of the dataset
type Entry struct {
	Revision RevisionCode `json:"revision" yaml:"revision"`
	Size     int64        `json:"size" yaml:"size"`
}

// Manifest maps file names to their revision and size.
//
// The same structure describes the remote (authoritative) and the local (cached) views
// of the dataset. It never lists its own storage key.
type Manifest map[string]Entry

// Validate checks every entry of the manifest. A single bad entry invalidates the whole manifest.
func (m Manifest) Validate() error {
	for name, entry := range m {
		if err := ValidName(name); err != nil {
			return err
		}
		if !entry.Revision.Valid() {
			return ErrInvalidRevision.Wrap(fmt.Errorf("%q for %q", entry.Revision, name))
		}
		if entry.Size < 0 {
			return ErrInvalidSize.Wrap(fmt.Errorf("%d for %q", entry.Size, name))
		}
	}
	return nil
}

// Names returns the sorted list of file names
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version of the manifest, i.e. the most recent revision of all its entries.
//
// An empty manifest has an empty version, which sorts before any valid revision.
func (m Manifest) Version() RevisionCode {
	var version RevisionCode
	for _, entry := range m {
		if entry.Revision.Newer(version) {
			version = entry.Revision
		}
	}
	return version
}

// TotalSize sums the sizes of the entries with the given names
func (m Manifest) TotalSize(names []string) int64 {
	var total int64
	for _, name := range names {
		total += m[name].Size
	}
	return total
}

// Equal compares two manifests
func (m Manifest) Equal(other Manifest) bool {
	if len(m) != len(other) {
		return false
	}
	for name, entry := range m {
		if o, ok := other[name]; !ok || o != entry {
			return false
		}
	}
	return true
}
