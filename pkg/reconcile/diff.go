// Copyright © 2018 One Concern

// Package reconcile compares the remote index of a dataset with the index cached locally.
package reconcile

import (
	"sort"
	"strings"

	"github.com/oneconcern/datasync/pkg/model"
)

const (
	// EntryTypeAdd indicates a remote file absent from the local store
	EntryTypeAdd EntryType = iota
	// EntryTypeDel indicates a local file no longer published
	EntryTypeDel
	// EntryTypeUpd indicates a local file older than its published revision
	EntryTypeUpd
)

// EntryType qualifies the type of difference between the local and remote indices
type EntryType uint

func (t EntryType) String() string {
	switch t {
	case EntryTypeAdd:
		return "A"
	case EntryTypeDel:
		return "D"
	case EntryTypeUpd:
		return "U"
	default:
		return "?"
	}
}

// Entry describes a single point of difference
type Entry struct {
	Type   EntryType
	Name   string
	Local  model.Entry
	Remote model.Entry
}

func (e Entry) String() string {
	return e.Type.String() + " " + e.Name
}

// Plan lists the changes needed to bring a local store in line with the remote index.
//
// Entries are sorted by name.
type Plan struct {
	Entries []Entry

	// Rebuild is set when no usable local index exists: the local store must be cleared
	// and every remote file written.
	Rebuild bool
}

// Updates lists, in sorted order, the files to write to the local store
func (p Plan) Updates() []string {
	updates := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		if e.Type != EntryTypeDel {
			updates = append(updates, e.Name)
		}
	}
	return updates
}

// Removals lists, in sorted order, the files to delete from the local store
func (p Plan) Removals() []string {
	removals := make([]string, 0)
	for _, e := range p.Entries {
		if e.Type == EntryTypeDel {
			removals = append(removals, e.Name)
		}
	}
	return removals
}

// Synchronized is true when the local store has nothing to update or remove
func (p Plan) Synchronized() bool {
	return !p.Rebuild && len(p.Entries) == 0
}

func (p Plan) String() string {
	if p.Rebuild {
		return "rebuild"
	}
	if len(p.Entries) == 0 {
		return "synchronized"
	}
	lines := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}

// Diff the remote index against the local one.
//
// A remote file is updated when it is missing locally or when the local revision is older.
// A local file is removed when it is not published anymore. Local revisions more recent than
// the published ones are left alone.
func Diff(remote, local model.Manifest) Plan {
	entries := make([]Entry, 0)
	for name, r := range remote {
		l, ok := local[name]
		switch {
		case !ok:
			entries = append(entries, Entry{Type: EntryTypeAdd, Name: name, Remote: r})
		case l.Revision.Less(r.Revision):
			entries = append(entries, Entry{Type: EntryTypeUpd, Name: name, Local: l, Remote: r})
		}
	}
	for name, l := range local {
		if _, ok := remote[name]; !ok {
			entries = append(entries, Entry{Type: EntryTypeDel, Name: name, Local: l})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return Plan{Entries: entries}
}

// DiffRaw diffs the remote index against a local index in wire format.
//
// An absent (nil) or invalid local index yields a rebuild plan. The decoding error
// of an invalid local index is returned alongside the plan.
func DiffRaw(remote model.Manifest, localRaw []byte) (Plan, error) {
	if localRaw == nil {
		return rebuild(remote), nil
	}
	local, err := model.DecodeManifest(localRaw)
	if err != nil {
		return rebuild(remote), err
	}
	return Diff(remote, local), nil
}

func rebuild(remote model.Manifest) Plan {
	plan := Diff(remote, nil)
	plan.Rebuild = true
	return plan
}
