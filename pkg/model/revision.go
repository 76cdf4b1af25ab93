// Copyright © 2018 One Concern

package model

import (
	"fmt"
	"regexp"
)

var revisionRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}:\d{3}$`)

// RevisionCode is the per-file version string "YYYY-MM-DD:RRR".
//
// Fields are zero-padded but are not required to form a valid calendar date.
// Revisions are totally ordered by plain string comparison.
type RevisionCode string

// ParseRevision validates a revision code
func ParseRevision(s string) (RevisionCode, error) {
	if !revisionRe.MatchString(s) {
		return "", ErrInvalidRevision.Wrap(fmt.Errorf("%q", s))
	}
	return RevisionCode(s), nil
}

// Valid tells if this revision code is well-formed
func (r RevisionCode) Valid() bool {
	return revisionRe.MatchString(string(r))
}

// Less reports whether r sorts before other
func (r RevisionCode) Less(other RevisionCode) bool {
	return r < other
}

// Newer reports whether r sorts strictly after other
func (r RevisionCode) Newer(other RevisionCode) bool {
	return r > other
}

func (r RevisionCode) String() string {
	return string(r)
}
