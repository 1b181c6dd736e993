// Package repo parses model repository identifiers of the form
// "owner/model[:revision]".
package repo

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DefaultRevision is used when an identifier carries no ":revision" suffix.
const DefaultRevision = "main"

// ErrInvalidIdentifier is wrapped by every Parse failure.
var ErrInvalidIdentifier = errors.New("invalid model repository identifier")

// Ref is a parsed identifier. Name is the logical model name used as the
// registry key; Revision selects a branch, tag or commit on the hub.
type Ref struct {
	Name     string
	Revision string
}

func (r Ref) String() string {
	if r.Revision == "" || r.Revision == DefaultRevision {
		return r.Name
	}
	return r.Name + ":" + r.Revision
}

// Owner returns the part of Name before the slash.
func (r Ref) Owner() string {
	owner, _, _ := strings.Cut(r.Name, "/")
	return owner
}

// Model returns the part of Name after the slash.
func (r Ref) Model() string {
	_, model, _ := strings.Cut(r.Name, "/")
	return model
}

// Parse splits s into a logical name and a revision.
func Parse(s string) (Ref, error) {
	if s == "" {
		return Ref{}, invalid(s, "empty")
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return Ref{}, invalid(s, "contains whitespace")
	}
	name, rev, hasRev := strings.Cut(s, ":")
	if hasRev {
		if rev == "" {
			return Ref{}, invalid(s, "empty revision")
		}
		if strings.Contains(rev, ":") {
			return Ref{}, invalid(s, "more than one ':'")
		}
	} else {
		rev = DefaultRevision
	}
	parts := strings.Split(name, "/")
	if len(parts) != 2 {
		return Ref{}, invalid(s, "expected owner/model")
	}
	if parts[0] == "" || parts[1] == "" {
		return Ref{}, invalid(s, "missing owner or model")
	}
	return Ref{Name: name, Revision: rev}, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(s string) Ref {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

func invalid(s, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidIdentifier, s, reason)
}
