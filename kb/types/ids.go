package types

import (
	"bytes"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// StableID names an entity independently of where it is stored. It is a UUID
// chosen by the author or derived from content with DeriveID.
type StableID = uuid.UUID

// Handle is a process-local integer standing in for a StableID. Handles are
// never persisted; they are only valid for the lifetime of one resolver.
type Handle int32

// NoHandle is the zero Handle; the resolver allocates from 1.
const NoHandle Handle = 0

// Namespace is the name-based UUID namespace for ids derived by termforge.
var Namespace = uuid.MustParse("6f3c2b8e-1d4a-5e79-9b0c-7a5f4e3d2c1b")

// DeriveID returns a deterministic (version 5) StableID for the given parts.
// Parts are joined with a NUL separator so ("ab","c") and ("a","bc") differ.
func DeriveID(parts ...string) StableID {
	return uuid.NewSHA1(Namespace, []byte(strings.Join(parts, "\x00")))
}

// ParseID parses a StableID from its canonical string form.
func ParseID(s string) (StableID, error) {
	return uuid.Parse(strings.TrimSpace(s))
}

// MustParseID is ParseID for package-level vocabulary constants.
func MustParseID(s string) StableID {
	return uuid.MustParse(s)
}

// IDSet is an unordered set of component references. The canonical form is
// sorted by byte order with duplicates removed; build one with NewIDSet.
type IDSet []StableID

// NewIDSet returns the canonical set of ids. Duplicates collapse silently.
func NewIDSet(ids ...StableID) IDSet {
	set := make(IDSet, 0, len(ids))
	set = append(set, ids...)
	sort.Slice(set, func(i, j int) bool {
		return bytes.Compare(set[i][:], set[j][:]) < 0
	})
	out := set[:0]
	for i, id := range set {
		if i > 0 && id == set[i-1] {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Contains reports whether id is a member of the set.
func (s IDSet) Contains(id StableID) bool {
	i := sort.Search(len(s), func(i int) bool {
		return bytes.Compare(s[i][:], id[:]) >= 0
	})
	return i < len(s) && s[i] == id
}

// IDList is an ordered sequence of component references that preserves
// duplicates.
type IDList []StableID

// NewIDList copies ids into a list.
func NewIDList(ids ...StableID) IDList {
	list := make(IDList, 0, len(ids))
	return append(list, ids...)
}
