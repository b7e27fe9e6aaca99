// Package kb defines the contracts between the composition engine and the
// store that makes its sessions durable.
package kb

import (
	"context"

	"github.com/teranos/termforge/kb/types"
)

// Writer persists composed records. Both operations are atomic: either every
// record becomes visible to readers or none does.
type Writer interface {
	// PersistBatch writes every component in the batch as a new version under
	// the batch stamp.
	PersistBatch(ctx context.Context, batch *types.Batch) error

	// Restore writes whole chronologies, each version keeping its own stamp.
	// Used to load an exported artifact.
	Restore(ctx context.Context, chronologies []types.Chronology) error
}

// Reader exposes committed data to the exporter and to the composer when it
// starts.
type Reader interface {
	// CountComponents returns the number of committed components per kind.
	CountComponents(ctx context.Context) (map[types.Kind]int, error)

	// ForEachChronology calls fn for every committed component, in kind order
	// (concepts, patterns, semantics, facets) then by StableID. Iteration stops
	// at the first error returned by fn or by the store.
	ForEachChronology(ctx context.Context, fn func(types.Chronology) error) error

	// KnownIDs returns the identity of every committed component.
	KnownIDs(ctx context.Context) ([]types.Identity, error)
}

// LoadPhaser brackets bulk loading so the store can defer index maintenance.
type LoadPhaser interface {
	BeginLoadPhase(ctx context.Context) error
	EndLoadPhase(ctx context.Context) error
}

// Store is the full collaborator the composer and exporter share. It is opened
// once by the entry point and closed after the last export finishes.
type Store interface {
	Writer
	Reader
	LoadPhaser
	Close() error
}

// Total sums per-kind counts.
func Total(counts map[types.Kind]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
