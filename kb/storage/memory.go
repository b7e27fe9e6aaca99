package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
)

// MemStore is an in-memory kb.Store. Writes are staged and applied only when
// the whole batch succeeds, so a failure injected with FailAfter leaves no
// trace.
type MemStore struct {
	mu           sync.RWMutex
	chronologies map[types.StableID]*types.Chronology
	owners       map[types.StableID]types.StableID // alias -> primary
	closed       bool

	failAfter int // -1 disables
	failErr   error

	loadPhase  bool
	loadPhases int
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		chronologies: make(map[types.StableID]*types.Chronology),
		owners:       make(map[types.StableID]types.StableID),
		failAfter:    -1,
	}
}

// FailAfter makes the next write fail with err after n components have been
// staged. The failure fires once.
func (m *MemStore) FailAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failErr = err
}

// LoadPhases returns how many load phases have completed.
func (m *MemStore) LoadPhases() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadPhases
}

// InLoadPhase reports whether a load phase is open.
func (m *MemStore) InLoadPhase() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadPhase
}

func (m *MemStore) PersistBatch(ctx context.Context, batch *types.Batch) error {
	if batch == nil {
		return errors.New("nil batch")
	}
	versions := make([]types.Chronology, 0, batch.Len())
	for _, c := range batch.Components() {
		versions = append(versions, types.Chronology{
			Kind:     c.ComponentKind(),
			ID:       c.ComponentID(),
			Aliases:  types.AliasesOf(c),
			Versions: []types.Version{{Stamp: batch.Stamp, Component: c}},
		})
	}
	return m.apply(ctx, versions)
}

func (m *MemStore) Restore(ctx context.Context, chronologies []types.Chronology) error {
	return m.apply(ctx, chronologies)
}

// apply merges chronologies into a scratch copy and swaps it in only if every
// one was accepted.
func (m *MemStore) apply(ctx context.Context, in []types.Chronology) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("store is closed")
	}

	scratch := make(map[types.StableID]*types.Chronology, len(in))
	owners := make(map[types.StableID]types.StableID)
	lookup := func(id types.StableID) *types.Chronology {
		if c, ok := scratch[id]; ok {
			return c
		}
		if c, ok := m.chronologies[id]; ok {
			cp := *c
			cp.Versions = append([]types.Version(nil), c.Versions...)
			cp.Aliases = append([]types.StableID(nil), c.Aliases...)
			scratch[id] = &cp
			return &cp
		}
		return nil
	}

	for i, c := range in {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "persist interrupted")
		}
		if m.failAfter >= 0 && i >= m.failAfter {
			err := m.failErr
			m.failAfter, m.failErr = -1, nil
			return errors.Wrapf(err, "write %s %s", c.Kind, c.ID)
		}

		existing := lookup(c.ID)
		if existing == nil {
			existing = &types.Chronology{Kind: c.Kind, ID: c.ID}
			scratch[c.ID] = existing
		}
		if existing.Kind != c.Kind {
			return errors.Wrapf(errors.ErrDuplicateEntity, "%s stored as %s, written as %s", c.ID, existing.Kind, c.Kind)
		}
		for _, alias := range c.Aliases {
			owner, ok := owners[alias]
			if !ok {
				owner, ok = m.owners[alias]
			}
			if ok && owner != c.ID {
				return errors.Wrapf(errors.ErrAliasConflict, "alias %s belongs to %s", alias, owner)
			}
			if !ok {
				owners[alias] = c.ID
				existing.Aliases = append(existing.Aliases, alias)
			}
		}
		for _, v := range c.Versions {
			existing.Versions = putVersion(existing.Versions, v)
		}
	}

	for id, c := range scratch {
		sort.SliceStable(c.Versions, func(i, j int) bool {
			return c.Versions[i].Stamp.Time.Before(c.Versions[j].Stamp.Time)
		})
		m.chronologies[id] = c
	}
	for alias, owner := range owners {
		m.owners[alias] = owner
	}
	return nil
}

func (m *MemStore) CountComponents(ctx context.Context) (map[types.Kind]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[types.Kind]int)
	for _, c := range m.chronologies {
		counts[c.Kind]++
	}
	return counts, nil
}

func (m *MemStore) ForEachChronology(ctx context.Context, fn func(types.Chronology) error) error {
	m.mu.RLock()
	sorted := make([]types.Chronology, 0, len(m.chronologies))
	for _, c := range m.chronologies {
		sorted = append(sorted, *c)
	}
	m.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})
	for _, c := range sorted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) KnownIDs(ctx context.Context) ([]types.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Identity, 0, len(m.chronologies))
	for _, c := range m.chronologies {
		out = append(out, types.Identity{ID: c.ID, Kind: c.Kind, Aliases: append([]types.StableID(nil), c.Aliases...)})
	}
	return out, nil
}

// Chronology returns the chronology of id.
func (m *MemStore) Chronology(id types.StableID) (types.Chronology, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chronologies[id]
	if !ok {
		return types.Chronology{}, false
	}
	return *c, true
}

func (m *MemStore) BeginLoadPhase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadPhase {
		return errors.Wrap(errors.ErrInvalidRequest, "load phase already open")
	}
	m.loadPhase = true
	return nil
}

func (m *MemStore) EndLoadPhase(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loadPhase {
		return errors.Wrap(errors.ErrInvalidRequest, "no load phase open")
	}
	m.loadPhase = false
	m.loadPhases++
	return nil
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// putVersion replaces the version written under the same stamp, if any.
func putVersion(versions []types.Version, v types.Version) []types.Version {
	for i := range versions {
		if versions[i].Stamp.ID == v.Stamp.ID {
			versions[i] = v
			return versions
		}
	}
	return append(versions, v)
}
