// Package ident maps StableIDs to process-local handles.
//
// The table is append-only: a handle, once allocated, names the same entity
// (and the same set of ids) until the process exits.
package ident

import (
	"sync"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
)

// Resolver is safe for concurrent use. When several goroutines resolve the
// same unseen id, exactly one allocates and all observe its handle.
type Resolver struct {
	mu      sync.RWMutex
	handles map[types.StableID]types.Handle
	ids     [][]types.StableID // handle-1 -> ids, primary first
	kinds   []types.Kind       // handle-1 -> bound kind
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		handles: make(map[types.StableID]types.Handle),
	}
}

// Resolve returns the handle for id, allocating the next one on first use.
func (r *Resolver) Resolve(id types.StableID) types.Handle {
	r.mu.RLock()
	h, ok := r.handles[id]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(id)
}

func (r *Resolver) resolveLocked(id types.StableID) types.Handle {
	if h, ok := r.handles[id]; ok {
		return h
	}
	r.ids = append(r.ids, []types.StableID{id})
	r.kinds = append(r.kinds, types.KindUnknown)
	h := types.Handle(len(r.ids))
	r.handles[id] = h
	return h
}

// ResolveAll resolves primary and binds every alias to the same handle.
// If any alias already belongs to another handle nothing is bound and the
// error wraps errors.ErrAliasConflict.
func (r *Resolver) ResolveAll(primary types.StableID, aliases ...types.StableID) (types.Handle, error) {
	if len(aliases) == 0 {
		return r.Resolve(primary), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, known := r.handles[primary]
	for _, alias := range aliases {
		h, ok := r.handles[alias]
		if !ok || (known && h == existing) {
			continue
		}
		return types.NoHandle, errors.WithDetailf(
			errors.Wrapf(errors.ErrAliasConflict, "alias %s", alias),
			"alias already resolves to handle %d (%s)", h, r.ids[h-1][0])
	}

	h := r.resolveLocked(primary)
	for _, alias := range aliases {
		if _, ok := r.handles[alias]; ok {
			continue
		}
		r.handles[alias] = h
		r.ids[h-1] = append(r.ids[h-1], alias)
	}
	return h, nil
}

// Lookup returns the handle for id without allocating.
func (r *Resolver) Lookup(id types.StableID) (types.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Primary returns the first id registered for h.
func (r *Resolver) Primary(h types.Handle) (types.StableID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.valid(h) {
		return types.StableID{}, false
	}
	return r.ids[h-1][0], true
}

// AliasesOf returns every id bound to h, primary first. The result is a copy.
func (r *Resolver) AliasesOf(h types.Handle) []types.StableID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.valid(h) {
		return nil
	}
	out := make([]types.StableID, len(r.ids[h-1]))
	copy(out, r.ids[h-1])
	return out
}

// Bind records the component kind a handle denotes. Rebinding the same kind
// is a no-op; a different kind wraps errors.ErrDuplicateEntity.
func (r *Resolver) Bind(h types.Handle, kind types.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.valid(h) {
		return errors.AssertionFailedf("bind of unallocated handle %d", h)
	}
	switch current := r.kinds[h-1]; current {
	case types.KindUnknown:
		r.kinds[h-1] = kind
		return nil
	case kind:
		return nil
	default:
		return errors.Wrapf(errors.ErrDuplicateEntity,
			"%s is already a %s, not a %s", r.ids[h-1][0], current, kind)
	}
}

// KindOf returns the kind bound to h, or KindUnknown.
func (r *Resolver) KindOf(h types.Handle) types.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.valid(h) {
		return types.KindUnknown
	}
	return r.kinds[h-1]
}

// KindOfID is KindOf for an id that may not have been resolved yet.
func (r *Resolver) KindOfID(id types.StableID) types.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	if !ok {
		return types.KindUnknown
	}
	return r.kinds[h-1]
}

// Len returns the number of allocated handles.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

func (r *Resolver) valid(h types.Handle) bool {
	return h > types.NoHandle && int(h) <= len(r.ids)
}
