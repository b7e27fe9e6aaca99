package compose

import (
	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/ident"
	"github.com/teranos/termforge/kb/types"
)

// Attachment reports what one Compose call registered, in staging order.
type Attachment struct {
	Handles []types.Handle
	IDs     []types.StableID
}

// Assembler is handed to the function passed to Session.Compose. Everything
// staged through it joins the session only if that function returns nil.
//
// An Assembler is a Scope: builders created with it see committed
// components, the session's pending set and whatever this call has staged.
type Assembler struct {
	session *Session
	staged  *pendingSet
	out     Attachment
}

func newAssembler(s *Session) *Assembler {
	return &Assembler{session: s, staged: newPendingSet()}
}

// KindOf looks in this call's staged records, then the session, then the
// committed store (as primed into the resolver).
func (a *Assembler) KindOf(id types.StableID) types.Kind {
	if k := a.staged.kindOf(id); k != types.KindUnknown {
		return k
	}
	if k := a.session.pending.kindOf(id); k != types.KindUnknown {
		return k
	}
	return a.session.composer.resolver.KindOfID(id)
}

// OwnerOf looks in the same order as KindOf. Committed ids answer through
// the resolver, which also knows ids resolved by earlier sessions.
func (a *Assembler) OwnerOf(id types.StableID) (types.StableID, bool) {
	if owner, ok := a.staged.ownerOf(id); ok {
		return owner, true
	}
	if owner, ok := a.session.pending.ownerOf(id); ok {
		return owner, true
	}
	r := a.session.composer.resolver
	if h, ok := r.Lookup(id); ok {
		return r.Primary(h)
	}
	return types.StableID{}, false
}

func (a *Assembler) Resolver() *ident.Resolver {
	return a.session.composer.resolver
}

func (a *Assembler) Defaults() Defaults {
	return a.session.composer.defaults
}

// Stamp returns the session stamp every staged record will carry.
func (a *Assembler) Stamp() types.Stamp {
	return a.session.stamp
}

// Stage registers prebuilt components. Identity is checked again since the
// component may have been built against another scope. Only the primary id
// is resolved here; aliases are bound in the resolver when the session
// commits.
func (a *Assembler) Stage(components ...types.Component) error {
	for _, c := range components {
		if err := checkIdentity(a, c.ComponentID(), c.ComponentKind(), types.AliasesOf(c)); err != nil {
			return errors.Wrapf(err, "stage %s %s", c.ComponentKind(), c.ComponentID())
		}
		h := a.Resolver().Resolve(c.ComponentID())
		a.staged.put(c)
		a.out.Handles = append(a.out.Handles, h)
		a.out.IDs = append(a.out.IDs, c.ComponentID())
	}
	return nil
}

// Concept builds and stages a concept.
func (a *Assembler) Concept(id types.StableID, description string, aliases ...types.StableID) (types.Concept, error) {
	c, err := NewConceptBuilder(a).WithAliases(aliases...).Build(id, description)
	if err != nil {
		return types.Concept{}, err
	}
	return c, a.Stage(c)
}

// Pattern builds and stages a pattern.
func (a *Assembler) Pattern(id, meaning, purpose types.StableID, fields ...types.FieldDefinition) (types.Pattern, error) {
	p, err := NewPatternBuilder(a).Build(id, meaning, purpose, fields)
	if err != nil {
		return types.Pattern{}, err
	}
	return p, a.Stage(p)
}

// Semantic builds and stages a semantic with a content-derived id.
func (a *Assembler) Semantic(pattern types.Pattern, referenced types.StableID, values ...any) (types.Semantic, error) {
	s, err := NewSemanticBuilder(a).Build(pattern, referenced, values...)
	if err != nil {
		return types.Semantic{}, err
	}
	return s, a.Stage(s)
}

// Attach builds and stages facets. Attachers run in order, so a later
// attacher may reference a facet produced by an earlier one.
func (a *Assembler) Attach(attachers ...Attacher) ([]types.Facet, error) {
	var out []types.Facet
	for _, at := range attachers {
		facets, err := at.Build(a)
		if err != nil {
			return nil, err
		}
		for _, f := range facets {
			if err := a.Stage(f); err != nil {
				return nil, err
			}
		}
		out = append(out, facets...)
	}
	return out, nil
}
