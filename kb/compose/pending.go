package compose

import "github.com/teranos/termforge/kb/types"

// pendingSet holds staged components in first-staged order. Staging an id
// again replaces its record in place.
type pendingSet struct {
	order []types.StableID
	items map[types.StableID]types.Component
	kinds map[types.StableID]types.Kind // primary ids and aliases
	owner map[types.StableID]types.StableID
}

func newPendingSet() *pendingSet {
	return &pendingSet{
		items: make(map[types.StableID]types.Component),
		kinds: make(map[types.StableID]types.Kind),
		owner: make(map[types.StableID]types.StableID),
	}
}

func (p *pendingSet) put(c types.Component) {
	id := c.ComponentID()
	if _, ok := p.items[id]; !ok {
		p.order = append(p.order, id)
	}
	p.items[id] = c
	p.kinds[id] = c.ComponentKind()
	p.owner[id] = id
	for _, alias := range types.AliasesOf(c) {
		p.kinds[alias] = c.ComponentKind()
		p.owner[alias] = id
	}
}

func (p *pendingSet) ownerOf(id types.StableID) (types.StableID, bool) {
	owner, ok := p.owner[id]
	return owner, ok
}

func (p *pendingSet) kindOf(id types.StableID) types.Kind {
	return p.kinds[id]
}

func (p *pendingSet) len() int {
	return len(p.order)
}

// merge stages everything in other, keeping other's order.
func (p *pendingSet) merge(other *pendingSet) {
	for _, id := range other.order {
		p.put(other.items[id])
	}
}

func (p *pendingSet) batch(stamp types.Stamp) *types.Batch {
	b := &types.Batch{Stamp: stamp}
	for _, id := range p.order {
		switch c := p.items[id].(type) {
		case types.Concept:
			b.Concepts = append(b.Concepts, c)
		case types.Pattern:
			b.Patterns = append(b.Patterns, c)
		case types.Semantic:
			b.Semantics = append(b.Semantics, c)
		case types.Facet:
			b.Facets = append(b.Facets, c)
		}
	}
	return b
}
