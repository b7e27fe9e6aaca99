package types

// Version is one committed state of a component under a stamp.
type Version struct {
	Stamp     Stamp
	Component Component
}

// Chronology is the full committed history of one component: its identity
// plus every version, oldest first.
type Chronology struct {
	Kind     Kind
	ID       StableID
	Aliases  []StableID
	Versions []Version
}

// Latest returns the most recent version, or false if there is none.
func (c Chronology) Latest() (Version, bool) {
	if len(c.Versions) == 0 {
		return Version{}, false
	}
	return c.Versions[len(c.Versions)-1], true
}

// Batch is everything one session hands to the store in a single atomic write.
type Batch struct {
	Stamp     Stamp
	Concepts  []Concept
	Patterns  []Pattern
	Semantics []Semantic
	Facets    []Facet
}

// Len returns the number of components in the batch.
func (b *Batch) Len() int {
	return len(b.Concepts) + len(b.Patterns) + len(b.Semantics) + len(b.Facets)
}

// Components returns the batch contents in persistence order: concepts,
// patterns, semantics, then facets.
func (b *Batch) Components() []Component {
	out := make([]Component, 0, b.Len())
	for _, c := range b.Concepts {
		out = append(out, c)
	}
	for _, p := range b.Patterns {
		out = append(out, p)
	}
	for _, s := range b.Semantics {
		out = append(out, s)
	}
	for _, f := range b.Facets {
		out = append(out, f)
	}
	return out
}

// AliasesOf returns the alias ids declared by an entity component.
func AliasesOf(c Component) []StableID {
	switch v := c.(type) {
	case Concept:
		return v.Aliases
	case Pattern:
		return v.Aliases
	case Semantic:
		return v.Aliases
	default:
		return nil
	}
}

// Identity is the committed identity of one component without its versions.
type Identity struct {
	ID      StableID
	Kind    Kind
	Aliases []StableID
}
