package compose

import (
	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
)

// Attacher produces facets for an existing component. Attachers are values:
// every fluent method returns a modified copy.
type Attacher interface {
	Build(scope Scope) ([]types.Facet, error)
}

type dialectEntry struct {
	dialect       types.StableID
	acceptability types.Acceptability
}

// TextAttacher builds names and definitions.
type TextAttacher struct {
	kind             types.FacetKind
	id               types.StableID
	referenced       types.StableID
	text             string
	language         types.StableID
	caseSignificance types.StableID
	dialects         []dialectEntry
}

// Name attaches a fully qualified name.
func Name(referenced types.StableID, text string) TextAttacher {
	return TextAttacher{kind: types.FacetFullyQualifiedName, referenced: referenced, text: text}
}

// Synonym attaches a regular name.
func Synonym(referenced types.StableID, text string) TextAttacher {
	return TextAttacher{kind: types.FacetSynonym, referenced: referenced, text: text}
}

// Definition attaches a textual definition.
func Definition(referenced types.StableID, text string) TextAttacher {
	return TextAttacher{kind: types.FacetDefinition, referenced: referenced, text: text}
}

func (a TextAttacher) WithID(id types.StableID) TextAttacher {
	a.id = id
	return a
}

func (a TextAttacher) Language(language types.StableID) TextAttacher {
	a.language = language
	return a
}

func (a TextAttacher) CaseSignificance(cs types.StableID) TextAttacher {
	a.caseSignificance = cs
	return a
}

// Dialect nests an acceptability annotation under the name. Only names
// accept dialects; Build rejects them on definitions.
func (a TextAttacher) Dialect(dialect types.StableID, acceptability types.Acceptability) TextAttacher {
	a.dialects = append(append([]dialectEntry(nil), a.dialects...), dialectEntry{dialect, acceptability})
	return a
}

// Build returns the text facet followed by one facet per dialect.
func (a TextAttacher) Build(scope Scope) ([]types.Facet, error) {
	if err := requireExists(scope, a.referenced, a.kind.String()+" target"); err != nil {
		return nil, err
	}
	if len(a.dialects) > 0 && !a.kind.Name() {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "%s cannot carry dialect acceptability", a.kind)
	}

	defaults := scope.Defaults()
	language := a.language
	if language == (types.StableID{}) {
		language = defaults.Language
	}
	cs := a.caseSignificance
	if cs == (types.StableID{}) {
		cs = defaults.CaseSignificance
	}
	id := a.id
	if id == (types.StableID{}) {
		id = types.DeriveID("facet", a.kind.String(), a.referenced.String(), language.String(), a.text)
	}
	if err := checkKind(scope, id, types.KindFacet); err != nil {
		return nil, err
	}

	out := []types.Facet{{
		ID:               id,
		Kind:             a.kind,
		Referenced:       a.referenced,
		Text:             a.text,
		Language:         language,
		CaseSignificance: cs,
	}}
	for _, d := range a.dialects {
		if d.acceptability != types.Preferred && d.acceptability != types.Acceptable {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "dialect %s: acceptability must be preferred or acceptable", d.dialect)
		}
		out = append(out, types.Facet{
			ID:            types.DeriveID("facet", types.FacetDialectAcceptability.String(), id.String(), d.dialect.String()),
			Kind:          types.FacetDialectAcceptability,
			Referenced:    id,
			Dialect:       d.dialect,
			Acceptability: d.acceptability,
		})
	}
	return out, nil
}

// IdentifierAttacher builds an identifier issued by a source authority.
type IdentifierAttacher struct {
	id         types.StableID
	referenced types.StableID
	source     types.StableID
	value      string
}

// Identifier attaches value as an identifier of referenced. A zero source
// falls back to the configured default.
func Identifier(referenced, source types.StableID, value string) IdentifierAttacher {
	return IdentifierAttacher{referenced: referenced, source: source, value: value}
}

func (a IdentifierAttacher) WithID(id types.StableID) IdentifierAttacher {
	a.id = id
	return a
}

func (a IdentifierAttacher) Build(scope Scope) ([]types.Facet, error) {
	if err := requireExists(scope, a.referenced, "identifier target"); err != nil {
		return nil, err
	}
	if a.value == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "identifier for %s has no value", a.referenced)
	}
	source := a.source
	if source == (types.StableID{}) {
		source = scope.Defaults().IdentifierSource
	}
	id := a.id
	if id == (types.StableID{}) {
		id = types.DeriveID("facet", types.FacetIdentifier.String(), a.referenced.String(), source.String(), a.value)
	}
	if err := checkKind(scope, id, types.KindFacet); err != nil {
		return nil, err
	}
	return []types.Facet{{
		ID:         id,
		Kind:       types.FacetIdentifier,
		Referenced: a.referenced,
		Source:     source,
		Value:      a.value,
	}}, nil
}

// EdgeAttacher builds is-a axioms and navigation parents.
type EdgeAttacher struct {
	kind       types.FacetKind
	id         types.StableID
	referenced types.StableID
	targets    []types.StableID
}

// Axiom states that referenced is-a each of parents.
func Axiom(referenced types.StableID, parents ...types.StableID) EdgeAttacher {
	return EdgeAttacher{kind: types.FacetStatedAxiom, referenced: referenced, targets: parents}
}

// Navigation records parents for hierarchy browsing.
func Navigation(referenced types.StableID, parents ...types.StableID) EdgeAttacher {
	return EdgeAttacher{kind: types.FacetStatedNavigation, referenced: referenced, targets: parents}
}

func (a EdgeAttacher) WithID(id types.StableID) EdgeAttacher {
	a.id = id
	return a
}

// Build requires the referenced component and every target to exist. Targets
// are stored as a set.
func (a EdgeAttacher) Build(scope Scope) ([]types.Facet, error) {
	if err := requireExists(scope, a.referenced, a.kind.String()+" source"); err != nil {
		return nil, err
	}
	if len(a.targets) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "%s on %s has no targets", a.kind, a.referenced)
	}
	for _, t := range a.targets {
		if err := requireExists(scope, t, a.kind.String()+" target"); err != nil {
			return nil, err
		}
	}
	id := a.id
	if id == (types.StableID{}) {
		id = types.DeriveID("facet", a.kind.String(), a.referenced.String())
	}
	if err := checkKind(scope, id, types.KindFacet); err != nil {
		return nil, err
	}
	return []types.Facet{{
		ID:         id,
		Kind:       a.kind,
		Referenced: a.referenced,
		Targets:    types.NewIDSet(a.targets...),
	}}, nil
}
