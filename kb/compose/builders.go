package compose

import (
	"strconv"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/ident"
	"github.com/teranos/termforge/kb/types"
)

// Scope tells builders and attachers which components exist. A component
// exists if it is committed or staged in the open session.
type Scope interface {
	// KindOf returns the kind of the component id names, or KindUnknown.
	KindOf(id types.StableID) types.Kind
	// OwnerOf returns the primary id of the component id names: id itself
	// for a primary, the aliased component's id for an alias.
	OwnerOf(id types.StableID) (types.StableID, bool)
	Resolver() *ident.Resolver
	Defaults() Defaults
}

// Defaults fill facet fields the caller leaves unset.
type Defaults struct {
	Language         types.StableID
	CaseSignificance types.StableID
	IdentifierSource types.StableID
}

func checkKind(scope Scope, id types.StableID, want types.Kind) error {
	if id == (types.StableID{}) {
		return errors.Wrapf(errors.ErrInvalidRequest, "%s with nil id", want)
	}
	if have := scope.KindOf(id); have != types.KindUnknown && have != want {
		return errors.Wrapf(errors.ErrDuplicateEntity, "%s is already a %s, not a %s", id, have, want)
	}
	return nil
}

// checkPrimary refuses an id that is already an alias of another component.
func checkPrimary(scope Scope, id types.StableID) error {
	if owner, ok := scope.OwnerOf(id); ok && owner != id {
		return errors.Wrapf(errors.ErrAliasConflict, "%s is an alias of %s", id, owner)
	}
	return nil
}

// checkAliases refuses aliases of the wrong kind or already naming a
// component other than primary.
func checkAliases(scope Scope, want types.Kind, primary types.StableID, aliases []types.StableID) error {
	for _, a := range aliases {
		if err := checkKind(scope, a, want); err != nil {
			return errors.Wrap(err, "alias")
		}
		if owner, ok := scope.OwnerOf(a); ok && owner != primary {
			return errors.Wrapf(errors.ErrAliasConflict, "alias %s already names %s", a, owner)
		}
	}
	return nil
}

// checkIdentity runs the kind, primary and alias checks for a component.
func checkIdentity(scope Scope, id types.StableID, want types.Kind, aliases []types.StableID) error {
	if err := checkKind(scope, id, want); err != nil {
		return err
	}
	if err := checkPrimary(scope, id); err != nil {
		return err
	}
	return checkAliases(scope, want, id, aliases)
}

func requireExists(scope Scope, id types.StableID, role string) error {
	if scope.KindOf(id) == types.KindUnknown {
		return errors.Wrapf(errors.ErrUnresolvedReference, "%s %s is not assigned", role, id)
	}
	return nil
}

// ConceptBuilder builds concepts.
type ConceptBuilder struct {
	scope   Scope
	aliases []types.StableID
}

// NewConceptBuilder returns a builder checking ids against scope.
func NewConceptBuilder(scope Scope) ConceptBuilder {
	return ConceptBuilder{scope: scope}
}

// WithAliases returns a builder that adds the given alias ids.
func (b ConceptBuilder) WithAliases(aliases ...types.StableID) ConceptBuilder {
	b.aliases = append(append([]types.StableID(nil), b.aliases...), aliases...)
	return b
}

// Build returns the concept, or an error wrapping errors.ErrDuplicateEntity
// when id already names a component of another kind and errors.ErrAliasConflict
// when id or an alias already names another component.
func (b ConceptBuilder) Build(id types.StableID, description string) (types.Concept, error) {
	if err := checkIdentity(b.scope, id, types.KindConcept, b.aliases); err != nil {
		return types.Concept{}, err
	}
	return types.Concept{
		ID:          id,
		Aliases:     b.aliases,
		Description: description,
	}, nil
}

// PatternBuilder builds patterns.
type PatternBuilder struct {
	scope   Scope
	aliases []types.StableID
}

func NewPatternBuilder(scope Scope) PatternBuilder {
	return PatternBuilder{scope: scope}
}

func (b PatternBuilder) WithAliases(aliases ...types.StableID) PatternBuilder {
	b.aliases = append(append([]types.StableID(nil), b.aliases...), aliases...)
	return b
}

// Build returns the pattern. An empty field list wraps errors.ErrEmptySchema.
func (b PatternBuilder) Build(id, meaning, purpose types.StableID, fields []types.FieldDefinition) (types.Pattern, error) {
	if err := checkIdentity(b.scope, id, types.KindPattern, b.aliases); err != nil {
		return types.Pattern{}, err
	}
	if len(fields) == 0 {
		return types.Pattern{}, errors.Wrapf(errors.ErrEmptySchema, "pattern %s", id)
	}
	for i, f := range fields {
		if !f.DataType.Valid() {
			return types.Pattern{}, errors.Wrapf(errors.ErrFieldTypeMismatch,
				"pattern %s field %d declares unknown datatype %d", id, i, f.DataType)
		}
	}
	return types.Pattern{
		ID:      id,
		Aliases: b.aliases,
		Meaning: meaning,
		Purpose: purpose,
		Fields:  append([]types.FieldDefinition(nil), fields...),
	}, nil
}

// SemanticBuilder builds semantics against a pattern.
type SemanticBuilder struct {
	scope   Scope
	id      types.StableID
	aliases []types.StableID
}

func NewSemanticBuilder(scope Scope) SemanticBuilder {
	return SemanticBuilder{scope: scope}
}

// WithID fixes the semantic id instead of deriving it from content.
func (b SemanticBuilder) WithID(id types.StableID) SemanticBuilder {
	b.id = id
	return b
}

func (b SemanticBuilder) WithAliases(aliases ...types.StableID) SemanticBuilder {
	b.aliases = append(append([]types.StableID(nil), b.aliases...), aliases...)
	return b
}

// Build checks values against the pattern's fields, slot by slot, and returns
// the semantic with normalized values. The count must match exactly
// (errors.ErrFieldArityMismatch) and each value must have its slot's type
// (errors.ErrFieldTypeMismatch). Both pattern and referenced component must
// exist in scope.
func (b SemanticBuilder) Build(pattern types.Pattern, referenced types.StableID, values ...any) (types.Semantic, error) {
	if len(values) != len(pattern.Fields) {
		return types.Semantic{}, errors.Wrapf(errors.ErrFieldArityMismatch,
			"pattern %s expects %d values, got %d", pattern.ID, len(pattern.Fields), len(values))
	}
	normalized := make([]any, len(values))
	for i, v := range values {
		n, err := types.NormalizeValue(pattern.Fields[i].DataType, v)
		if err != nil {
			return types.Semantic{}, errors.Wrapf(err, "pattern %s field %d", pattern.ID, i)
		}
		normalized[i] = n
	}
	if b.scope.KindOf(pattern.ID) != types.KindPattern {
		return types.Semantic{}, errors.Wrapf(errors.ErrUnresolvedReference, "pattern %s is not assigned", pattern.ID)
	}
	if err := requireExists(b.scope, referenced, "referenced component"); err != nil {
		return types.Semantic{}, err
	}

	id := b.id
	if id == (types.StableID{}) {
		id = deriveSemanticID(pattern.ID, referenced, normalized)
	}
	if err := checkIdentity(b.scope, id, types.KindSemantic, b.aliases); err != nil {
		return types.Semantic{}, err
	}
	return types.Semantic{
		ID:         id,
		Aliases:    b.aliases,
		Pattern:    pattern.ID,
		Referenced: referenced,
		Values:     normalized,
	}, nil
}

func deriveSemanticID(pattern, referenced types.StableID, values []any) types.StableID {
	parts := []string{"semantic", pattern.String(), referenced.String()}
	for _, v := range values {
		parts = append(parts, valueKey(v))
	}
	return types.DeriveID(parts...)
}

func valueKey(v any) string {
	switch x := v.(type) {
	case string:
		return "s:" + x
	case int64:
		return "i:" + strconv.FormatInt(x, 10)
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return "b:" + strconv.FormatBool(x)
	case types.StableID:
		return "r:" + x.String()
	case types.IDSet:
		return "S:" + joinIDs(x)
	case types.IDList:
		return "L:" + joinIDs(x)
	}
	return "?"
}

func joinIDs(ids []types.StableID) string {
	out := make([]byte, 0, len(ids)*37)
	for i, id := range ids {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, id.String()...)
	}
	return string(out)
}
