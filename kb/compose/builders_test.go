package compose

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/ident"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/kb/vocab"
)

type fakeScope struct {
	kinds    map[types.StableID]types.Kind
	resolver *ident.Resolver
}

func newFakeScope() *fakeScope {
	return &fakeScope{kinds: map[types.StableID]types.Kind{}, resolver: ident.NewResolver()}
}

func (f *fakeScope) KindOf(id types.StableID) types.Kind { return f.kinds[id] }
func (f *fakeScope) Resolver() *ident.Resolver           { return f.resolver }
func (f *fakeScope) Defaults() Defaults                  { return DefaultFacets() }

func (f *fakeScope) OwnerOf(id types.StableID) (types.StableID, bool) {
	if h, ok := f.resolver.Lookup(id); ok {
		return f.resolver.Primary(h)
	}
	return types.StableID{}, false
}

func primitiveFields() []types.FieldDefinition {
	return []types.FieldDefinition{
		{Meaning: vocab.StringField, Purpose: vocab.TestPurpose, DataType: types.DataTypeString},
		{Meaning: vocab.IntegerField, Purpose: vocab.TestPurpose, DataType: types.DataTypeInteger},
		{Meaning: vocab.FloatField, Purpose: vocab.TestPurpose, DataType: types.DataTypeFloat},
		{Meaning: vocab.BooleanField, Purpose: vocab.TestPurpose, DataType: types.DataTypeBoolean},
	}
}

func TestConceptBuilder(t *testing.T) {
	scope := newFakeScope()
	id, alias := uuid.New(), uuid.New()

	c, err := NewConceptBuilder(scope).WithAliases(alias).Build(id, "Blood pressure")
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
	assert.Equal(t, []types.StableID{alias}, c.Aliases)
	assert.Equal(t, "Blood pressure", c.Description)

	scope.kinds[id] = types.KindPattern
	_, err = NewConceptBuilder(scope).Build(id, "Blood pressure")
	assert.True(t, errors.Is(err, errors.ErrDuplicateEntity))

	scope.kinds[alias] = types.KindSemantic
	_, err = NewConceptBuilder(scope).WithAliases(alias).Build(uuid.New(), "x")
	assert.True(t, errors.Is(err, errors.ErrDuplicateEntity))
}

func TestBuildersAreImmutable(t *testing.T) {
	base := NewConceptBuilder(newFakeScope())
	withAlias := base.WithAliases(uuid.New())

	c, err := base.Build(uuid.New(), "no aliases")
	require.NoError(t, err)
	assert.Empty(t, c.Aliases)

	c, err = withAlias.Build(uuid.New(), "one alias")
	require.NoError(t, err)
	assert.Len(t, c.Aliases, 1)
}

func TestPatternBuilderEmptySchema(t *testing.T) {
	_, err := NewPatternBuilder(newFakeScope()).Build(uuid.New(), vocab.TestMeaning, vocab.TestPurpose, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmptySchema))
}

func TestPatternBuilderRejectsUnknownDataType(t *testing.T) {
	fields := []types.FieldDefinition{{Meaning: vocab.StringField, DataType: types.DataTypeUnknown}}
	_, err := NewPatternBuilder(newFakeScope()).Build(uuid.New(), vocab.TestMeaning, vocab.TestPurpose, fields)
	assert.True(t, errors.Is(err, errors.ErrFieldTypeMismatch))
}

func TestSemanticBuilderArity(t *testing.T) {
	scope := newFakeScope()
	patternID, subject := uuid.New(), uuid.New()
	scope.kinds[patternID] = types.KindPattern
	scope.kinds[subject] = types.KindConcept

	pattern, err := NewPatternBuilder(scope).Build(patternID, vocab.TestMeaning, vocab.TestPurpose, primitiveFields())
	require.NoError(t, err)

	s, err := NewSemanticBuilder(scope).Build(pattern, subject, "This is a test String", 1, 0.5, true)
	require.NoError(t, err)
	assert.Equal(t, []any{"This is a test String", int64(1), 0.5, true}, s.Values)
	assert.Equal(t, patternID, s.Pattern)
	assert.Equal(t, subject, s.Referenced)

	again, err := NewSemanticBuilder(scope).Build(pattern, subject, "This is a test String", int64(1), 0.5, true)
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID, "derived ids depend on normalized values")

	_, err = NewSemanticBuilder(scope).Build(pattern, subject, "This is a test String", 1, 0.5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFieldArityMismatch))
	assert.Contains(t, err.Error(), "expects 4 values, got 3")
}

func TestSemanticBuilderTypeMismatch(t *testing.T) {
	scope := newFakeScope()
	patternID, subject := uuid.New(), uuid.New()
	scope.kinds[patternID] = types.KindPattern
	scope.kinds[subject] = types.KindConcept
	pattern := types.Pattern{ID: patternID, Fields: primitiveFields()}

	_, err := NewSemanticBuilder(scope).Build(pattern, subject, "s", "1", 0.5, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFieldTypeMismatch))
	assert.Contains(t, err.Error(), "field 1")
}

func TestSemanticBuilderRequiresPatternAndSubject(t *testing.T) {
	scope := newFakeScope()
	patternID, subject := uuid.New(), uuid.New()
	pattern := types.Pattern{ID: patternID, Fields: primitiveFields()}
	values := []any{"s", 1, 0.5, true}

	_, err := NewSemanticBuilder(scope).Build(pattern, subject, values...)
	assert.True(t, errors.Is(err, errors.ErrUnresolvedReference), "pattern not assigned")

	scope.kinds[patternID] = types.KindPattern
	_, err = NewSemanticBuilder(scope).Build(pattern, subject, values...)
	assert.True(t, errors.Is(err, errors.ErrUnresolvedReference), "subject not assigned")

	scope.kinds[subject] = types.KindConcept
	fixed := uuid.New()
	s, err := NewSemanticBuilder(scope).WithID(fixed).Build(pattern, subject, values...)
	require.NoError(t, err)
	assert.Equal(t, fixed, s.ID)
}

func TestIDSetFieldCollapsesDuplicates(t *testing.T) {
	scope := newFakeScope()
	patternID, subject := uuid.New(), uuid.New()
	scope.kinds[patternID] = types.KindPattern
	scope.kinds[subject] = types.KindConcept
	pattern := types.Pattern{ID: patternID, Fields: []types.FieldDefinition{
		{Meaning: vocab.IDSetField, Purpose: vocab.TestPurpose, DataType: types.DataTypeComponentIDSet},
		{Meaning: vocab.IDListField, Purpose: vocab.TestPurpose, DataType: types.DataTypeComponentIDList},
	}}

	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	refs := []types.StableID{a, b, c, a, d}

	s, err := NewSemanticBuilder(scope).Build(pattern, subject, refs, refs)
	require.NoError(t, err)

	set := s.Values[0].(types.IDSet)
	assert.Len(t, set, 4)
	assert.ElementsMatch(t, []types.StableID{a, b, c, d}, []types.StableID(set))

	list := s.Values[1].(types.IDList)
	assert.Equal(t, types.IDList(refs), list, "lists keep order and duplicates")
}

func TestTextAttacher(t *testing.T) {
	scope := newFakeScope()
	concept := uuid.New()

	_, err := Name(concept, "Blood pressure").Build(scope)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnresolvedReference))

	scope.kinds[concept] = types.KindConcept
	facets, err := Name(concept, "Blood pressure").
		CaseSignificance(vocab.CaseSensitive).
		Dialect(vocab.USEnglish, types.Preferred).
		Dialect(vocab.GBEnglish, types.Acceptable).
		Build(scope)
	require.NoError(t, err)
	require.Len(t, facets, 3)

	name := facets[0]
	assert.Equal(t, types.FacetFullyQualifiedName, name.Kind)
	assert.Equal(t, vocab.English, name.Language, "language defaults to English")
	assert.Equal(t, vocab.CaseSensitive, name.CaseSignificance)

	for _, d := range facets[1:] {
		assert.Equal(t, types.FacetDialectAcceptability, d.Kind)
		assert.Equal(t, name.ID, d.Referenced)
	}
	assert.Equal(t, types.Preferred, facets[1].Acceptability)
	assert.Equal(t, vocab.GBEnglish, facets[2].Dialect)

	_, err = Definition(concept, "A measurement").Dialect(vocab.USEnglish, types.Preferred).Build(scope)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Synonym(concept, "BP").Dialect(vocab.USEnglish, types.AcceptabilityNone).Build(scope)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestEdgeAttacher(t *testing.T) {
	scope := newFakeScope()
	child, parent := uuid.New(), uuid.New()
	scope.kinds[child] = types.KindConcept

	_, err := Axiom(child, parent).Build(scope)
	assert.True(t, errors.Is(err, errors.ErrUnresolvedReference), "dangling parent")

	scope.kinds[parent] = types.KindConcept
	facets, err := Axiom(child, parent, parent).Build(scope)
	require.NoError(t, err)
	require.Len(t, facets, 1)
	assert.Equal(t, []types.StableID{parent}, facets[0].Targets)

	_, err = Navigation(child).Build(scope)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestIdentifierAttacher(t *testing.T) {
	scope := newFakeScope()
	concept := uuid.New()
	scope.kinds[concept] = types.KindConcept

	facets, err := Identifier(concept, types.StableID{}, concept.String()).Build(scope)
	require.NoError(t, err)
	require.Len(t, facets, 1)
	assert.Equal(t, vocab.UUIDSource, facets[0].Source)
	assert.Equal(t, concept.String(), facets[0].Value)

	_, err = Identifier(concept, vocab.UUIDSource, "").Build(scope)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestConceptBuilderAliasConflicts(t *testing.T) {
	scope := newFakeScope()
	owner, alias := uuid.New(), uuid.New()
	_, err := scope.resolver.ResolveAll(owner, alias)
	require.NoError(t, err)
	scope.kinds[owner] = types.KindConcept
	scope.kinds[alias] = types.KindConcept

	_, err = NewConceptBuilder(scope).Build(alias, "alias reused as a primary")
	assert.True(t, errors.Is(err, errors.ErrAliasConflict))

	_, err = NewConceptBuilder(scope).WithAliases(alias).Build(uuid.New(), "alias taken")
	assert.True(t, errors.Is(err, errors.ErrAliasConflict))

	_, err = NewConceptBuilder(scope).WithAliases(alias).Build(owner, "restated by its owner")
	assert.NoError(t, err)
}
