package types

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/termforge/errors"
)

func TestDeriveID(t *testing.T) {
	a := DeriveID("semantic", "x")
	assert.Equal(t, a, DeriveID("semantic", "x"), "derivation should be deterministic")
	assert.NotEqual(t, DeriveID("ab", "c"), DeriveID("a", "bc"))
	assert.Equal(t, uuid.Version(5), a.Version())
}

func TestIDSetCollapsesDuplicates(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	set := NewIDSet(a, b, c, a, d)
	require.Len(t, set, 4)
	for _, id := range []StableID{a, b, c, d} {
		assert.True(t, set.Contains(id))
	}
	assert.False(t, set.Contains(uuid.New()))

	// Order of input does not matter
	assert.Equal(t, set, NewIDSet(d, c, b, a))
}

func TestIDListKeepsOrderAndDuplicates(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	list := NewIDList(a, b, a)
	assert.Equal(t, IDList{a, b, a}, list)
}

func TestNormalizeValue(t *testing.T) {
	ref := uuid.New()

	tests := []struct {
		name string
		dt   DataType
		in   any
		want any
	}{
		{"string", DataTypeString, "This is a test String", "This is a test String"},
		{"int", DataTypeInteger, 1, int64(1)},
		{"int32", DataTypeInteger, int32(-7), int64(-7)},
		{"uint16", DataTypeInteger, uint16(9), int64(9)},
		{"float64", DataTypeFloat, 0.5, 0.5},
		{"float32", DataTypeFloat, float32(0.25), 0.25},
		{"bool", DataTypeBoolean, true, true},
		{"ref", DataTypeComponentRef, ref, ref},
		{"list from slice", DataTypeComponentIDList, []StableID{ref, ref}, IDList{ref, ref}},
		{"set from slice", DataTypeComponentIDSet, []StableID{ref, ref}, IDSet{ref}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeValue(tt.dt, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.dt, ValueDataType(got))
		})
	}
}

func TestNormalizeValueRejectsMismatch(t *testing.T) {
	tests := []struct {
		name string
		dt   DataType
		in   any
	}{
		{"int for string", DataTypeString, 1},
		{"float for integer", DataTypeInteger, 1.0},
		{"int for float", DataTypeFloat, 1},
		{"string for boolean", DataTypeBoolean, "true"},
		{"string for ref", DataTypeComponentRef, "ad6f4fdd-fee8-45db-a207-111dc4c939a9"},
		{"set for list", DataTypeComponentIDList, IDSet{}},
		{"overflowing uint", DataTypeInteger, uint64(1) << 63},
		{"undeclared", DataTypeUnknown, "x"},
		{"NaN", DataTypeFloat, math.NaN()},
		{"positive infinity", DataTypeFloat, math.Inf(1)},
		{"negative infinity float32", DataTypeFloat, float32(math.Inf(-1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeValue(tt.dt, tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrFieldTypeMismatch))
		})
	}
}

func TestStampNormalize(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	s := Stamp{
		Status: StatusActive,
		Time:   time.Date(2024, 5, 1, 12, 0, 0, 123456789, loc),
		Author: uuid.New(),
		Module: uuid.New(),
		Path:   uuid.New(),
	}.Normalize()

	assert.Equal(t, time.UTC, s.Time.Location())
	assert.Equal(t, 123000000, s.Time.Nanosecond())
	assert.Equal(t, 10, s.Time.Hour())
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, s.ID, s.Normalize().ID, "normalizing twice should be stable")

	other := s
	other.Status = StatusInactive
	assert.NotEqual(t, s.ID, other.Normalize().ID)
}

func TestBatchComponentsOrder(t *testing.T) {
	b := Batch{
		Facets:    []Facet{{ID: uuid.New()}},
		Concepts:  []Concept{{ID: uuid.New()}, {ID: uuid.New()}},
		Semantics: []Semantic{{ID: uuid.New()}},
		Patterns:  []Pattern{{ID: uuid.New()}},
	}
	require.Equal(t, 5, b.Len())

	var kinds []Kind
	for _, c := range b.Components() {
		kinds = append(kinds, c.ComponentKind())
	}
	assert.Equal(t, []Kind{KindConcept, KindConcept, KindPattern, KindSemantic, KindFacet}, kinds)
}

func TestParseRoundTrips(t *testing.T) {
	for dt := range dataTypeNames {
		got, err := ParseDataType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, got)
	}
	for fk := range facetKindNames {
		got, err := ParseFacetKind(fk.String())
		require.NoError(t, err)
		assert.Equal(t, fk, got)
	}
	for st := range statusNames {
		got, err := ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseKind("widget")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestChronologyLatest(t *testing.T) {
	var c Chronology
	_, ok := c.Latest()
	assert.False(t, ok)

	c.Versions = []Version{
		{Component: Concept{Description: "v1"}},
		{Component: Concept{Description: "v2"}},
	}
	v, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, "v2", v.Component.(Concept).Description)
}
