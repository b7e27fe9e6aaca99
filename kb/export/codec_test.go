package export

import (
	"crypto/sha256"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/kb/vocab"
)

func appendFrame(b, rec []byte) []byte {
	return protowire.AppendBytes(b, rec)
}

func digestOf(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func TestSemanticValuesSurviveCodec(t *testing.T) {
	ref := uuid.New()
	values := []any{
		"",
		"text",
		int64(0),
		int64(-1),
		int64(math.MaxInt64),
		0.0,
		-math.MaxFloat64,
		math.SmallestNonzeroFloat64,
		false,
		true,
		ref,
		types.NewIDSet(ref),
		types.IDSet{},
		types.NewIDList(ref, ref),
	}
	s := types.Semantic{ID: uuid.New(), Pattern: uuid.New(), Referenced: ref, Values: values}
	c := types.Chronology{
		Kind:     types.KindSemantic,
		ID:       s.ID,
		Versions: []types.Version{{Stamp: testStamp().Normalize(), Component: s}},
	}

	rec, err := EncodeChronology(nil, c)
	require.NoError(t, err)
	got, err := DecodeChronology(rec)
	require.NoError(t, err)

	decoded := got.Versions[0].Component.(types.Semantic)
	require.Len(t, decoded.Values, len(values))
	for i := range values {
		assert.Equal(t, values[i], decoded.Values[i], "value %d", i)
	}
	assert.Equal(t, c.Versions[0].Stamp, got.Versions[0].Stamp)
}

func TestFacetCodec(t *testing.T) {
	f := types.Facet{
		ID:            uuid.New(),
		Kind:          types.FacetDialectAcceptability,
		Referenced:    uuid.New(),
		Dialect:       vocab.GBEnglish,
		Acceptability: types.Acceptable,
	}
	rec, err := EncodeChronology(nil, types.Chronology{
		Kind:     types.KindFacet,
		ID:       f.ID,
		Aliases:  []types.StableID{uuid.New()},
		Versions: []types.Version{{Stamp: testStamp().Normalize(), Component: f}},
	})
	require.NoError(t, err)

	got, err := DecodeChronology(rec)
	require.NoError(t, err)
	assert.Len(t, got.Aliases, 1)
	assert.Equal(t, f, got.Versions[0].Component)
}

func TestEncodeRejectsMismatchedVersion(t *testing.T) {
	_, err := EncodeChronology(nil, types.Chronology{
		Kind:     types.KindPattern,
		ID:       uuid.New(),
		Versions: []types.Version{{Component: types.Concept{ID: uuid.New()}}},
	})
	require.Error(t, err)
}

func TestEncodeRejectsNonCanonicalValue(t *testing.T) {
	for _, v := range []any{int32(4), math.NaN(), math.Inf(1)} {
		s := types.Semantic{ID: uuid.New(), Values: []any{v}}
		_, err := EncodeChronology(nil, types.Chronology{
			Kind:     types.KindSemantic,
			ID:       s.ID,
			Versions: []types.Version{{Component: s}},
		})
		assert.True(t, errors.Is(err, errors.ErrFieldTypeMismatch), "%v", v)
	}
}

func TestDecodeMalformed(t *testing.T) {
	rec, err := EncodeChronology(nil, types.Chronology{
		Kind: types.KindConcept,
		ID:   uuid.New(),
		Versions: []types.Version{{
			Stamp:     testStamp().Normalize(),
			Component: types.Concept{ID: uuid.New(), Description: "d"},
		}},
	})
	require.NoError(t, err)

	for _, b := range [][]byte{
		rec[:len(rec)-1],
		{0xff},
		nil,
	} {
		_, err := DecodeChronology(b)
		assert.Error(t, err)
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	id := uuid.New()
	rec, err := EncodeChronology(nil, types.Chronology{Kind: types.KindConcept, ID: id})
	require.NoError(t, err)
	rec = protowire.AppendTag(rec, 99, protowire.BytesType)
	rec = protowire.AppendString(rec, "future field")

	got, err := DecodeChronology(rec)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestManifestCodec(t *testing.T) {
	m := Manifest{
		FormatVersion: FormatVersion,
		Generator:     "termforge test",
		CreatedAt:     fixedTime,
		Counts:        map[types.Kind]int{types.KindConcept: 3, types.KindFacet: 9},
		Stamps:        2,
		Versions:      14,
		Digest:        digestOf([]byte("x")),
	}
	got, err := decodeManifest(encodeManifest(m))
	require.NoError(t, err)
	assert.Equal(t, m.Counts, got.Counts)
	assert.Equal(t, 12, got.Entities())
	assert.Equal(t, m.Digest, got.Digest)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, m.Stamps, got.Stamps)
	assert.Equal(t, m.Versions, got.Versions)
}
