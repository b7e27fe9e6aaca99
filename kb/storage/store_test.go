package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb"
	"github.com/teranos/termforge/kb/types"
	qtest "github.com/teranos/termforge/internal/testing"
)

func stamp(at time.Time) types.Stamp {
	return types.Stamp{
		Status: types.StatusActive,
		Time:   at,
		Author: uuid.New(),
		Module: uuid.New(),
		Path:   uuid.New(),
	}.Normalize()
}

func sampleBatch(st types.Stamp) (*types.Batch, types.Concept, types.Semantic) {
	concept := types.Concept{ID: uuid.New(), Aliases: []types.StableID{uuid.New()}, Description: "Heart rate"}
	pattern := types.Pattern{
		ID:      uuid.New(),
		Meaning: uuid.New(),
		Purpose: uuid.New(),
		Fields: []types.FieldDefinition{
			{Meaning: uuid.New(), Purpose: uuid.New(), DataType: types.DataTypeString},
			{Meaning: uuid.New(), Purpose: uuid.New(), DataType: types.DataTypeInteger},
			{Meaning: uuid.New(), Purpose: uuid.New(), DataType: types.DataTypeComponentIDSet},
		},
	}
	a, b := uuid.New(), uuid.New()
	semantic := types.Semantic{
		ID:         uuid.New(),
		Pattern:    pattern.ID,
		Referenced: concept.ID,
		Values:     []any{"bpm", int64(1) << 53, types.NewIDSet(a, b)},
	}
	facet := types.Facet{
		ID:               uuid.New(),
		Kind:             types.FacetFullyQualifiedName,
		Referenced:       concept.ID,
		Text:             "Heart rate (observable entity)",
		Language:         uuid.New(),
		CaseSignificance: uuid.New(),
	}
	return &types.Batch{
		Stamp:     st,
		Concepts:  []types.Concept{concept},
		Patterns:  []types.Pattern{pattern},
		Semantics: []types.Semantic{semantic},
		Facets:    []types.Facet{facet},
	}, concept, semantic
}

func collect(t *testing.T, s kb.Reader) []types.Chronology {
	t.Helper()
	var out []types.Chronology
	require.NoError(t, s.ForEachChronology(context.Background(), func(c types.Chronology) error {
		out = append(out, c)
		return nil
	}))
	return out
}

type storeFactory func(t *testing.T) kb.Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) kb.Store { return NewMemStore() },
		"sqlite": func(t *testing.T) kb.Store {
			return NewSQLStore(qtest.CreateTestDB(t), zaptest.NewLogger(t).Sugar())
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Run("persist and read back", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t)
				st := stamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
				batch, concept, semantic := sampleBatch(st)
				require.NoError(t, s.PersistBatch(ctx, batch))

				counts, err := s.CountComponents(ctx)
				require.NoError(t, err)
				assert.Equal(t, map[types.Kind]int{
					types.KindConcept: 1, types.KindPattern: 1, types.KindSemantic: 1, types.KindFacet: 1,
				}, counts)

				chrons := collect(t, s)
				require.Len(t, chrons, 4)
				kinds := []types.Kind{}
				for _, c := range chrons {
					kinds = append(kinds, c.Kind)
					require.Len(t, c.Versions, 1)
					assert.Equal(t, st, c.Versions[0].Stamp)
				}
				assert.Equal(t, []types.Kind{types.KindConcept, types.KindPattern, types.KindSemantic, types.KindFacet}, kinds)

				assert.Equal(t, concept.Aliases, chrons[0].Aliases)
				assert.Equal(t, concept, chrons[0].Versions[0].Component)
				assert.Equal(t, semantic, chrons[2].Versions[0].Component, "semantic values keep their Go types")

				known, err := s.KnownIDs(ctx)
				require.NoError(t, err)
				assert.Len(t, known, 4)
			})

			t.Run("second version appends in time order", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t)
				id := uuid.New()
				later := stamp(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
				earlier := stamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

				require.NoError(t, s.PersistBatch(ctx, &types.Batch{Stamp: later, Concepts: []types.Concept{{ID: id, Description: "v2"}}}))
				require.NoError(t, s.PersistBatch(ctx, &types.Batch{Stamp: earlier, Concepts: []types.Concept{{ID: id, Description: "v1"}}}))

				chrons := collect(t, s)
				require.Len(t, chrons, 1)
				require.Len(t, chrons[0].Versions, 2)
				assert.Equal(t, "v1", chrons[0].Versions[0].Component.(types.Concept).Description)
				assert.Equal(t, "v2", chrons[0].Versions[1].Component.(types.Concept).Description)
			})

			t.Run("kind change is refused atomically", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t)
				id := uuid.New()
				st := stamp(time.Now())
				require.NoError(t, s.PersistBatch(ctx, &types.Batch{Stamp: st, Concepts: []types.Concept{{ID: id}}}))

				bad := &types.Batch{
					Stamp:    stamp(time.Now().Add(time.Second)),
					Concepts: []types.Concept{{ID: uuid.New(), Description: "innocent bystander"}},
					Patterns: []types.Pattern{{ID: id, Fields: []types.FieldDefinition{{DataType: types.DataTypeString}}}},
				}
				err := s.PersistBatch(ctx, bad)
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrDuplicateEntity))

				counts, err := s.CountComponents(ctx)
				require.NoError(t, err)
				assert.Equal(t, map[types.Kind]int{types.KindConcept: 1}, counts)
			})

			t.Run("alias owned by another component", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t)
				alias := uuid.New()
				st := stamp(time.Now())
				require.NoError(t, s.PersistBatch(ctx, &types.Batch{Stamp: st, Concepts: []types.Concept{{ID: uuid.New(), Aliases: []types.StableID{alias}}}}))

				err := s.PersistBatch(ctx, &types.Batch{Stamp: st, Concepts: []types.Concept{{ID: uuid.New(), Aliases: []types.StableID{alias}}}})
				assert.True(t, errors.Is(err, errors.ErrAliasConflict))
			})

			t.Run("restore is idempotent", func(t *testing.T) {
				ctx := context.Background()
				src := newStore(t)
				batch, _, _ := sampleBatch(stamp(time.Now()))
				require.NoError(t, src.PersistBatch(ctx, batch))
				chrons := collect(t, src)

				dst := newStore(t)
				require.NoError(t, dst.Restore(ctx, chrons))
				require.NoError(t, dst.Restore(ctx, chrons))
				assert.Equal(t, chrons, collect(t, dst))
			})

			t.Run("load phase brackets", func(t *testing.T) {
				ctx := context.Background()
				s := newStore(t)
				require.NoError(t, s.BeginLoadPhase(ctx))
				assert.Error(t, s.BeginLoadPhase(ctx))
				batch, _, _ := sampleBatch(stamp(time.Now()))
				require.NoError(t, s.PersistBatch(ctx, batch))
				require.NoError(t, s.EndLoadPhase(ctx))
				assert.Error(t, s.EndLoadPhase(ctx))
				assert.Len(t, collect(t, s), 4)
			})

			t.Run("empty batch is a no-op", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.PersistBatch(context.Background(), &types.Batch{Stamp: stamp(time.Now())}))
				assert.Empty(t, collect(t, s))
			})
		})
	}
}

func TestMemStoreFailAfter(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.FailAfter(3, errors.New("disk full"))

	batch, _, _ := sampleBatch(stamp(time.Now()))
	err := s.PersistBatch(ctx, batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, collect(t, s), "staged components are discarded")

	// The failure fires once
	require.NoError(t, s.PersistBatch(ctx, batch))
	assert.Len(t, collect(t, s), 4)
}

func TestSQLStoreTriggerFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	conn := qtest.CreateTestDB(t)
	s := NewSQLStore(conn, nil)

	batch, _, semantic := sampleBatch(stamp(time.Now()))
	_, err := conn.Exec(`
		CREATE TRIGGER fail_semantic BEFORE INSERT ON versions
		WHEN NEW.component_id = '` + semantic.ID.String() + `'
		BEGIN SELECT RAISE(ABORT, 'simulated write failure'); END`)
	require.NoError(t, err)

	err = s.PersistBatch(ctx, batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulated write failure")

	for _, table := range []string{"stamps", "components", "aliases", "versions"} {
		var n int
		require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, "table %s", table)
	}
}

func TestOpenCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s, err := Open(context.Background(), Config{DataDir: dir}, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, filepath.Join(dir, DefaultFileName))

	_, err = Open(context.Background(), Config{}, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestSQLStoreClosed(t *testing.T) {
	s, err := Open(context.Background(), Config{DataDir: t.TempDir()}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	batch, _, _ := sampleBatch(stamp(time.Now()))
	err = s.PersistBatch(context.Background(), batch)
	assert.Error(t, err)
}

func TestSQLStoreFloatValues(t *testing.T) {
	ctx := context.Background()
	store := NewSQLStore(qtest.CreateTestDB(t), zaptest.NewLogger(t).Sugar())
	batch, _, semantic := sampleBatch(stamp(time.Now()))
	batch.Patterns[0].Fields = append(batch.Patterns[0].Fields,
		types.FieldDefinition{Meaning: uuid.New(), Purpose: uuid.New(), DataType: types.DataTypeFloat})

	t.Run("non-finite is refused before anything is written", func(t *testing.T) {
		bad := *batch
		s := semantic
		s.Values = append(append([]any(nil), semantic.Values...), math.NaN())
		bad.Semantics = []types.Semantic{s}

		err := store.PersistBatch(ctx, &bad)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrFieldTypeMismatch))
		assert.Empty(t, collect(t, store))
	})

	t.Run("finite extremes round trip", func(t *testing.T) {
		s := semantic
		s.Values = append(append([]any(nil), semantic.Values...), -math.MaxFloat64)
		batch.Semantics = []types.Semantic{s}
		require.NoError(t, store.PersistBatch(ctx, batch))

		for _, c := range collect(t, store) {
			if c.ID != s.ID {
				continue
			}
			latest, ok := c.Latest()
			require.True(t, ok)
			got := latest.Component.(types.Semantic)
			assert.Equal(t, -math.MaxFloat64, got.Values[3])
		}
	})
}
