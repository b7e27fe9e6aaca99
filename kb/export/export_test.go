package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/compose"
	"github.com/teranos/termforge/kb/ident"
	"github.com/teranos/termforge/kb/storage"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/kb/vocab"
	"github.com/teranos/termforge/pulse/async"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	scenarioConcept = types.MustParseID("ad6f4fdd-fee8-45db-a207-111dc4c939a9")
	parentConcept   = types.MustParseID("1f1cf6a3-5b0e-4c8e-9f53-6f0a2f8f6d11")
	fixedTime       = time.Date(2024, 3, 14, 9, 26, 53, 0, time.UTC)
)

func testStamp() types.Stamp {
	return types.Stamp{
		Status: types.StatusActive,
		Time:   fixedTime,
		Author: vocab.UserAuthor,
		Module: vocab.CoreModule,
		Path:   vocab.DevelopmentPath,
	}
}

// composedStore commits a concept hierarchy with names, an identifier, and a
// semantic covering every value datatype.
func composedStore(t *testing.T) *storage.MemStore {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemStore()
	c, err := compose.New(ctx, store, compose.WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	_, err = c.Run(ctx, testStamp(), func(a *compose.Assembler) error {
		if _, err := a.Concept(parentConcept, "Test concepts"); err != nil {
			return err
		}
		if _, err := a.Concept(scenarioConcept, "A test pattern for primitive data types"); err != nil {
			return err
		}
		pattern, err := a.Pattern(uuid.New(), vocab.TestMeaning, vocab.TestPurpose,
			types.FieldDefinition{Meaning: vocab.StringField, Purpose: vocab.TestPurpose, DataType: types.DataTypeString},
			types.FieldDefinition{Meaning: vocab.IntegerField, Purpose: vocab.TestPurpose, DataType: types.DataTypeInteger},
			types.FieldDefinition{Meaning: vocab.FloatField, Purpose: vocab.TestPurpose, DataType: types.DataTypeFloat},
			types.FieldDefinition{Meaning: vocab.BooleanField, Purpose: vocab.TestPurpose, DataType: types.DataTypeBoolean},
			types.FieldDefinition{Meaning: vocab.ComponentField, Purpose: vocab.TestPurpose, DataType: types.DataTypeComponentRef},
			types.FieldDefinition{Meaning: vocab.IDSetField, Purpose: vocab.TestPurpose, DataType: types.DataTypeComponentIDSet},
			types.FieldDefinition{Meaning: vocab.IDListField, Purpose: vocab.TestPurpose, DataType: types.DataTypeComponentIDList},
		)
		if err != nil {
			return err
		}
		if _, err := a.Semantic(pattern, scenarioConcept,
			"This is a test String", -7, 0.5, false,
			parentConcept,
			types.NewIDSet(parentConcept, scenarioConcept),
			types.NewIDList(scenarioConcept, parentConcept, scenarioConcept),
		); err != nil {
			return err
		}
		_, err = a.Attach(
			compose.Name(scenarioConcept, "A test pattern for primitive data types").Dialect(vocab.USEnglish, types.Preferred),
			compose.Synonym(scenarioConcept, "Primitive test pattern"),
			compose.Identifier(scenarioConcept, vocab.UUIDSource, scenarioConcept.String()),
			compose.Axiom(scenarioConcept, parentConcept),
		)
		return err
	})
	require.NoError(t, err)
	return store
}

func chronologies(t *testing.T, r interface {
	ForEachChronology(context.Context, func(types.Chronology) error) error
}) []types.Chronology {
	t.Helper()
	var out []types.Chronology
	require.NoError(t, r.ForEachChronology(context.Background(), func(c types.Chronology) error {
		out = append(out, c)
		return nil
	}))
	return out
}

func newExporter(t *testing.T, store *storage.MemStore, opts ...Option) *Exporter {
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithClock(func() time.Time { return fixedTime }),
	}, opts...)
	return New(store, opts...)
}

func waitJob(t *testing.T, j *async.Job) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	select {
	case <-j.Done():
	case <-ctx.Done():
		t.Fatal("export job did not finish")
	}
	return j.Err()
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := composedStore(t)
	dest := filepath.Join(t.TempDir(), "kb.tfx")

	job := newExporter(t, store).Export(ctx, dest)
	require.NoError(t, waitJob(t, job))
	assert.Equal(t, async.JobStatusCompleted, job.Status())
	assert.Equal(t, 100.0, job.Progress().Percentage())

	a, err := Import(ctx, dest)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, a.Manifest.FormatVersion)
	assert.Equal(t, DefaultGenerator, a.Manifest.Generator)
	assert.True(t, fixedTime.Equal(a.Manifest.CreatedAt))
	assert.Equal(t, 1, a.Manifest.Stamps)

	want := chronologies(t, store)
	require.Len(t, a.Chronologies, len(want))
	assert.Equal(t, len(want), a.Manifest.Entities())
	for i := range want {
		assert.Equal(t, want[i].Kind, a.Chronologies[i].Kind)
		assert.Equal(t, want[i].ID, a.Chronologies[i].ID)
		assert.ElementsMatch(t, want[i].Aliases, a.Chronologies[i].Aliases)
		assert.Equal(t, want[i].Versions, a.Chronologies[i].Versions, "%s %s", want[i].Kind, want[i].ID)
	}

	restored := storage.NewMemStore()
	require.NoError(t, Restore(ctx, a, restored))
	wantCounts, err := store.CountComponents(ctx)
	require.NoError(t, err)
	gotCounts, err := restored.CountComponents(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantCounts, gotCounts)

	// A composer primed from the restored store treats the ids as committed.
	c, err := compose.New(ctx, restored)
	require.NoError(t, err)
	assert.Equal(t, types.KindConcept, c.Resolver().KindOfID(scenarioConcept))
}

func TestExportIsDeterministic(t *testing.T) {
	store := composedStore(t)
	dir := t.TempDir()
	e := newExporter(t, store)

	first, second := filepath.Join(dir, "a.tfx"), filepath.Join(dir, "b.tfx")
	require.NoError(t, waitJob(t, e.Export(context.Background(), first)))
	require.NoError(t, waitJob(t, e.Export(context.Background(), second)))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
}

func bulkStore(t *testing.T, n int) *storage.MemStore {
	t.Helper()
	st := testStamp().Normalize()
	in := make([]types.Chronology, n)
	for i := range in {
		id := uuid.New()
		in[i] = types.Chronology{
			Kind: types.KindConcept,
			ID:   id,
			Versions: []types.Version{{
				Stamp:     st,
				Component: types.Concept{ID: id, Description: "bulk concept"},
			}},
		}
	}
	store := storage.NewMemStore()
	require.NoError(t, store.Restore(context.Background(), in))
	return store
}

func TestCancelledExportLeavesNoArtifact(t *testing.T) {
	const total = 10000

	tests := []struct {
		name     string
		existing []byte
	}{
		{name: "destination absent"},
		{name: "destination unchanged", existing: []byte("previous artifact")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := bulkStore(t, total)
			dir := t.TempDir()
			dest := filepath.Join(dir, "kb.tfx")
			if tt.existing != nil {
				require.NoError(t, os.WriteFile(dest, tt.existing, 0o644))
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			var cancelledAt int
			e := newExporter(t, store, WithProgressHook(func(p async.Progress) {
				if cancelledAt == 0 && p.Percentage() >= 10 {
					cancelledAt = p.Current
					cancel()
				}
			}))

			job := e.Export(ctx, dest)
			err := waitJob(t, job)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrExportInterrupted), "got %v", err)
			assert.Equal(t, async.JobStatusCancelled, job.Status())
			assert.Equal(t, total/10, cancelledAt)
			assert.Less(t, job.Progress().Current, total)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			if tt.existing == nil {
				assert.Empty(t, entries, "no artifact or temporary file may remain")
				return
			}
			require.Len(t, entries, 1)
			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, tt.existing, data)
		})
	}
}

func TestJobCancelStopsExport(t *testing.T) {
	store := bulkStore(t, 2000)
	dest := filepath.Join(t.TempDir(), "kb.tfx")

	var job *async.Job
	started := make(chan struct{})
	e := newExporter(t, store, WithProgressHook(func(p async.Progress) {
		if p.Current == 1 {
			close(started)
			<-time.After(10 * time.Millisecond)
		}
	}))
	job = e.Export(context.Background(), dest)
	<-started
	job.Cancel()

	err := waitJob(t, job)
	if err == nil {
		t.Skip("export finished before the cancel was observed")
	}
	assert.True(t, errors.Is(err, errors.ErrExportInterrupted))
	assert.NoFileExists(t, dest)
}

func TestExportUnwritableDestination(t *testing.T) {
	store := composedStore(t)
	dest := filepath.Join(t.TempDir(), "missing", "kb.tfx")

	job := newExporter(t, store).Export(context.Background(), dest)
	err := waitJob(t, job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExportIO))
	assert.False(t, errors.Is(err, errors.ErrExportInterrupted))
	assert.Equal(t, async.JobStatusFailed, job.Status())
	assert.NoFileExists(t, dest)
}

func writeContainer(t *testing.T, path string, m Manifest, entities []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create(entitiesEntry)
	require.NoError(t, err)
	_, err = w.Write(entities)
	require.NoError(t, err)
	w, err = zw.Create(manifestEntry)
	require.NoError(t, err)
	_, err = w.Write(encodeManifest(m))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestImportRejectsBadArtifacts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c := types.Chronology{
		Kind: types.KindConcept,
		ID:   scenarioConcept,
		Versions: []types.Version{{
			Stamp:     testStamp().Normalize(),
			Component: types.Concept{ID: scenarioConcept, Description: "x"},
		}},
	}
	rec, err := EncodeChronology(nil, c)
	require.NoError(t, err)
	var entities []byte
	entities = appendFrame(entities, rec)

	good := Manifest{
		FormatVersion: FormatVersion,
		CreatedAt:     fixedTime,
		Counts:        map[types.Kind]int{types.KindConcept: 1},
		Stamps:        1,
		Versions:      1,
		Digest:        digestOf(entities),
	}

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "valid.tfx")
		writeContainer(t, path, good, entities)
		a, err := Import(ctx, path)
		require.NoError(t, err)
		require.Len(t, a.Chronologies, 1)
	})

	t.Run("minor version accepted", func(t *testing.T) {
		m := good
		m.FormatVersion = "1.4.2"
		path := filepath.Join(dir, "minor.tfx")
		writeContainer(t, path, m, entities)
		_, err := Import(ctx, path)
		require.NoError(t, err)
	})

	tests := []struct {
		name     string
		manifest func(Manifest) Manifest
		entities []byte
		want     error
	}{
		{
			name:     "incompatible major version",
			manifest: func(m Manifest) Manifest { m.FormatVersion = "2.0.0"; return m },
			want:     errors.ErrIncompatibleFormat,
		},
		{
			name:     "unparseable version",
			manifest: func(m Manifest) Manifest { m.FormatVersion = "one"; return m },
			want:     errors.ErrIncompatibleFormat,
		},
		{
			name:     "digest mismatch",
			manifest: func(m Manifest) Manifest { m.Digest = digestOf([]byte("other")); return m },
			want:     errors.ErrCorruptArtifact,
		},
		{
			name:     "count mismatch",
			manifest: func(m Manifest) Manifest { m.Counts = map[types.Kind]int{types.KindConcept: 2}; return m },
			want:     errors.ErrCorruptArtifact,
		},
		{
			name:     "truncated record",
			entities: entities[:len(entities)-3],
			manifest: func(m Manifest) Manifest { m.Digest = digestOf(entities[:len(entities)-3]); return m },
			want:     errors.ErrCorruptArtifact,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := entities
			if tt.entities != nil {
				body = tt.entities
			}
			path := filepath.Join(dir, tt.name+".tfx")
			writeContainer(t, path, tt.manifest(good), body)
			_, err := Import(ctx, path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	t.Run("not a zip", func(t *testing.T) {
		path := filepath.Join(dir, "plain.tfx")
		require.NoError(t, os.WriteFile(path, []byte("not an artifact"), 0o644))
		_, err := Import(ctx, path)
		assert.True(t, errors.Is(err, errors.ErrCorruptArtifact))
	})

	t.Run("no such file", func(t *testing.T) {
		_, err := Import(ctx, filepath.Join(dir, "absent.tfx"))
		require.Error(t, err)
		assert.True(t, errors.IsNotFoundError(err))
		assert.False(t, errors.Is(err, errors.ErrCorruptArtifact))
	})

	t.Run("entry over size limit", func(t *testing.T) {
		limit := maxEntrySize
		t.Cleanup(func() { maxEntrySize = limit })
		maxEntrySize = uint64(len(entities)) - 1

		path := filepath.Join(dir, "oversized.tfx")
		writeContainer(t, path, good, entities)
		_, err := Import(ctx, path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCorruptArtifact))
		assert.Contains(t, err.Error(), "limit is")
	})
}

func TestArtifactGraph(t *testing.T) {
	ctx := context.Background()
	store := composedStore(t)
	dest := filepath.Join(t.TempDir(), "kb.tfx")
	require.NoError(t, waitJob(t, newExporter(t, store).Export(ctx, dest)))

	a, err := Import(ctx, dest)
	require.NoError(t, err)

	r := ident.NewResolver()
	g, err := a.Graph(r)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, len(a.Chronologies))
	assert.Equal(t, len(a.Chronologies), r.Len())

	child, ok := r.Lookup(scenarioConcept)
	require.True(t, ok)
	parent, ok := r.Lookup(parentConcept)
	require.True(t, ok)
	assert.Equal(t, []types.Handle{parent}, g.Parents[child])
	assert.Equal(t, []types.Handle{child}, g.Children(parent))
	assert.Equal(t, types.KindConcept, r.KindOf(child))

	// Binding the same artifact into a resolver that knows the id as a
	// pattern is refused.
	conflicting := ident.NewResolver()
	require.NoError(t, conflicting.Bind(conflicting.Resolve(scenarioConcept), types.KindPattern))
	_, err = a.Graph(conflicting)
	assert.True(t, errors.Is(err, errors.ErrDuplicateEntity))
}
