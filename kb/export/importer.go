package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"os"

	"github.com/klauspost/compress/zip"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb"
	"github.com/teranos/termforge/kb/ident"
	"github.com/teranos/termforge/kb/types"
)

// Artifact is a decoded and verified export.
type Artifact struct {
	Manifest     Manifest
	Chronologies []types.Chronology
}

// Import reads and verifies the artifact at path. It fails with
// ErrIncompatibleFormat for an unsupported format version and with
// ErrCorruptArtifact when the container, digest or records do not check out.
func Import(ctx context.Context, path string) (*Artifact, error) {
	zr, err := zip.OpenReader(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("artifact %s", path)
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open artifact %s", path), errors.ErrCorruptArtifact)
	}
	defer zr.Close()

	manifestData, err := readEntry(&zr.Reader, manifestEntry)
	if err != nil {
		return nil, err
	}
	m, err := decodeManifest(manifestData)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrCorruptArtifact)
	}
	if err := checkFormat(m.FormatVersion); err != nil {
		return nil, err
	}

	entities, err := readEntry(&zr.Reader, entitiesEntry)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(entities)
	if !bytes.Equal(sum[:], m.Digest) {
		return nil, errors.Wrapf(errors.ErrCorruptArtifact, "%s digest mismatch", entitiesEntry)
	}

	a := &Artifact{Manifest: m, Chronologies: make([]types.Chronology, 0, m.Entities())}
	counts := map[types.Kind]int{}
	for len(entities) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "import cancelled")
		}
		rec, n := protowire.ConsumeBytes(entities)
		if n < 0 {
			return nil, errors.Wrapf(errors.ErrCorruptArtifact, "record %d: %v", len(a.Chronologies), protowire.ParseError(n))
		}
		entities = entities[n:]
		c, err := DecodeChronology(rec)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "record %d", len(a.Chronologies)), errors.ErrCorruptArtifact)
		}
		counts[c.Kind]++
		a.Chronologies = append(a.Chronologies, c)
	}
	for k, n := range m.Counts {
		if counts[k] != n {
			return nil, errors.Wrapf(errors.ErrCorruptArtifact, "manifest lists %d %s records, found %d", n, k, counts[k])
		}
	}
	if len(a.Chronologies) != m.Entities() {
		return nil, errors.Wrapf(errors.ErrCorruptArtifact, "manifest lists %d records, found %d", m.Entities(), len(a.Chronologies))
	}
	return a, nil
}

// maxEntrySize caps the uncompressed size of one container entry.
var maxEntrySize uint64 = 1 << 30

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		size := f.UncompressedSize64
		if size > maxEntrySize {
			return nil, errors.Wrapf(errors.ErrCorruptArtifact, "%s declares %d bytes, limit is %d", name, size, maxEntrySize)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "open %s", name), errors.ErrCorruptArtifact)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, int64(size)+1))
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "read %s", name), errors.ErrCorruptArtifact)
		}
		if uint64(len(data)) != size {
			return nil, errors.Wrapf(errors.ErrCorruptArtifact, "%s holds %d bytes, header declares %d", name, len(data), size)
		}
		return data, nil
	}
	return nil, errors.Wrapf(errors.ErrCorruptArtifact, "missing %s", name)
}

// Restore writes every chronology of a into w in one atomic call.
func Restore(ctx context.Context, a *Artifact, w kb.Writer) error {
	if err := w.Restore(ctx, a.Chronologies); err != nil {
		return errors.Wrapf(err, "restore artifact (%d records)", len(a.Chronologies))
	}
	return nil
}

// Node is one artifact record placed in a resolver.
type Node struct {
	Handle  types.Handle
	Kind    types.Kind
	ID      types.StableID
	Aliases []types.StableID
}

// Graph is the handle view of an artifact: every record resolved and bound,
// plus the is-a hierarchy carried by the latest stated axiom facets.
type Graph struct {
	Nodes   []Node
	Parents map[types.Handle][]types.Handle
}

// Children returns the handles whose stated parents include h.
func (g *Graph) Children(h types.Handle) []types.Handle {
	var out []types.Handle
	for _, n := range g.Nodes {
		for _, p := range g.Parents[n.Handle] {
			if p == h {
				out = append(out, n.Handle)
				break
			}
		}
	}
	return out
}

// Graph resolves every record into r and binds its kind. An id already bound
// to another kind fails with ErrDuplicateEntity.
func (a *Artifact) Graph(r *ident.Resolver) (*Graph, error) {
	g := &Graph{
		Nodes:   make([]Node, 0, len(a.Chronologies)),
		Parents: map[types.Handle][]types.Handle{},
	}
	for _, c := range a.Chronologies {
		h, err := r.ResolveAll(c.ID, c.Aliases...)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s %s", c.Kind, c.ID)
		}
		if err := r.Bind(h, c.Kind); err != nil {
			return nil, errors.Wrapf(err, "bind %s %s", c.Kind, c.ID)
		}
		g.Nodes = append(g.Nodes, Node{Handle: h, Kind: c.Kind, ID: c.ID, Aliases: c.Aliases})
	}
	for _, c := range a.Chronologies {
		if c.Kind != types.KindFacet {
			continue
		}
		latest, ok := c.Latest()
		if !ok {
			continue
		}
		f, ok := latest.Component.(types.Facet)
		if !ok || f.Kind != types.FacetStatedAxiom {
			continue
		}
		child := r.Resolve(f.Referenced)
		for _, t := range f.Targets {
			g.Parents[child] = append(g.Parents[child], r.Resolve(t))
		}
	}
	return g, nil
}
