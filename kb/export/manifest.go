package export

import (
	"time"

	"github.com/Masterminds/semver/v3"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
)

const (
	// FormatVersion is written into every artifact manifest.
	FormatVersion = "1.0.0"

	// SupportedFormats is the semver constraint Import accepts.
	SupportedFormats = "^1"

	manifestEntry = "manifest.pb"
	entitiesEntry = "entities.pb"
)

const (
	manifestFormat    protowire.Number = 1
	manifestGenerator protowire.Number = 2
	manifestCreatedMS protowire.Number = 3
	manifestCounts    protowire.Number = 4
	manifestStamps    protowire.Number = 5
	manifestDigest    protowire.Number = 6
	manifestVersions  protowire.Number = 7

	countKind  protowire.Number = 1
	countValue protowire.Number = 2
)

// Manifest describes the contents of an artifact.
type Manifest struct {
	FormatVersion string
	Generator     string
	CreatedAt     time.Time
	Counts        map[types.Kind]int
	Stamps        int
	Versions      int
	Digest        []byte // SHA-256 of entities.pb
}

// Entities returns the total number of chronologies in the artifact.
func (m Manifest) Entities() int {
	n := 0
	for _, c := range m.Counts {
		n += c
	}
	return n
}

func encodeManifest(m Manifest) []byte {
	e := &encoder{}
	e.str(manifestFormat, m.FormatVersion)
	e.str(manifestGenerator, m.Generator)
	e.sint(manifestCreatedMS, m.CreatedAt.UnixMilli())
	for _, k := range []types.Kind{types.KindConcept, types.KindPattern, types.KindSemantic, types.KindFacet} {
		n := m.Counts[k]
		if n == 0 {
			continue
		}
		e.message(manifestCounts, func(ce *encoder) error {
			ce.varint(countKind, uint64(k))
			ce.varint(countValue, uint64(n))
			return nil
		})
	}
	e.varint(manifestStamps, uint64(m.Stamps))
	e.varint(manifestVersions, uint64(m.Versions))
	e.bytes(manifestDigest, m.Digest)
	return e.b
}

func decodeManifest(b []byte) (Manifest, error) {
	m := Manifest{Counts: map[types.Kind]int{}}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case manifestFormat:
			m.FormatVersion = d.str()
		case manifestGenerator:
			m.Generator = d.str()
		case manifestCreatedMS:
			m.CreatedAt = time.UnixMilli(d.sint()).UTC()
		case manifestCounts:
			var kind types.Kind
			var n int
			cd := newDecoder(d.bytes())
			for cd.next() {
				switch cd.num {
				case countKind:
					kind = types.Kind(cd.varint())
				case countValue:
					n = int(cd.varint())
				default:
					cd.skip()
				}
			}
			if cd.err != nil && d.err == nil {
				d.err = cd.err
			}
			m.Counts[kind] += n
		case manifestStamps:
			m.Stamps = int(d.varint())
		case manifestVersions:
			m.Versions = int(d.varint())
		case manifestDigest:
			m.Digest = append([]byte(nil), d.bytes()...)
		default:
			d.skip()
		}
	}
	return m, errors.Wrap(d.err, "decode manifest")
}

// checkFormat rejects manifests written by a format version outside
// SupportedFormats.
func checkFormat(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrapf(errors.ErrIncompatibleFormat, "format version %q: %v", version, err)
	}
	constraint, err := semver.NewConstraint(SupportedFormats)
	if err != nil {
		return errors.Wrapf(err, "invalid format constraint %q", SupportedFormats)
	}
	if !constraint.Check(v) {
		return errors.WithHintf(
			errors.Wrapf(errors.ErrIncompatibleFormat, "format version %s does not satisfy %s", v, SupportedFormats),
			"re-export the artifact with a termforge release that writes format %s", FormatVersion)
	}
	return nil
}
