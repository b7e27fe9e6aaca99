// Package manifest reads declarative composition files.
//
// A manifest is a YAML document listing concepts, patterns and semantics
// together with their names, definitions, identifiers and stated parents:
//
//	starter: true
//	stamp:
//	  author: User
//	  time: 2024-03-14T09:26:53Z
//	concepts:
//	  - id: ad6f4fdd-fee8-45db-a207-111dc4c939a9
//	    description: A test pattern for primitive data types
//	    names:
//	      - text: A test pattern for primitive data types
//	        dialects: {US English: preferred}
//	    identifiers:
//	      - source: UUID
//	        value: ad6f4fdd-fee8-45db-a207-111dc4c939a9
//	    parents: [<uuid>]
//	patterns:
//	  - id: <uuid>
//	    meaning: Test
//	    purpose: Test
//	    fields:
//	      - {meaning: String field, purpose: Test, datatype: string}
//	semantics:
//	  - pattern: <uuid>
//	    referenced: ad6f4fdd-fee8-45db-a207-111dc4c939a9
//	    values: ["This is a test String"]
//
// Vocabulary-valued keys (languages, dialects, sources, meanings, purposes,
// stamp author/module/path) accept a UUID or a term name from package vocab.
// A whole manifest is applied in a single Compose call, so it joins a
// session entirely or not at all.
package manifest

import (
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/kb/vocab"
)

// Manifest is the decoded document.
type Manifest struct {
	// Starter composes the built-in vocabulary before the manifest's records.
	Starter   bool       `yaml:"starter,omitempty"`
	Stamp     *Stamp     `yaml:"stamp,omitempty"`
	Concepts  []Concept  `yaml:"concepts,omitempty"`
	Patterns  []Pattern  `yaml:"patterns,omitempty"`
	Semantics []Semantic `yaml:"semantics,omitempty"`
}

// Stamp overrides the composer's stamp defaults.
type Stamp struct {
	Status string     `yaml:"status,omitempty"`
	Author string     `yaml:"author,omitempty"`
	Module string     `yaml:"module,omitempty"`
	Path   string     `yaml:"path,omitempty"`
	Time   *time.Time `yaml:"time,omitempty"`
}

// Descriptions are the facets any entity may carry.
type Descriptions struct {
	Names       []Name       `yaml:"names,omitempty"`
	Definitions []Text       `yaml:"definitions,omitempty"`
	Identifiers []Identifier `yaml:"identifiers,omitempty"`
	Parents     []string     `yaml:"parents,omitempty"`
	Navigation  []string     `yaml:"navigation,omitempty"`
}

type Concept struct {
	ID           string   `yaml:"id"`
	Description  string   `yaml:"description"`
	Aliases      []string `yaml:"aliases,omitempty"`
	Descriptions `yaml:",inline"`
}

type Pattern struct {
	ID           string   `yaml:"id"`
	Aliases      []string `yaml:"aliases,omitempty"`
	Meaning      string   `yaml:"meaning"`
	Purpose      string   `yaml:"purpose"`
	Fields       []Field  `yaml:"fields"`
	Descriptions `yaml:",inline"`
}

type Field struct {
	Meaning  string `yaml:"meaning"`
	Purpose  string `yaml:"purpose"`
	DataType string `yaml:"datatype"`
}

type Semantic struct {
	ID           string   `yaml:"id,omitempty"` // derived from content when empty
	Aliases      []string `yaml:"aliases,omitempty"`
	Pattern      string   `yaml:"pattern"`
	Referenced   string   `yaml:"referenced"`
	Values       []any    `yaml:"values"`
	Descriptions `yaml:",inline"`
}

// Text is a definition.
type Text struct {
	Text             string `yaml:"text"`
	Language         string `yaml:"language,omitempty"`
	CaseSignificance string `yaml:"case,omitempty"`
}

// Name is a fully qualified name unless Synonym is set.
type Name struct {
	Text     `yaml:",inline"`
	Synonym  bool              `yaml:"synonym,omitempty"`
	Dialects map[string]string `yaml:"dialects,omitempty"` // dialect -> preferred|acceptable
}

type Identifier struct {
	Source string `yaml:"source,omitempty"`
	Value  string `yaml:"value"`
}

// Decode reads one manifest. Unknown keys are rejected.
func Decode(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, errors.Wrap(errors.Mark(err, errors.ErrInvalidRequest), "decode manifest")
	}
	return &m, nil
}

// Load reads the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("manifest %s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open manifest %s", path)
	}
	defer f.Close()
	m, err := Decode(f)
	return m, errors.Wrapf(err, "manifest %s", path)
}

// Len is the number of entities the manifest declares.
func (m *Manifest) Len() int {
	return len(m.Concepts) + len(m.Patterns) + len(m.Semantics)
}

// ApplyStamp returns base with the manifest's stamp overrides applied.
func (m *Manifest) ApplyStamp(base types.Stamp) (types.Stamp, error) {
	if m.Stamp == nil {
		return base, nil
	}
	s := base
	var err error
	if m.Stamp.Status != "" {
		if s.Status, err = types.ParseStatus(m.Stamp.Status); err != nil {
			return base, errors.Wrap(err, "stamp.status")
		}
	}
	overrides := []struct {
		key      string
		value    string
		category types.StableID
		dst      *types.StableID
	}{
		{"stamp.author", m.Stamp.Author, vocab.Authors, &s.Author},
		{"stamp.module", m.Stamp.Module, vocab.Modules, &s.Module},
		{"stamp.path", m.Stamp.Path, vocab.Paths, &s.Path},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		if *o.dst, err = vocab.Resolve(o.category, o.value); err != nil {
			return base, errors.Wrap(err, o.key)
		}
	}
	if m.Stamp.Time != nil {
		s.Time = *m.Stamp.Time
	}
	return s, nil
}

func parseID(where, s string) (types.StableID, error) {
	id, err := types.ParseID(strings.TrimSpace(s))
	if err != nil {
		return id, errors.Wrapf(errors.ErrInvalidRequest, "%s: %q is not a UUID", where, s)
	}
	return id, nil
}

func parseIDs(where string, in []string) ([]types.StableID, error) {
	out := make([]types.StableID, 0, len(in))
	for _, s := range in {
		id, err := parseID(where, s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
