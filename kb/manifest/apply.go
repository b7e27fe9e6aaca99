package manifest

import (
	"fmt"
	"sort"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/compose"
	"github.com/teranos/termforge/kb/starter"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/kb/vocab"
)

// Compose stages the manifest through a. Entities are staged before any
// facet, so names and parents may refer to records declared later in the
// file. Semantics must name a pattern declared in the same manifest.
func (m *Manifest) Compose(a *compose.Assembler, opts starter.Options) error {
	if m.Starter {
		if err := starter.Vocabulary(a, opts); err != nil {
			return err
		}
	}

	type described struct {
		where string
		id    types.StableID
		d     Descriptions
	}
	var facets []described

	for i, c := range m.Concepts {
		where := fmt.Sprintf("concepts[%d]", i)
		id, err := parseID(where+".id", c.ID)
		if err != nil {
			return err
		}
		aliases, err := parseIDs(where+".aliases", c.Aliases)
		if err != nil {
			return err
		}
		if _, err := a.Concept(id, c.Description, aliases...); err != nil {
			return errors.Wrap(err, where)
		}
		facets = append(facets, described{where, id, c.Descriptions})
	}

	patterns := make(map[types.StableID]types.Pattern, len(m.Patterns))
	for i, p := range m.Patterns {
		where := fmt.Sprintf("patterns[%d]", i)
		pattern, err := p.build(a, where)
		if err != nil {
			return err
		}
		if err := a.Stage(pattern); err != nil {
			return errors.Wrap(err, where)
		}
		patterns[pattern.ID] = pattern
		facets = append(facets, described{where, pattern.ID, p.Descriptions})
	}

	for i, s := range m.Semantics {
		where := fmt.Sprintf("semantics[%d]", i)
		semantic, err := s.build(a, where, patterns)
		if err != nil {
			return err
		}
		if err := a.Stage(semantic); err != nil {
			return errors.Wrap(err, where)
		}
		facets = append(facets, described{where, semantic.ID, s.Descriptions})
	}

	for _, f := range facets {
		attachers, err := f.d.attachers(f.where, f.id)
		if err != nil {
			return err
		}
		if _, err := a.Attach(attachers...); err != nil {
			return errors.Wrap(err, f.where)
		}
	}
	return nil
}

func (p Pattern) build(scope compose.Scope, where string) (types.Pattern, error) {
	id, err := parseID(where+".id", p.ID)
	if err != nil {
		return types.Pattern{}, err
	}
	aliases, err := parseIDs(where+".aliases", p.Aliases)
	if err != nil {
		return types.Pattern{}, err
	}
	meaning, err := vocab.Resolve(vocab.Meanings, p.Meaning)
	if err != nil {
		return types.Pattern{}, errors.Wrap(err, where+".meaning")
	}
	purpose, err := vocab.Resolve(vocab.Purposes, p.Purpose)
	if err != nil {
		return types.Pattern{}, errors.Wrap(err, where+".purpose")
	}
	fields := make([]types.FieldDefinition, 0, len(p.Fields))
	for j, f := range p.Fields {
		fw := fmt.Sprintf("%s.fields[%d]", where, j)
		var fd types.FieldDefinition
		if fd.Meaning, err = vocab.Resolve(vocab.Meanings, f.Meaning); err != nil {
			return types.Pattern{}, errors.Wrap(err, fw+".meaning")
		}
		if fd.Purpose, err = vocab.Resolve(vocab.Purposes, f.Purpose); err != nil {
			return types.Pattern{}, errors.Wrap(err, fw+".purpose")
		}
		if fd.DataType, err = types.ParseDataType(f.DataType); err != nil {
			return types.Pattern{}, errors.Mark(errors.Wrap(err, fw+".datatype"), errors.ErrFieldTypeMismatch)
		}
		fields = append(fields, fd)
	}
	pattern, err := compose.NewPatternBuilder(scope).WithAliases(aliases...).Build(id, meaning, purpose, fields)
	return pattern, errors.Wrap(err, where)
}

func (s Semantic) build(scope compose.Scope, where string, patterns map[types.StableID]types.Pattern) (types.Semantic, error) {
	patternID, err := parseID(where+".pattern", s.Pattern)
	if err != nil {
		return types.Semantic{}, err
	}
	pattern, ok := patterns[patternID]
	if !ok {
		return types.Semantic{}, errors.Wrapf(errors.ErrUnresolvedReference,
			"%s: pattern %s is not declared in this manifest", where, patternID)
	}
	referenced, err := parseID(where+".referenced", s.Referenced)
	if err != nil {
		return types.Semantic{}, err
	}
	aliases, err := parseIDs(where+".aliases", s.Aliases)
	if err != nil {
		return types.Semantic{}, err
	}

	values := make([]any, len(s.Values))
	for j, v := range s.Values {
		values[j] = v
		if j < len(pattern.Fields) {
			if values[j], err = idValue(pattern.Fields[j].DataType, v); err != nil {
				return types.Semantic{}, errors.Wrapf(err, "%s.values[%d]", where, j)
			}
		}
	}

	b := compose.NewSemanticBuilder(scope).WithAliases(aliases...)
	if s.ID != "" {
		id, err := parseID(where+".id", s.ID)
		if err != nil {
			return types.Semantic{}, err
		}
		b = b.WithID(id)
	}
	semantic, err := b.Build(pattern, referenced, values...)
	return semantic, errors.Wrap(err, where)
}

// idValue turns YAML strings into ids for component-valued fields. Every
// other value is passed through for the builder to check.
func idValue(dt types.DataType, v any) (any, error) {
	switch dt {
	case types.DataTypeComponentRef:
		if s, ok := v.(string); ok {
			return parseID("component value", s)
		}
	case types.DataTypeComponentIDSet, types.DataTypeComponentIDList:
		list, ok := v.([]any)
		if !ok {
			return v, nil
		}
		ids := make([]types.StableID, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Wrapf(errors.ErrFieldTypeMismatch, "%s element %v is not a UUID string", dt, item)
			}
			id, err := parseID("component value", s)
			if err != nil {
				return nil, errors.Mark(err, errors.ErrFieldTypeMismatch)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	return v, nil
}

func (d Descriptions) attachers(where string, id types.StableID) ([]compose.Attacher, error) {
	var out []compose.Attacher
	for i, n := range d.Names {
		nw := fmt.Sprintf("%s.names[%d]", where, i)
		at := compose.Name(id, n.Text.Text)
		if n.Synonym {
			at = compose.Synonym(id, n.Text.Text)
		}
		at, err := n.Text.apply(at, nw)
		if err != nil {
			return nil, err
		}
		dialects := make([]string, 0, len(n.Dialects))
		for dialect := range n.Dialects {
			dialects = append(dialects, dialect)
		}
		sort.Strings(dialects)
		for _, dialect := range dialects {
			acc := n.Dialects[dialect]
			did, err := vocab.Resolve(vocab.Dialects, dialect)
			if err != nil {
				return nil, errors.Wrap(err, nw+".dialects")
			}
			acceptability, err := types.ParseAcceptability(acc)
			if err != nil {
				return nil, errors.Wrap(err, nw+".dialects")
			}
			at = at.Dialect(did, acceptability)
		}
		out = append(out, at)
	}
	for i, t := range d.Definitions {
		at, err := t.apply(compose.Definition(id, t.Text), fmt.Sprintf("%s.definitions[%d]", where, i))
		if err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	for i, ident := range d.Identifiers {
		var source types.StableID
		if ident.Source != "" {
			var err error
			if source, err = vocab.Resolve(vocab.IdentifierSource, ident.Source); err != nil {
				return nil, errors.Wrapf(err, "%s.identifiers[%d].source", where, i)
			}
		}
		out = append(out, compose.Identifier(id, source, ident.Value))
	}
	if len(d.Parents) > 0 {
		parents, err := parseIDs(where+".parents", d.Parents)
		if err != nil {
			return nil, err
		}
		out = append(out, compose.Axiom(id, parents...))
	}
	if len(d.Navigation) > 0 {
		parents, err := parseIDs(where+".navigation", d.Navigation)
		if err != nil {
			return nil, err
		}
		out = append(out, compose.Navigation(id, parents...))
	}
	return out, nil
}

func (t Text) apply(at compose.TextAttacher, where string) (compose.TextAttacher, error) {
	if t.Language != "" {
		language, err := vocab.Resolve(vocab.Languages, t.Language)
		if err != nil {
			return at, errors.Wrap(err, where+".language")
		}
		at = at.Language(language)
	}
	if t.CaseSignificance != "" {
		cs, err := vocab.Resolve(vocab.CaseSignificance, t.CaseSignificance)
		if err != nil {
			return at, errors.Wrap(err, where+".case")
		}
		at = at.CaseSignificance(cs)
	}
	return at, nil
}
