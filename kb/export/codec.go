package export

import (
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
)

// Field numbers of the artifact messages. Numbers are part of the format and
// must not be reused.
const (
	chronKind     protowire.Number = 1
	chronID       protowire.Number = 2
	chronAliases  protowire.Number = 3
	chronVersions protowire.Number = 4

	versionStamp     protowire.Number = 1
	versionComponent protowire.Number = 2

	stampID     protowire.Number = 1
	stampStatus protowire.Number = 2
	stampTimeMS protowire.Number = 3
	stampAuthor protowire.Number = 4
	stampModule protowire.Number = 5
	stampPath   protowire.Number = 6

	conceptID          protowire.Number = 1
	conceptAliases     protowire.Number = 2
	conceptDescription protowire.Number = 3

	patternID      protowire.Number = 1
	patternAliases protowire.Number = 2
	patternMeaning protowire.Number = 3
	patternPurpose protowire.Number = 4
	patternFields  protowire.Number = 5

	fieldMeaning  protowire.Number = 1
	fieldPurpose  protowire.Number = 2
	fieldDataType protowire.Number = 3

	semanticID         protowire.Number = 1
	semanticAliases    protowire.Number = 2
	semanticPattern    protowire.Number = 3
	semanticReferenced protowire.Number = 4
	semanticValues     protowire.Number = 5

	valueDataType protowire.Number = 1
	valueString   protowire.Number = 2
	valueInteger  protowire.Number = 3
	valueFloat    protowire.Number = 4
	valueBoolean  protowire.Number = 5
	valueIDs      protowire.Number = 6

	facetID               protowire.Number = 1
	facetKind             protowire.Number = 2
	facetReferenced       protowire.Number = 3
	facetText             protowire.Number = 4
	facetLanguage         protowire.Number = 5
	facetCaseSignificance protowire.Number = 6
	facetSource           protowire.Number = 7
	facetValue            protowire.Number = 8
	facetTargets          protowire.Number = 9
	facetDialect          protowire.Number = 10
	facetAcceptability    protowire.Number = 11
)

// encoder wraps protowire's append functions. Zero values are omitted.
type encoder struct {
	b []byte
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) sint(num protowire.Number, v int64) {
	e.varint(num, protowire.EncodeZigZag(v))
}

func (e *encoder) fixed64(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed64Type)
	e.b = protowire.AppendFixed64(e.b, v)
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

func (e *encoder) str(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

func (e *encoder) id(num protowire.Number, id types.StableID) {
	if id == uuid.Nil {
		return
	}
	e.bytes(num, id[:])
}

// ids writes every element, including nil ids, so list positions survive.
func (e *encoder) ids(num protowire.Number, ids []types.StableID) {
	for _, id := range ids {
		e.bytes(num, id[:])
	}
}

func (e *encoder) message(num protowire.Number, fn func(*encoder) error) error {
	var sub encoder
	if err := fn(&sub); err != nil {
		return err
	}
	e.bytes(num, sub.b)
	return nil
}

// EncodeChronology appends the wire form of c to b.
func EncodeChronology(b []byte, c types.Chronology) ([]byte, error) {
	e := &encoder{b: b}
	e.varint(chronKind, uint64(c.Kind))
	e.id(chronID, c.ID)
	e.ids(chronAliases, c.Aliases)
	for _, v := range c.Versions {
		if v.Component == nil || v.Component.ComponentKind() != c.Kind {
			return nil, errors.AssertionFailedf("chronology %s (%s) holds a version of another kind", c.ID, c.Kind)
		}
		err := e.message(chronVersions, func(ve *encoder) error {
			ve.message(versionStamp, func(se *encoder) error {
				encodeStamp(se, v.Stamp)
				return nil
			})
			return ve.message(versionComponent, func(ce *encoder) error {
				return encodeComponent(ce, v.Component)
			})
		})
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s %s", c.Kind, c.ID)
		}
	}
	return e.b, nil
}

func encodeStamp(e *encoder, s types.Stamp) {
	e.id(stampID, s.ID)
	e.varint(stampStatus, uint64(s.Status))
	e.sint(stampTimeMS, s.Time.UnixMilli())
	e.id(stampAuthor, s.Author)
	e.id(stampModule, s.Module)
	e.id(stampPath, s.Path)
}

func encodeComponent(e *encoder, c types.Component) error {
	switch v := c.(type) {
	case types.Concept:
		e.id(conceptID, v.ID)
		e.ids(conceptAliases, v.Aliases)
		e.str(conceptDescription, v.Description)
	case types.Pattern:
		e.id(patternID, v.ID)
		e.ids(patternAliases, v.Aliases)
		e.id(patternMeaning, v.Meaning)
		e.id(patternPurpose, v.Purpose)
		for _, f := range v.Fields {
			e.message(patternFields, func(fe *encoder) error {
				fe.id(fieldMeaning, f.Meaning)
				fe.id(fieldPurpose, f.Purpose)
				fe.varint(fieldDataType, uint64(f.DataType))
				return nil
			})
		}
	case types.Semantic:
		e.id(semanticID, v.ID)
		e.ids(semanticAliases, v.Aliases)
		e.id(semanticPattern, v.Pattern)
		e.id(semanticReferenced, v.Referenced)
		for i, value := range v.Values {
			err := e.message(semanticValues, func(ve *encoder) error {
				return encodeValue(ve, value)
			})
			if err != nil {
				return errors.Wrapf(err, "semantic %s value %d", v.ID, i)
			}
		}
	case types.Facet:
		e.id(facetID, v.ID)
		e.varint(facetKind, uint64(v.Kind))
		e.id(facetReferenced, v.Referenced)
		e.str(facetText, v.Text)
		e.id(facetLanguage, v.Language)
		e.id(facetCaseSignificance, v.CaseSignificance)
		e.id(facetSource, v.Source)
		e.str(facetValue, v.Value)
		e.ids(facetTargets, v.Targets)
		e.id(facetDialect, v.Dialect)
		e.varint(facetAcceptability, uint64(v.Acceptability))
	default:
		return errors.AssertionFailedf("cannot encode component %T", c)
	}
	return nil
}

func encodeValue(e *encoder, v any) error {
	dt := types.ValueDataType(v)
	e.varint(valueDataType, uint64(dt))
	switch x := v.(type) {
	case string:
		e.str(valueString, x)
	case int64:
		e.sint(valueInteger, x)
	case float64:
		if !types.IsFinite(x) {
			return errors.Wrapf(errors.ErrFieldTypeMismatch, "float value %v is not finite", x)
		}
		e.fixed64(valueFloat, math.Float64bits(x))
	case bool:
		if x {
			e.varint(valueBoolean, 1)
		}
	case types.StableID:
		e.ids(valueIDs, []types.StableID{x})
	case types.IDSet:
		e.ids(valueIDs, x)
	case types.IDList:
		e.ids(valueIDs, x)
	default:
		return errors.Wrapf(errors.ErrFieldTypeMismatch, "value of type %T is not canonical", v)
	}
	return nil
}

// decoder walks the fields of one message. The first malformed field stops
// the walk and is reported by err.
type decoder struct {
	b   []byte
	typ protowire.Type
	num protowire.Number
	err error
}

func newDecoder(b []byte) *decoder { return &decoder{b: b} }

func (d *decoder) next() bool {
	if d.err != nil || len(d.b) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return false
	}
	d.num, d.typ = num, typ
	d.b = d.b[n:]
	return true
}

func (d *decoder) fail(n int) bool {
	if n < 0 {
		d.err = errors.Wrapf(protowire.ParseError(n), "field %d", d.num)
		return true
	}
	return false
}

func (d *decoder) expect(typ protowire.Type) bool {
	if d.typ != typ {
		d.err = errors.Newf("field %d: wire type %d, want %d", d.num, d.typ, typ)
		return false
	}
	return true
}

func (d *decoder) skip() {
	n := protowire.ConsumeFieldValue(d.num, d.typ, d.b)
	if !d.fail(n) {
		d.b = d.b[n:]
	}
}

func (d *decoder) varint() uint64 {
	if !d.expect(protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(d.b)
	if d.fail(n) {
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) sint() int64 { return protowire.DecodeZigZag(d.varint()) }

func (d *decoder) fixed64() uint64 {
	if !d.expect(protowire.Fixed64Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed64(d.b)
	if d.fail(n) {
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) bytes() []byte {
	if !d.expect(protowire.BytesType) {
		return nil
	}
	v, n := protowire.ConsumeBytes(d.b)
	if d.fail(n) {
		return nil
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) str() string { return string(d.bytes()) }

func (d *decoder) id() types.StableID {
	raw := d.bytes()
	if d.err != nil {
		return uuid.Nil
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		d.err = errors.Wrapf(err, "field %d", d.num)
	}
	return id
}

// DecodeChronology parses one chronology message.
func DecodeChronology(b []byte) (types.Chronology, error) {
	var c types.Chronology
	var rawVersions [][]byte
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case chronKind:
			c.Kind = types.Kind(d.varint())
		case chronID:
			c.ID = d.id()
		case chronAliases:
			c.Aliases = append(c.Aliases, d.id())
		case chronVersions:
			rawVersions = append(rawVersions, d.bytes())
		default:
			d.skip()
		}
	}
	if d.err != nil {
		return c, errors.Wrap(d.err, "decode chronology")
	}
	if c.Kind == types.KindUnknown || c.ID == uuid.Nil {
		return c, errors.Newf("chronology without kind or id")
	}
	for i, raw := range rawVersions {
		v, err := decodeVersion(c.Kind, raw)
		if err != nil {
			return c, errors.Wrapf(err, "%s %s version %d", c.Kind, c.ID, i)
		}
		c.Versions = append(c.Versions, v)
	}
	return c, nil
}

func decodeVersion(kind types.Kind, b []byte) (types.Version, error) {
	var v types.Version
	var rawComponent []byte
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case versionStamp:
			v.Stamp = decodeStamp(d.bytes(), d)
		case versionComponent:
			rawComponent = d.bytes()
		default:
			d.skip()
		}
	}
	if d.err != nil {
		return v, d.err
	}
	c, err := decodeComponent(kind, rawComponent)
	v.Component = c
	return v, err
}

func decodeStamp(b []byte, parent *decoder) types.Stamp {
	var s types.Stamp
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case stampID:
			s.ID = d.id()
		case stampStatus:
			s.Status = types.Status(d.varint())
		case stampTimeMS:
			s.Time = time.UnixMilli(d.sint()).UTC()
		case stampAuthor:
			s.Author = d.id()
		case stampModule:
			s.Module = d.id()
		case stampPath:
			s.Path = d.id()
		default:
			d.skip()
		}
	}
	if d.err != nil && parent.err == nil {
		parent.err = errors.Wrap(d.err, "stamp")
	}
	return s
}

func decodeComponent(kind types.Kind, b []byte) (types.Component, error) {
	d := newDecoder(b)
	switch kind {
	case types.KindConcept:
		var c types.Concept
		for d.next() {
			switch d.num {
			case conceptID:
				c.ID = d.id()
			case conceptAliases:
				c.Aliases = append(c.Aliases, d.id())
			case conceptDescription:
				c.Description = d.str()
			default:
				d.skip()
			}
		}
		return c, d.err
	case types.KindPattern:
		var p types.Pattern
		for d.next() {
			switch d.num {
			case patternID:
				p.ID = d.id()
			case patternAliases:
				p.Aliases = append(p.Aliases, d.id())
			case patternMeaning:
				p.Meaning = d.id()
			case patternPurpose:
				p.Purpose = d.id()
			case patternFields:
				p.Fields = append(p.Fields, decodeField(d.bytes(), d))
			default:
				d.skip()
			}
		}
		return p, d.err
	case types.KindSemantic:
		var s types.Semantic
		s.Values = []any{}
		for d.next() {
			switch d.num {
			case semanticID:
				s.ID = d.id()
			case semanticAliases:
				s.Aliases = append(s.Aliases, d.id())
			case semanticPattern:
				s.Pattern = d.id()
			case semanticReferenced:
				s.Referenced = d.id()
			case semanticValues:
				s.Values = append(s.Values, decodeValue(d.bytes(), d))
			default:
				d.skip()
			}
		}
		return s, d.err
	case types.KindFacet:
		var f types.Facet
		for d.next() {
			switch d.num {
			case facetID:
				f.ID = d.id()
			case facetKind:
				f.Kind = types.FacetKind(d.varint())
			case facetReferenced:
				f.Referenced = d.id()
			case facetText:
				f.Text = d.str()
			case facetLanguage:
				f.Language = d.id()
			case facetCaseSignificance:
				f.CaseSignificance = d.id()
			case facetSource:
				f.Source = d.id()
			case facetValue:
				f.Value = d.str()
			case facetTargets:
				f.Targets = append(f.Targets, d.id())
			case facetDialect:
				f.Dialect = d.id()
			case facetAcceptability:
				f.Acceptability = types.Acceptability(d.varint())
			default:
				d.skip()
			}
		}
		return f, d.err
	}
	return nil, errors.Newf("unknown component kind %d", kind)
}

func decodeField(b []byte, parent *decoder) types.FieldDefinition {
	var f types.FieldDefinition
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case fieldMeaning:
			f.Meaning = d.id()
		case fieldPurpose:
			f.Purpose = d.id()
		case fieldDataType:
			f.DataType = types.DataType(d.varint())
		default:
			d.skip()
		}
	}
	if d.err != nil && parent.err == nil {
		parent.err = errors.Wrap(d.err, "field definition")
	}
	return f
}

func decodeValue(b []byte, parent *decoder) any {
	var (
		dt  types.DataType
		s   string
		i   int64
		f   float64
		ok  bool
		ids []types.StableID
	)
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case valueDataType:
			dt = types.DataType(d.varint())
		case valueString:
			s = d.str()
		case valueInteger:
			i = d.sint()
		case valueFloat:
			f = math.Float64frombits(d.fixed64())
		case valueBoolean:
			ok = d.varint() != 0
		case valueIDs:
			ids = append(ids, d.id())
		default:
			d.skip()
		}
	}
	if d.err == nil {
		switch dt {
		case types.DataTypeString:
			return s
		case types.DataTypeInteger:
			return i
		case types.DataTypeFloat:
			return f
		case types.DataTypeBoolean:
			return ok
		case types.DataTypeComponentRef:
			if len(ids) == 1 {
				return ids[0]
			}
			d.err = errors.Newf("component value carries %d ids", len(ids))
		case types.DataTypeComponentIDSet:
			return types.IDSet(nonNil(ids))
		case types.DataTypeComponentIDList:
			return types.IDList(nonNil(ids))
		default:
			d.err = errors.Wrapf(errors.ErrFieldTypeMismatch, "unknown value datatype %d", dt)
		}
	}
	if parent.err == nil {
		parent.err = errors.Wrap(d.err, "value")
	}
	return nil
}

func nonNil(ids []types.StableID) []types.StableID {
	if ids == nil {
		return []types.StableID{}
	}
	return ids
}
