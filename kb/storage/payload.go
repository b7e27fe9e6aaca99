package storage

import (
	"encoding/json"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
)

// taggedValue keeps a semantic value's datatype next to its JSON so integers,
// references and id collections decode to their canonical Go types.
type taggedValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type semanticPayload struct {
	ID         types.StableID   `json:"id"`
	Aliases    []types.StableID `json:"aliases,omitempty"`
	Pattern    types.StableID   `json:"pattern"`
	Referenced types.StableID   `json:"referenced"`
	Values     []taggedValue    `json:"values"`
}

// MarshalComponent encodes c as the JSON payload stored per version.
func MarshalComponent(c types.Component) (string, error) {
	var v any = c
	if s, ok := c.(types.Semantic); ok {
		p := semanticPayload{ID: s.ID, Aliases: s.Aliases, Pattern: s.Pattern, Referenced: s.Referenced}
		for i, value := range s.Values {
			tv, err := encodeValue(value)
			if err != nil {
				return "", errors.Wrapf(err, "semantic %s value %d", s.ID, i)
			}
			p.Values = append(p.Values, tv)
		}
		v = p
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "failed to marshal %s %s", c.ComponentKind(), c.ComponentID())
	}
	return string(data), nil
}

// UnmarshalComponent decodes a payload written by MarshalComponent.
func UnmarshalComponent(kind types.Kind, payload string) (types.Component, error) {
	data := []byte(payload)
	switch kind {
	case types.KindConcept:
		var c types.Concept
		err := json.Unmarshal(data, &c)
		return c, errors.Wrap(err, "failed to unmarshal concept")
	case types.KindPattern:
		var p types.Pattern
		err := json.Unmarshal(data, &p)
		return p, errors.Wrap(err, "failed to unmarshal pattern")
	case types.KindFacet:
		var f types.Facet
		err := json.Unmarshal(data, &f)
		return f, errors.Wrap(err, "failed to unmarshal facet")
	case types.KindSemantic:
		var p semanticPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal semantic")
		}
		s := types.Semantic{ID: p.ID, Aliases: p.Aliases, Pattern: p.Pattern, Referenced: p.Referenced, Values: make([]any, len(p.Values))}
		for i, tv := range p.Values {
			v, err := decodeValue(tv)
			if err != nil {
				return nil, errors.Wrapf(err, "semantic %s value %d", p.ID, i)
			}
			s.Values[i] = v
		}
		return s, nil
	}
	return nil, errors.Newf("cannot decode component of kind %s", kind)
}

func encodeValue(v any) (taggedValue, error) {
	dt := types.ValueDataType(v)
	if dt == types.DataTypeUnknown {
		return taggedValue{}, errors.Wrapf(errors.ErrFieldTypeMismatch, "value of type %T has no datatype", v)
	}
	if f, ok := v.(float64); ok && !types.IsFinite(f) {
		return taggedValue{}, errors.Wrapf(errors.ErrFieldTypeMismatch, "float value %v is not finite", f)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return taggedValue{}, errors.Wrap(err, "failed to marshal value")
	}
	return taggedValue{Type: dt.String(), Value: raw}, nil
}

func decodeValue(tv taggedValue) (any, error) {
	dt, err := types.ParseDataType(tv.Type)
	if err != nil {
		return nil, err
	}
	var out any
	switch dt {
	case types.DataTypeString:
		var s string
		err = json.Unmarshal(tv.Value, &s)
		out = s
	case types.DataTypeInteger:
		var n int64
		err = json.Unmarshal(tv.Value, &n)
		out = n
	case types.DataTypeFloat:
		var f float64
		err = json.Unmarshal(tv.Value, &f)
		out = f
	case types.DataTypeBoolean:
		var b bool
		err = json.Unmarshal(tv.Value, &b)
		out = b
	case types.DataTypeComponentRef:
		var id types.StableID
		err = json.Unmarshal(tv.Value, &id)
		out = id
	case types.DataTypeComponentIDSet:
		var ids []types.StableID
		err = json.Unmarshal(tv.Value, &ids)
		out = types.NewIDSet(ids...)
	case types.DataTypeComponentIDList:
		var ids []types.StableID
		err = json.Unmarshal(tv.Value, &ids)
		out = types.NewIDList(ids...)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal %s value", dt)
	}
	return out, nil
}
