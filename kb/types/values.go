package types

import (
	"math"

	"github.com/teranos/termforge/errors"
)

// NormalizeValue checks v against the declared datatype and returns it in
// canonical form:
//
//	String          string
//	Integer         int64   (any signed or unsigned integer that fits)
//	Float           float64 (float32 widened; NaN and ±Inf rejected)
//	Boolean         bool
//	ComponentRef    StableID
//	ComponentIDSet  IDSet   (sorted, duplicates collapsed)
//	ComponentIDList IDList  (order and duplicates preserved)
//
// A value of the wrong runtime type is never coerced; the error wraps
// errors.ErrFieldTypeMismatch.
func NormalizeValue(dt DataType, v any) (any, error) {
	switch dt {
	case DataTypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case DataTypeInteger:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case DataTypeFloat:
		if f, ok := toFloat64(v); ok {
			if !IsFinite(f) {
				return nil, errors.Wrapf(errors.ErrFieldTypeMismatch, "%s slot cannot hold %v", dt, f)
			}
			return f, nil
		}
	case DataTypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case DataTypeComponentRef:
		if id, ok := v.(StableID); ok {
			return id, nil
		}
	case DataTypeComponentIDSet:
		switch ids := v.(type) {
		case IDSet:
			return NewIDSet(ids...), nil
		case []StableID:
			return NewIDSet(ids...), nil
		case IDList:
			return NewIDSet(ids...), nil
		}
	case DataTypeComponentIDList:
		switch ids := v.(type) {
		case IDList:
			return NewIDList(ids...), nil
		case []StableID:
			return NewIDList(ids...), nil
		}
	default:
		return nil, errors.Wrapf(errors.ErrFieldTypeMismatch, "undeclared datatype %d", dt)
	}
	return nil, errors.Wrapf(errors.ErrFieldTypeMismatch, "%s slot cannot hold %T", dt, v)
}

func toFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// ValueDataType reports the datatype of a value already in canonical form.
func ValueDataType(v any) DataType {
	switch v.(type) {
	case string:
		return DataTypeString
	case int64:
		return DataTypeInteger
	case float64:
		return DataTypeFloat
	case bool:
		return DataTypeBoolean
	case StableID:
		return DataTypeComponentRef
	case IDSet:
		return DataTypeComponentIDSet
	case IDList:
		return DataTypeComponentIDList
	}
	return DataTypeUnknown
}

// References returns the component ids a canonical value points at.
func References(v any) []StableID {
	switch ids := v.(type) {
	case StableID:
		return []StableID{ids}
	case IDSet:
		return ids
	case IDList:
		return ids
	}
	return nil
}

// IsFinite reports whether f is neither NaN nor infinite. Float slots only
// hold finite values.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
