package types

import (
	"strings"

	"github.com/teranos/termforge/errors"
)

// Kind discriminates the components stored in a knowledge base.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConcept
	KindPattern
	KindSemantic
	KindFacet
)

var kindNames = map[Kind]string{
	KindUnknown:  "unknown",
	KindConcept:  "concept",
	KindPattern:  "pattern",
	KindSemantic: "semantic",
	KindFacet:    "facet",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind parses the lowercase name produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if k != KindUnknown && strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return KindUnknown, errors.NewInvalidRequestError("unknown component kind %q", s)
}

// DataType is the declared type of one pattern field.
type DataType uint8

const (
	DataTypeUnknown DataType = iota
	DataTypeString
	DataTypeInteger
	DataTypeFloat
	DataTypeBoolean
	DataTypeComponentRef
	DataTypeComponentIDSet
	DataTypeComponentIDList
)

var dataTypeNames = map[DataType]string{
	DataTypeString:          "string",
	DataTypeInteger:         "integer",
	DataTypeFloat:           "float",
	DataTypeBoolean:         "boolean",
	DataTypeComponentRef:    "component",
	DataTypeComponentIDSet:  "component_id_set",
	DataTypeComponentIDList: "component_id_list",
}

func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether d is one of the declared datatypes.
func (d DataType) Valid() bool {
	_, ok := dataTypeNames[d]
	return ok
}

// ParseDataType parses the name produced by DataType.String.
func ParseDataType(s string) (DataType, error) {
	for d, name := range dataTypeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return d, nil
		}
	}
	return DataTypeUnknown, errors.NewInvalidRequestError("unknown datatype %q", s)
}

// FacetKind discriminates the annotations attached to entities.
type FacetKind uint8

const (
	FacetUnknown FacetKind = iota
	FacetFullyQualifiedName
	FacetSynonym
	FacetDefinition
	FacetIdentifier
	FacetStatedAxiom
	FacetStatedNavigation
	FacetDialectAcceptability
)

var facetKindNames = map[FacetKind]string{
	FacetFullyQualifiedName:   "fully_qualified_name",
	FacetSynonym:              "synonym",
	FacetDefinition:           "definition",
	FacetIdentifier:           "identifier",
	FacetStatedAxiom:          "stated_axiom",
	FacetStatedNavigation:     "stated_navigation",
	FacetDialectAcceptability: "dialect_acceptability",
}

func (f FacetKind) String() string {
	if name, ok := facetKindNames[f]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether f is one of the declared facet kinds.
func (f FacetKind) Valid() bool {
	_, ok := facetKindNames[f]
	return ok
}

// Textual reports whether the facet carries text, language and case significance.
func (f FacetKind) Textual() bool {
	return f == FacetFullyQualifiedName || f == FacetSynonym || f == FacetDefinition
}

// Name reports whether the facet is a description that may carry dialect acceptability.
func (f FacetKind) Name() bool {
	return f == FacetFullyQualifiedName || f == FacetSynonym
}

// ParseFacetKind parses the name produced by FacetKind.String.
func ParseFacetKind(s string) (FacetKind, error) {
	for f, name := range facetKindNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return f, nil
		}
	}
	return FacetUnknown, errors.NewInvalidRequestError("unknown facet kind %q", s)
}

// Acceptability of a name within a dialect.
type Acceptability uint8

const (
	AcceptabilityNone Acceptability = iota
	Preferred
	Acceptable
)

func (a Acceptability) String() string {
	switch a {
	case Preferred:
		return "preferred"
	case Acceptable:
		return "acceptable"
	default:
		return "none"
	}
}

// ParseAcceptability parses "preferred" or "acceptable".
func ParseAcceptability(s string) (Acceptability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "preferred":
		return Preferred, nil
	case "acceptable":
		return Acceptable, nil
	default:
		return AcceptabilityNone, errors.NewInvalidRequestError("unknown acceptability %q", s)
	}
}

// Status is the lifecycle status carried by a stamp.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusActive
	StatusInactive
	StatusWithdrawn
	StatusCanceled
	StatusPrimordial
)

var statusNames = map[Status]string{
	StatusActive:     "active",
	StatusInactive:   "inactive",
	StatusWithdrawn:  "withdrawn",
	StatusCanceled:   "canceled",
	StatusPrimordial: "primordial",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus parses the name produced by Status.String.
func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return st, nil
		}
	}
	return StatusUnknown, errors.NewInvalidRequestError("unknown status %q", s)
}
