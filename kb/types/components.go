// Package types defines the knowledge base records: entities (concepts,
// patterns, semantics), the facets that annotate them and the stamps that
// version them.
package types

import "time"

// Component is implemented by every record that can be committed: the three
// entity kinds and facets.
type Component interface {
	ComponentID() StableID
	ComponentKind() Kind
}

// Concept is a graph node for a classifiable idea. Its is-a edges are carried
// by StatedAxiom and StatedNavigation facets.
type Concept struct {
	ID          StableID   `json:"id"`
	Aliases     []StableID `json:"aliases,omitempty"`
	Description string     `json:"description"`
}

func (c Concept) ComponentID() StableID { return c.ID }
func (c Concept) ComponentKind() Kind   { return KindConcept }

// FieldDefinition declares one slot of a pattern's schema.
type FieldDefinition struct {
	Meaning  StableID `json:"meaning"`
	Purpose  StableID `json:"purpose"`
	DataType DataType `json:"datatype"`
}

// Pattern declares a reusable, ordered schema that semantics instantiate.
type Pattern struct {
	ID      StableID          `json:"id"`
	Aliases []StableID        `json:"aliases,omitempty"`
	Meaning StableID          `json:"meaning"`
	Purpose StableID          `json:"purpose"`
	Fields  []FieldDefinition `json:"fields"`
}

func (p Pattern) ComponentID() StableID { return p.ID }
func (p Pattern) ComponentKind() Kind   { return KindPattern }

// Semantic is an instance of a pattern attached to a referenced component.
// Values holds normalized field values (see NormalizeValue), one per pattern
// field, in field order.
type Semantic struct {
	ID         StableID   `json:"id"`
	Aliases    []StableID `json:"aliases,omitempty"`
	Pattern    StableID   `json:"pattern"`
	Referenced StableID   `json:"referenced"`
	Values     []any      `json:"values"`
}

func (s Semantic) ComponentID() StableID { return s.ID }
func (s Semantic) ComponentKind() Kind   { return KindSemantic }

// Facet is a versioned annotation on an entity. Which fields are populated
// depends on Kind:
//
//	FullyQualifiedName, Synonym, Definition: Text, Language, CaseSignificance
//	Identifier:                              Source, Value
//	StatedAxiom, StatedNavigation:           Targets
//	DialectAcceptability:                    Dialect, Acceptability (Referenced is a name facet)
type Facet struct {
	ID               StableID      `json:"id"`
	Kind             FacetKind     `json:"kind"`
	Referenced       StableID      `json:"referenced"`
	Text             string        `json:"text,omitempty"`
	Language         StableID      `json:"language,omitempty"`
	CaseSignificance StableID      `json:"case_significance,omitempty"`
	Source           StableID      `json:"source,omitempty"`
	Value            string        `json:"value,omitempty"`
	Targets          []StableID    `json:"targets,omitempty"`
	Dialect          StableID      `json:"dialect,omitempty"`
	Acceptability    Acceptability `json:"acceptability,omitempty"`
}

func (f Facet) ComponentID() StableID { return f.ID }
func (f Facet) ComponentKind() Kind   { return KindFacet }

// Stamp is the version metadata shared by every record committed in one
// session.
type Stamp struct {
	ID     StableID  `json:"id"`
	Status Status    `json:"status"`
	Time   time.Time `json:"time"`
	Author StableID  `json:"author"`
	Module StableID  `json:"module"`
	Path   StableID  `json:"path"`
}

// Normalize returns the stamp with its time truncated to UTC milliseconds
// (the stored precision) and its ID derived from its content.
func (s Stamp) Normalize() Stamp {
	s.Time = s.Time.UTC().Truncate(time.Millisecond)
	s.ID = DeriveID("stamp",
		s.Status.String(),
		s.Time.Format(time.RFC3339Nano),
		s.Author.String(),
		s.Module.String(),
		s.Path.String(),
	)
	return s
}
