// Package vocab holds the well-known concepts every knowledge base starts
// from: languages, dialects, case significance, identifier sources,
// datatypes, paths, modules and authors.
//
// Ids are derived from the term's category and name, so they are identical
// in every process and every store.
package vocab

import (
	"strings"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
)

// Term is one vocabulary concept and its place in the hierarchy.
type Term struct {
	ID     types.StableID
	Name   string
	Parent types.StableID // zero for the root
}

func derive(category, name string) types.StableID {
	return types.DeriveID("vocab", category, name)
}

// Root of the vocabulary hierarchy.
var Root = derive("root", "Termforge root")

// Categories directly under Root.
var (
	Languages        = derive("category", "Language")
	Dialects         = derive("category", "Dialect")
	CaseSignificance = derive("category", "Case significance")
	IdentifierSource = derive("category", "Identifier source")
	DataTypes        = derive("category", "Datatype")
	Paths            = derive("category", "Path")
	Modules          = derive("category", "Module")
	Authors          = derive("category", "Author")
	Meanings         = derive("category", "Meaning")
	Purposes         = derive("category", "Purpose")
)

// Languages.
var (
	English = derive("language", "English")
	Spanish = derive("language", "Spanish")
	French  = derive("language", "French")
)

// Dialects.
var (
	USEnglish = derive("dialect", "US English")
	GBEnglish = derive("dialect", "GB English")
)

// Case significance.
var (
	CaseInsensitive           = derive("case", "Not case sensitive")
	CaseSensitive             = derive("case", "Case sensitive")
	InitialCharacterSensitive = derive("case", "Initial character case sensitive")
)

// Identifier sources.
var (
	UUIDSource = derive("identifier", "UUID")
)

// Paths, modules and authors.
var (
	DevelopmentPath  = derive("path", "Development path")
	MasterPath       = derive("path", "Master path")
	PrimordialModule = derive("module", "Primordial module")
	CoreModule       = derive("module", "Core module")
	StarterModule    = derive("module", "Starter data module")
	SystemAuthor     = derive("author", "System")
	UserAuthor       = derive("author", "User")
)

// Meanings and purposes used by the built-in patterns.
var (
	TestMeaning    = derive("meaning", "Test")
	TestPurpose    = derive("purpose", "Test")
	StringField    = derive("meaning", "String field")
	IntegerField   = derive("meaning", "Integer field")
	FloatField     = derive("meaning", "Float field")
	BooleanField   = derive("meaning", "Boolean field")
	ComponentField = derive("meaning", "Component field")
	IDSetField     = derive("meaning", "Component id set field")
	IDListField    = derive("meaning", "Component id list field")
)

var dataTypeConcepts = map[types.DataType]types.StableID{
	types.DataTypeString:          derive("datatype", "String"),
	types.DataTypeInteger:         derive("datatype", "Integer"),
	types.DataTypeFloat:           derive("datatype", "Float"),
	types.DataTypeBoolean:         derive("datatype", "Boolean"),
	types.DataTypeComponentRef:    derive("datatype", "Component"),
	types.DataTypeComponentIDSet:  derive("datatype", "Component id set"),
	types.DataTypeComponentIDList: derive("datatype", "Component id list"),
}

// DataTypeConcept returns the concept standing for dt.
func DataTypeConcept(dt types.DataType) (types.StableID, bool) {
	id, ok := dataTypeConcepts[dt]
	return id, ok
}

// DataTypeOf is the inverse of DataTypeConcept.
func DataTypeOf(id types.StableID) (types.DataType, bool) {
	for dt, c := range dataTypeConcepts {
		if c == id {
			return dt, true
		}
	}
	return types.DataTypeUnknown, false
}

// Terms returns the full hierarchy, parents before children.
func Terms() []Term {
	terms := []Term{
		{Root, "Termforge root", types.StableID{}},
		{Languages, "Language", Root},
		{Dialects, "Dialect", Root},
		{CaseSignificance, "Case significance", Root},
		{IdentifierSource, "Identifier source", Root},
		{DataTypes, "Datatype", Root},
		{Paths, "Path", Root},
		{Modules, "Module", Root},
		{Authors, "Author", Root},
		{Meanings, "Meaning", Root},
		{Purposes, "Purpose", Root},

		{English, "English", Languages},
		{Spanish, "Spanish", Languages},
		{French, "French", Languages},
		{USEnglish, "US English", Dialects},
		{GBEnglish, "GB English", Dialects},
		{CaseInsensitive, "Not case sensitive", CaseSignificance},
		{CaseSensitive, "Case sensitive", CaseSignificance},
		{InitialCharacterSensitive, "Initial character case sensitive", CaseSignificance},
		{UUIDSource, "UUID", IdentifierSource},
		{DevelopmentPath, "Development path", Paths},
		{MasterPath, "Master path", Paths},
		{PrimordialModule, "Primordial module", Modules},
		{CoreModule, "Core module", Modules},
		{StarterModule, "Starter data module", Modules},
		{SystemAuthor, "System", Authors},
		{UserAuthor, "User", Authors},
		{TestMeaning, "Test", Meanings},
		{StringField, "String field", Meanings},
		{IntegerField, "Integer field", Meanings},
		{FloatField, "Float field", Meanings},
		{BooleanField, "Boolean field", Meanings},
		{ComponentField, "Component field", Meanings},
		{IDSetField, "Component id set field", Meanings},
		{IDListField, "Component id list field", Meanings},
		{TestPurpose, "Test", Purposes},
	}
	for _, dt := range []types.DataType{
		types.DataTypeString,
		types.DataTypeInteger,
		types.DataTypeFloat,
		types.DataTypeBoolean,
		types.DataTypeComponentRef,
		types.DataTypeComponentIDSet,
		types.DataTypeComponentIDList,
	} {
		terms = append(terms, Term{dataTypeConcepts[dt], dt.String(), DataTypes})
	}
	return terms
}

// Lookup returns the term with the given id.
func Lookup(id types.StableID) (Term, bool) {
	for _, t := range Terms() {
		if t.ID == id {
			return t, true
		}
	}
	return Term{}, false
}

// Resolve accepts either a UUID or the name of a term directly under
// category ("english", "US English") and returns the term's id. Names match
// case-insensitively. A UUID is returned as is, whether or not it is a
// vocabulary term.
func Resolve(category types.StableID, s string) (types.StableID, error) {
	s = strings.TrimSpace(s)
	if id, err := types.ParseID(s); err == nil {
		return id, nil
	}
	for _, t := range Terms() {
		if t.Parent == category && strings.EqualFold(t.Name, s) {
			return t.ID, nil
		}
	}
	name := "vocabulary"
	if c, ok := Lookup(category); ok {
		name = strings.ToLower(c.Name)
	}
	return types.StableID{}, errors.NewInvalidRequestError("%q is neither a UUID nor a known %s term", s, name)
}
