// Package starter composes the data every new knowledge base begins with:
// the vocabulary hierarchy from package vocab and a small set of sample
// records exercising every pattern datatype.
package starter

import (
	"context"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/compose"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/kb/vocab"
)

// Sample records.
var (
	SampleRoot      = types.DeriveID("starter", "Sample data")
	ScenarioConcept = types.MustParseID("ad6f4fdd-fee8-45db-a207-111dc4c939a9")
	TestPattern     = types.DeriveID("starter", "pattern", "Primitive datatypes")
)

const (
	ScenarioText    = "A test pattern for primitive data types"
	TestPatternText = "Primitive datatypes pattern"
)

// PrimitiveFields is the schema of TestPattern: one field per primitive
// datatype, in the order String, Integer, Float, Boolean.
func PrimitiveFields() []types.FieldDefinition {
	return []types.FieldDefinition{
		{Meaning: vocab.StringField, Purpose: vocab.TestPurpose, DataType: types.DataTypeString},
		{Meaning: vocab.IntegerField, Purpose: vocab.TestPurpose, DataType: types.DataTypeInteger},
		{Meaning: vocab.FloatField, Purpose: vocab.TestPurpose, DataType: types.DataTypeFloat},
		{Meaning: vocab.BooleanField, Purpose: vocab.TestPurpose, DataType: types.DataTypeBoolean},
	}
}

// Options tune what the starter data looks like.
type Options struct {
	// Dialect, when set, marks every starter name preferred in it.
	Dialect types.StableID
	// SkipSamples composes the vocabulary only.
	SkipSamples bool
}

func name(id types.StableID, text string, opts Options) compose.TextAttacher {
	n := compose.Name(id, text)
	if opts.Dialect != (types.StableID{}) {
		n = n.Dialect(opts.Dialect, types.Preferred)
	}
	return n
}

// Vocabulary stages every vocabulary term as a concept with its fully
// qualified name and a stated axiom to its parent.
func Vocabulary(a *compose.Assembler, opts Options) error {
	for _, term := range vocab.Terms() {
		if _, err := a.Concept(term.ID, term.Name); err != nil {
			return errors.Wrapf(err, "vocabulary term %q", term.Name)
		}
		attachers := []compose.Attacher{name(term.ID, term.Name, opts)}
		if term.Parent != (types.StableID{}) {
			attachers = append(attachers, compose.Axiom(term.ID, term.Parent))
		}
		if _, err := a.Attach(attachers...); err != nil {
			return errors.Wrapf(err, "vocabulary term %q", term.Name)
		}
	}
	return nil
}

// Samples stages the sample concept hierarchy, the primitive datatypes
// pattern and one semantic instantiating it. It needs the vocabulary either
// committed or staged earlier in the same session.
func Samples(a *compose.Assembler, opts Options) error {
	if _, err := a.Concept(SampleRoot, "Sample data"); err != nil {
		return err
	}
	if _, err := a.Concept(ScenarioConcept, ScenarioText); err != nil {
		return err
	}
	pattern, err := a.Pattern(TestPattern, vocab.TestMeaning, vocab.TestPurpose, PrimitiveFields()...)
	if err != nil {
		return err
	}
	if _, err := a.Semantic(pattern, ScenarioConcept, "This is a test String", 1, 0.5, true); err != nil {
		return err
	}
	_, err = a.Attach(
		name(SampleRoot, "Sample data", opts),
		compose.Axiom(SampleRoot, vocab.Root),
		name(ScenarioConcept, ScenarioText, opts),
		compose.Identifier(ScenarioConcept, vocab.UUIDSource, ScenarioConcept.String()),
		compose.Axiom(ScenarioConcept, SampleRoot),
		name(TestPattern, TestPatternText, opts),
		compose.Definition(TestPattern, "Exercises the string, integer, float and boolean field datatypes"),
	)
	return err
}

// Compose stages the vocabulary and, unless skipped, the samples.
func Compose(a *compose.Assembler, opts Options) error {
	if err := Vocabulary(a, opts); err != nil {
		return err
	}
	if opts.SkipSamples {
		return nil
	}
	return Samples(a, opts)
}

// Load composes the starter data in one session and commits it.
func Load(ctx context.Context, c *compose.Composer, stamp types.Stamp, opts Options) (compose.Attachment, error) {
	att, err := c.Run(ctx, stamp, func(a *compose.Assembler) error {
		return Compose(a, opts)
	})
	return att, errors.Wrap(err, "load starter data")
}
