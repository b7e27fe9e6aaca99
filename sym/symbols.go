// Package sym defines canonical glyphs for termforge segments and system markers.
// These glyphs are stable across CLI output and structured logs.
package sym

// Segment glyphs: one per stage of the compose → commit → export flow.
const (
	AM      = "≡" // am — configuration and system settings
	Compose = "⊕" // compose — builders and facet attachers feeding a session
	Commit  = "⊨" // commit — a session made durable
	Export  = "⟶" // export — serialize committed snapshot to an artifact
	Import  = "⨳" // import — read an artifact back
)

// System infrastructure symbols.
const (
	Pulse = "꩜" // async jobs (export)
	DB    = "⊔" // database/storage layer
)

// entry binds a glyph to its command and description.
type entry struct {
	glyph       string
	command     string
	description string
}

var registry = []entry{
	{AM, "am", "Configuration and system settings"},
	{Compose, "compose", "Describe concepts, patterns, semantics and their facets"},
	{Commit, "commit", "Persist a session atomically"},
	{Export, "export", "Write the committed snapshot to a binary artifact"},
	{Import, "import", "Read an artifact back into a store"},
	{Pulse, "", "Async jobs"},
	{DB, "", "Database/storage layer"},
}

// CommandToSymbol maps text commands to their canonical glyph strings.
var CommandToSymbol = func() map[string]string {
	m := make(map[string]string)
	for _, e := range registry {
		if e.command != "" {
			m[e.command] = e.glyph
		}
	}
	return m
}()

// Describe returns the description of a glyph, or "" if unknown.
func Describe(glyph string) string {
	for _, e := range registry {
		if e.glyph == glyph {
			return e.description
		}
	}
	return ""
}
