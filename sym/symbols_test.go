package sym

import "testing"

func TestCommandToSymbol(t *testing.T) {
	cases := map[string]string{
		"am":      AM,
		"compose": Compose,
		"commit":  Commit,
		"export":  Export,
		"import":  Import,
	}
	for cmd, want := range cases {
		if got := CommandToSymbol[cmd]; got != want {
			t.Errorf("CommandToSymbol[%q] = %q, want %q", cmd, got, want)
		}
	}
	if _, ok := CommandToSymbol[""]; ok {
		t.Error("system symbols must not have a command entry")
	}
}

func TestDescribe(t *testing.T) {
	if Describe(DB) == "" {
		t.Error("DB glyph should be described")
	}
	if Describe("?") != "" {
		t.Error("unknown glyph should have empty description")
	}
}
