package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/kb/vocab"
)

// isolate points HOME and the working directory at an empty temp dir so no
// real user or project config leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	Reset()
	t.Cleanup(Reset)
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultDataDir, cfg.Store.DataDir)
	assert.Equal(t, DefaultFileName, cfg.Store.FileName)
	assert.True(t, cfg.Store.LoadPhase)
	assert.Equal(t, 250*time.Millisecond, cfg.ProgressInterval())
	require.NoError(t, cfg.Validate())

	stamp, err := cfg.StampDefaults()
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, stamp.Status)
	assert.Equal(t, vocab.UserAuthor, stamp.Author)
	assert.Equal(t, vocab.CoreModule, stamp.Module)
	assert.Equal(t, vocab.DevelopmentPath, stamp.Path)

	facets, err := cfg.FacetDefaults()
	require.NoError(t, err)
	assert.Equal(t, vocab.English, facets.Language)
	assert.Equal(t, vocab.CaseInsensitive, facets.CaseSignificance)
	assert.Equal(t, vocab.UUIDSource, facets.IdentifierSource)

	dialect, err := cfg.DefaultDialect()
	require.NoError(t, err)
	assert.Equal(t, vocab.USEnglish, dialect)
}

func TestDefaultsMatchSetDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "termforge", cfg.GetGenerator())
	assert.Equal(t, DefaultTempPrefix, cfg.GetTempPrefix())
}

func TestGettersFallBack(t *testing.T) {
	var cfg Config
	assert.Equal(t, DefaultDataDir, cfg.GetDataDir())
	assert.Equal(t, DefaultFileName, cfg.GetFileName())
	assert.Equal(t, DefaultTempPrefix, cfg.GetTempPrefix())
	assert.Equal(t, DefaultGenerator, cfg.GetGenerator())

	dialect, err := cfg.DefaultDialect()
	require.NoError(t, err)
	assert.Equal(t, types.StableID{}, dialect, "empty dialect means none")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:   "uuid values are accepted",
			mutate: func(c *Config) { c.Facets.Language = vocab.French.String() },
		},
		{
			name:    "negative progress interval",
			mutate:  func(c *Config) { c.Export.ProgressIntervalMS = -1 },
			wantErr: "export.progress_interval_ms",
		},
		{
			name:    "unknown status",
			mutate:  func(c *Config) { c.Stamp.Status = "retired" },
			wantErr: "stamp.status",
		},
		{
			name:    "unknown language",
			mutate:  func(c *Config) { c.Facets.Language = "Klingon" },
			wantErr: "facets.language",
		},
		{
			name:    "module given as a path",
			mutate:  func(c *Config) { c.Stamp.Module = "Development path" },
			wantErr: "stamp.module",
		},
		{
			name:    "unknown dialect",
			mutate:  func(c *Config) { c.Facets.Dialect = "Scots" },
			wantErr: "facets.dialect",
		},
		{
			name:    "negative verbosity",
			mutate:  func(c *Config) { c.Log.Verbosity = -2 },
			wantErr: "log.verbosity",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)
	userDir := filepath.Join(dir, ".termforge")
	require.NoError(t, os.MkdirAll(userDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "am.toml"), []byte(`
[store]
data_dir = "user-data"
file_name = "user.db"

[facets]
language = "spanish"
`), 0644))

	project := filepath.Join(dir, "project", "nested")
	require.NoError(t, os.MkdirAll(project, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project", "am.toml"), []byte(`
[store]
data_dir = "project-data"
`), 0644))
	t.Chdir(project)
	t.Setenv("TERMFORGE_STORE_FILE_NAME", "env.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "project-data", cfg.Store.DataDir, "project config wins over user config")
	assert.Equal(t, "env.db", cfg.Store.FileName, "environment wins over files")
	assert.Equal(t, "spanish", cfg.Facets.Language)

	facets, err := cfg.FacetDefaults()
	require.NoError(t, err)
	assert.Equal(t, vocab.Spanish, facets.Language)

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "Load caches until Reset")

	settings, err := Introspect()
	require.NoError(t, err)
	byKey := map[string]SettingInfo{}
	for _, s := range settings {
		byKey[s.Key] = s
	}
	assert.Equal(t, SourceProject, byKey["store.data_dir"].Source)
	assert.Equal(t, SourceEnvironment, byKey["store.file_name"].Source)
	assert.Equal(t, "TERMFORGE_STORE_FILE_NAME", byKey["store.file_name"].SourcePath)
	assert.Equal(t, SourceUser, byKey["facets.language"].Source)
	assert.Equal(t, SourceDefault, byKey["export.generator"].Source)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[stamp]
author = "System"
module = "Starter data module"
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	stamp, err := cfg.StampDefaults()
	require.NoError(t, err)
	assert.Equal(t, vocab.SystemAuthor, stamp.Author)
	assert.Equal(t, vocab.StarterModule, stamp.Module)
	assert.Equal(t, vocab.DevelopmentPath, stamp.Path, "unset keys keep their defaults")

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestSaveRotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "am.toml")
	cfg := Defaults()

	for i := 0; i < 5; i++ {
		cfg.Export.ProgressIntervalMS = 100 * (i + 1)
		require.NoError(t, Save(cfg, path))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var written Config
	require.NoError(t, toml.Unmarshal(data, &written))
	assert.Equal(t, 500, written.Export.ProgressIntervalMS)

	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		assert.FileExists(t, path+suffix)
	}
	assert.NoFileExists(t, path+".back4")

	back1, err := os.ReadFile(path + ".back1")
	require.NoError(t, err)
	require.NoError(t, toml.Unmarshal(back1, &written))
	assert.Equal(t, 400, written.Export.ProgressIntervalMS)

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	cfg := Defaults()
	cfg.Stamp.Status = "bogus"
	require.Error(t, Save(cfg, path))
	assert.NoFileExists(t, path)
}
