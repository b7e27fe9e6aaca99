// Package am ("I am") holds termforge's configuration: where the store lives,
// how exports are written, and the stamp and facet defaults the composer
// applies when a session or attacher leaves them unset.
//
// Configuration is read with viper from TOML files, lowest precedence first:
//
//	/etc/termforge/am.toml
//	~/.termforge/am.toml
//	am.toml in the working directory or the nearest parent
//	TERMFORGE_* environment variables (TERMFORGE_STORE_DATA_DIR, ...)
//
// Vocabulary-valued keys accept either a UUID or a term name from package
// vocab, e.g. language = "english".
package am

import (
	"time"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/compose"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/kb/vocab"
)

// Config represents the termforge configuration
type Config struct {
	Store  StoreConfig  `mapstructure:"store" toml:"store"`
	Export ExportConfig `mapstructure:"export" toml:"export"`
	Stamp  StampConfig  `mapstructure:"stamp" toml:"stamp"`
	Facets FacetConfig  `mapstructure:"facets" toml:"facets"`
	Log    LogConfig    `mapstructure:"log" toml:"log"`
}

// StoreConfig configures the SQLite knowledge base
type StoreConfig struct {
	DataDir   string `mapstructure:"data_dir" toml:"data_dir"`
	FileName  string `mapstructure:"file_name" toml:"file_name"`
	LoadPhase bool   `mapstructure:"load_phase" toml:"load_phase"` // Bracket bulk composition with BeginLoadPhase/EndLoadPhase
}

// ExportConfig configures artifact writing
type ExportConfig struct {
	ProgressIntervalMS int    `mapstructure:"progress_interval_ms" toml:"progress_interval_ms"` // Minimum gap between progress lines (0 = every entity)
	TempPrefix         string `mapstructure:"temp_prefix" toml:"temp_prefix"`
	Generator          string `mapstructure:"generator" toml:"generator"` // Recorded in the artifact manifest
}

// StampConfig holds the defaults applied to session stamps
type StampConfig struct {
	Status string `mapstructure:"status" toml:"status"` // active, inactive, withdrawn, canceled, primordial
	Author string `mapstructure:"author" toml:"author"`
	Module string `mapstructure:"module" toml:"module"`
	Path   string `mapstructure:"path" toml:"path"`
}

// FacetConfig holds the defaults applied to text and identifier facets
type FacetConfig struct {
	Language         string `mapstructure:"language" toml:"language"`
	CaseSignificance string `mapstructure:"case_significance" toml:"case_significance"`
	IdentifierSource string `mapstructure:"identifier_source" toml:"identifier_source"`
	Dialect          string `mapstructure:"dialect" toml:"dialect"` // Dialect in which starter names are preferred (empty = none)
}

// LogConfig configures logging
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity"` // Added to -v flags
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// ProgressInterval returns the export progress interval as a duration
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Export.ProgressIntervalMS) * time.Millisecond
}

// StampDefaults resolves the stamp section. Time is left zero; the composer
// fills it when a session opens.
func (c *Config) StampDefaults() (types.Stamp, error) {
	var s types.Stamp
	var err error
	if s.Status, err = types.ParseStatus(c.Stamp.Status); err != nil {
		return s, errors.Wrap(err, "stamp.status")
	}
	if s.Author, err = vocab.Resolve(vocab.Authors, c.Stamp.Author); err != nil {
		return s, errors.Wrap(err, "stamp.author")
	}
	if s.Module, err = vocab.Resolve(vocab.Modules, c.Stamp.Module); err != nil {
		return s, errors.Wrap(err, "stamp.module")
	}
	if s.Path, err = vocab.Resolve(vocab.Paths, c.Stamp.Path); err != nil {
		return s, errors.Wrap(err, "stamp.path")
	}
	return s, nil
}

// FacetDefaults resolves the facets section for the composer
func (c *Config) FacetDefaults() (compose.Defaults, error) {
	var d compose.Defaults
	var err error
	if d.Language, err = vocab.Resolve(vocab.Languages, c.Facets.Language); err != nil {
		return d, errors.Wrap(err, "facets.language")
	}
	if d.CaseSignificance, err = vocab.Resolve(vocab.CaseSignificance, c.Facets.CaseSignificance); err != nil {
		return d, errors.Wrap(err, "facets.case_significance")
	}
	if d.IdentifierSource, err = vocab.Resolve(vocab.IdentifierSource, c.Facets.IdentifierSource); err != nil {
		return d, errors.Wrap(err, "facets.identifier_source")
	}
	return d, nil
}

// DefaultDialect resolves facets.dialect. The zero id means no dialect.
func (c *Config) DefaultDialect() (types.StableID, error) {
	if c.Facets.Dialect == "" {
		return types.StableID{}, nil
	}
	id, err := vocab.Resolve(vocab.Dialects, c.Facets.Dialect)
	return id, errors.Wrap(err, "facets.dialect")
}
