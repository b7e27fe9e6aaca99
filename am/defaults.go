package am

import (
	"github.com/spf13/viper"
)

// Default values shared by SetDefaults and the Config getters
const (
	DefaultDataDir            = "termforge-data"
	DefaultFileName           = "termforge.db"
	DefaultProgressIntervalMS = 250
	DefaultTempPrefix         = ".termforge-export-"
	DefaultGenerator          = "termforge"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("store.data_dir", DefaultDataDir)
	v.SetDefault("store.file_name", DefaultFileName)
	v.SetDefault("store.load_phase", true)

	// Export defaults
	v.SetDefault("export.progress_interval_ms", DefaultProgressIntervalMS)
	v.SetDefault("export.temp_prefix", DefaultTempPrefix)
	v.SetDefault("export.generator", DefaultGenerator)

	// Stamp defaults
	v.SetDefault("stamp.status", "active")
	v.SetDefault("stamp.author", "User")
	v.SetDefault("stamp.module", "Core module")
	v.SetDefault("stamp.path", "Development path")

	// Facet defaults
	v.SetDefault("facets.language", "English")
	v.SetDefault("facets.case_significance", "Not case sensitive")
	v.SetDefault("facets.identifier_source", "UUID")
	v.SetDefault("facets.dialect", "US English")

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}

// BindEnvVars explicitly binds the keys most often overridden per run
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("store.data_dir", "TERMFORGE_STORE_DATA_DIR")
	v.BindEnv("store.file_name", "TERMFORGE_STORE_FILE_NAME")
	v.BindEnv("log.json", "TERMFORGE_LOG_JSON")
}

// GetDataDir returns the configured data directory
func (c *Config) GetDataDir() string {
	if c.Store.DataDir == "" {
		return DefaultDataDir
	}
	return c.Store.DataDir
}

// GetFileName returns the configured database file name
func (c *Config) GetFileName() string {
	if c.Store.FileName == "" {
		return DefaultFileName
	}
	return c.Store.FileName
}

// GetTempPrefix returns the export temp file prefix
func (c *Config) GetTempPrefix() string {
	if c.Export.TempPrefix == "" {
		return DefaultTempPrefix
	}
	return c.Export.TempPrefix
}

// GetGenerator returns the generator name written to manifests
func (c *Config) GetGenerator() string {
	if c.Export.Generator == "" {
		return DefaultGenerator
	}
	return c.Export.Generator
}
