package am

import "github.com/teranos/termforge/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Export.ProgressIntervalMS < 0 {
		return errors.Newf("export.progress_interval_ms must be >= 0, got %d", c.Export.ProgressIntervalMS)
	}
	if _, err := c.StampDefaults(); err != nil {
		return errors.WithHint(err, "use a UUID or a vocabulary term name")
	}
	if _, err := c.FacetDefaults(); err != nil {
		return errors.WithHint(err, "use a UUID or a vocabulary term name")
	}
	if _, err := c.DefaultDialect(); err != nil {
		return errors.WithHint(err, "use a UUID, a dialect name, or leave empty")
	}
	if c.Log.Verbosity < 0 {
		return errors.Newf("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}
	return nil
}
