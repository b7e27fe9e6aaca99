// Package commands implements the termforge CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/termforge/am"
	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/logger"
)

// InitLogging initialises the global logger from -v, --json and the log
// section of the configuration.
func InitLogging(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	v := verbosity(cmd, cfg)
	if err := logger.Initialize(jsonOutput(cmd, cfg), v); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	logger.Logger.Debugw("Logger ready", "level", logger.LevelName(v), "command", cmd.Name())
	return nil
}

func verbosity(cmd *cobra.Command, cfg *am.Config) int {
	v, _ := cmd.Flags().GetCount("verbose")
	return v + cfg.Log.Verbosity
}

func jsonOutput(cmd *cobra.Command, cfg *am.Config) bool {
	j, _ := cmd.Flags().GetBool("json")
	return j || cfg.Log.JSON
}
