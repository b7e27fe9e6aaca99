package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/termforge/am"
	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/export"
	"github.com/teranos/termforge/kb/storage"
	"github.com/teranos/termforge/logger"
	"github.com/teranos/termforge/sym"
)

// ImportCmd restores an artifact into a store.
var ImportCmd = &cobra.Command{
	Use:   "import <artifact> <data-dir>",
	Short: sym.Import + " Restore an exported artifact into a store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		n, err := ImportArtifact(cmd.Context(), args[0], storage.Config{DataDir: args[1], FileName: cfg.GetFileName()}, logger.Logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s restored %d records from %s into %s\n", sym.Import, n, args[0], args[1])
		return nil
	},
}

// ImportArtifact verifies the artifact at path and restores it into the
// SQLite store described by cfg. It returns the number of records restored.
func ImportArtifact(ctx context.Context, path string, cfg storage.Config, log *zap.SugaredLogger) (n int, err error) {
	log = logger.OrNop(log).Named("import")
	a, err := export.Import(ctx, path)
	if err != nil {
		return 0, err
	}
	store, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = errors.CombineErrors(err, cerr)
		}
	}()
	if err := export.Restore(ctx, a, store); err != nil {
		return 0, err
	}
	log.Infow("Artifact restored",
		logger.FieldPath, path,
		logger.FieldCount, len(a.Chronologies),
	)
	return len(a.Chronologies), nil
}
