package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/termforge/cmd/termforge/commands"
	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/logger"
)

var rootCmd = &cobra.Command{
	Use:   "termforge <data-dir> <export-file>",
	Short: "termforge - compose, commit and export a terminology knowledge base",
	Long: `termforge - terminology authoring and export.

Composes the starter vocabulary and sample records (or the records of a
YAML manifest) in one session, commits it to the knowledge base in
<data-dir>, and exports the committed snapshot to <export-file>.

Available commands:
  am      - Show and initialise configuration ("I am")
  inspect - Describe an exported artifact
  import  - Restore an artifact into a knowledge base
  version - Show build information

Examples:
  termforge ./kb kb.tfx                        # Starter data
  termforge ./kb kb.tfx --manifest terms.yaml  # Records from a manifest
  termforge inspect kb.tfx                     # Manifest and counts
  termforge import kb.tfx ./restored           # Load an artifact`,
	Args:              cobra.ExactArgs(2),
	SilenceUsage:      true,
	PersistentPreRunE: commands.InitLogging,
	RunE:              commands.RunBuild,
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Log and report as JSON")
	commands.AddBuildFlags(rootCmd)

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.InspectCmd)
	rootCmd.AddCommand(commands.ImportCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}
