package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/termforge/am"
	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage termforge configuration",
	Long: sym.AM + ` am - Manage termforge configuration ("I am")

Configuration sources (later overrides earlier):
1. Built-in defaults
2. System config (/etc/termforge/am.toml)
3. User config (~/.termforge/am.toml)
4. Project config (./am.toml, searched up from the working directory)
5. Environment variables (TERMFORGE_* prefix)

Examples:
  termforge am show                  # Show effective configuration
  termforge am show --format yaml    # In YAML
  termforge am show --sources        # Where each setting came from
  termforge am validate              # Validate configuration
  termforge am init                  # Write defaults to ~/.termforge/am.toml`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmValidate,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long:  "Write the built-in defaults to path (default ~/.termforge/am.toml). An existing file is rotated into .back1..3.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

func init() {
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().Bool("sources", false, "List every setting with the source that set it")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if sources, _ := cmd.Flags().GetBool("sources"); sources {
		settings, err := am.Introspect()
		if err != nil {
			return errors.Wrap(err, "failed to introspect config")
		}
		rows := pterm.TableData{{"Key", "Value", "Source"}}
		for _, s := range settings {
			from := string(s.Source)
			if s.SourcePath != "" {
				from += " (" + s.SourcePath + ")"
			}
			rows = append(rows, []string{s.Key, fmt.Sprint(s.Value), from})
		}
		table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
		if err != nil {
			return errors.Wrap(err, "failed to render settings")
		}
		fmt.Fprintln(w, table)
		return nil
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	format, _ := cmd.Flags().GetString("format")
	out, err := renderConfig(cfg, format)
	if err != nil {
		return err
	}
	fmt.Fprint(w, out)
	return nil
}

func renderConfig(cfg *am.Config, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to JSON")
		}
		return string(data) + "\n", nil
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to YAML")
		}
		return "# termforge configuration\n" + string(data), nil
	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to TOML")
		}
		return "# termforge configuration\n" + string(data), nil
	default:
		return "", errors.WithHint(
			errors.Newf("unsupported format: %s", format),
			"supported formats: toml, json, yaml")
	}
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(am.UserConfigDir(), "am.toml")
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		pterm.Warning.Printfln("%s exists, previous contents kept as %s.back1", path, path)
	}
	if err := am.Save(am.Defaults(), path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", sym.AM, path)
	return nil
}
