package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/spf13/cobra"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/export"
	"github.com/teranos/termforge/kb/ident"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/sym"
)

// InspectCmd prints the manifest of an artifact and optionally its is-a tree.
var InspectCmd = &cobra.Command{
	Use:   "inspect <artifact>",
	Short: sym.Import + " Verify an exported artifact and print its contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, _ := cmd.Flags().GetBool("tree")
		asJSON, _ := cmd.Flags().GetBool("json")
		return Inspect(cmd.Context(), cmd.OutOrStdout(), args[0], tree, asJSON)
	},
}

func init() {
	InspectCmd.Flags().Bool("tree", false, "Print the stated is-a hierarchy of concepts")
}

// InspectReport is the JSON form of inspect output.
type InspectReport struct {
	Path          string         `json:"path"`
	FormatVersion string         `json:"format_version"`
	Generator     string         `json:"generator"`
	CreatedAt     string         `json:"created_at"`
	Counts        map[string]int `json:"counts"`
	Stamps        int            `json:"stamps"`
	Versions      int            `json:"versions"`
	Digest        string         `json:"digest"`
	Roots         []string       `json:"roots,omitempty"`
}

// Inspect imports the artifact at path, which verifies its format, digest
// and counts, and writes a description of it to w.
func Inspect(ctx context.Context, w io.Writer, path string, tree, asJSON bool) error {
	a, err := export.Import(ctx, path)
	if errors.IsNotFoundError(err) {
		return errors.WithHint(err, "pass the path of an exported artifact")
	}
	if err != nil {
		return err
	}
	m := a.Manifest
	report := InspectReport{
		Path:          path,
		FormatVersion: m.FormatVersion,
		Generator:     m.Generator,
		CreatedAt:     m.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Counts:        map[string]int{},
		Stamps:        m.Stamps,
		Versions:      m.Versions,
		Digest:        fmt.Sprintf("%x", m.Digest),
	}
	for k, n := range m.Counts {
		report.Counts[k.String()] = n
	}

	var items pterm.LeveledList
	if tree {
		g, err := a.Graph(ident.NewResolver())
		if err != nil {
			return err
		}
		items = hierarchy(a, g)
		for _, it := range items {
			if it.Level == 0 {
				report.Roots = append(report.Roots, it.Text)
			}
		}
	}

	if asJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal report")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	rows := pterm.TableData{
		{"Format", report.FormatVersion},
		{"Generator", report.Generator},
		{"Created", report.CreatedAt},
		{"Stamps", fmt.Sprint(report.Stamps)},
		{"Versions", fmt.Sprint(report.Versions)},
		{"Digest", report.Digest},
	}
	for _, k := range []types.Kind{types.KindConcept, types.KindPattern, types.KindSemantic, types.KindFacet} {
		rows = append(rows, []string{k.String() + "s", fmt.Sprint(m.Counts[k])})
	}
	table, err := pterm.DefaultTable.WithData(rows).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render manifest")
	}
	fmt.Fprintf(w, "%s %s\n%s\n", sym.Import, path, table)

	if len(items) > 0 {
		out, err := pterm.DefaultTree.WithRoot(putils.TreeFromLeveledList(items)).Srender()
		if err != nil {
			return errors.Wrap(err, "failed to render hierarchy")
		}
		fmt.Fprintln(w, out)
	}
	return nil
}

// hierarchy flattens the stated is-a graph into a leveled list, labelling
// each concept with its latest fully qualified name.
func hierarchy(a *export.Artifact, g *export.Graph) pterm.LeveledList {
	labels := map[types.StableID]string{}
	for _, c := range a.Chronologies {
		if c.Kind != types.KindFacet {
			continue
		}
		latest, ok := c.Latest()
		if !ok {
			continue
		}
		if f, ok := latest.Component.(types.Facet); ok && f.Kind == types.FacetFullyQualifiedName {
			labels[f.Referenced] = f.Text
		}
	}

	byHandle := map[types.Handle]export.Node{}
	for _, n := range g.Nodes {
		byHandle[n.Handle] = n
	}
	label := func(h types.Handle) string {
		n := byHandle[h]
		if l, ok := labels[n.ID]; ok {
			return l
		}
		return n.ID.String()
	}
	sorted := func(hs []types.Handle) []types.Handle {
		sort.Slice(hs, func(i, j int) bool { return label(hs[i]) < label(hs[j]) })
		return hs
	}

	var roots []types.Handle
	for _, n := range g.Nodes {
		if n.Kind == types.KindConcept && len(g.Parents[n.Handle]) == 0 {
			roots = append(roots, n.Handle)
		}
	}

	var out pterm.LeveledList
	onPath := map[types.Handle]bool{}
	var walk func(h types.Handle, level int)
	walk = func(h types.Handle, level int) {
		out = append(out, pterm.LeveledListItem{Level: level, Text: label(h)})
		if onPath[h] {
			return
		}
		onPath[h] = true
		for _, child := range sorted(g.Children(h)) {
			walk(child, level+1)
		}
		delete(onPath, h)
	}
	for _, r := range sorted(roots) {
		walk(r, 0)
	}
	return out
}
