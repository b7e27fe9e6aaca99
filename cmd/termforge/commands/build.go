package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/termforge/am"
	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/compose"
	"github.com/teranos/termforge/kb/export"
	"github.com/teranos/termforge/kb/manifest"
	"github.com/teranos/termforge/kb/starter"
	"github.com/teranos/termforge/kb/storage"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/logger"
	"github.com/teranos/termforge/pulse"
	"github.com/teranos/termforge/sym"
	"github.com/teranos/termforge/version"
)

// AddBuildFlags registers the flags of the default compose-commit-export run.
func AddBuildFlags(cmd *cobra.Command) {
	cmd.Flags().String("manifest", "", "Compose the records of a YAML manifest instead of the starter data")
	cmd.Flags().Bool("vocabulary-only", false, "Compose the starter vocabulary without the sample records")
}

// BuildOptions configures one run of Build.
type BuildOptions struct {
	DataDir        string
	ExportPath     string
	ManifestPath   string
	VocabularyOnly bool
	Config         *am.Config
	Log            *zap.SugaredLogger
	Emitter        pulse.ProgressEmitter
}

// BuildSummary reports what a run composed and exported.
type BuildSummary struct {
	Session    string         `json:"session"`
	Stamp      string         `json:"stamp"`
	Composed   int            `json:"composed"`
	Counts     map[string]int `json:"counts"`
	Export     string         `json:"export"`
	JobID      string         `json:"job_id"`
	DurationMS int64          `json:"duration_ms"`
}

// RunBuild is the root command: compose, commit, export.
func RunBuild(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	manifestPath, _ := cmd.Flags().GetString("manifest")
	vocabularyOnly, _ := cmd.Flags().GetBool("vocabulary-only")
	asJSON := jsonOutput(cmd, cfg)

	var emitter pulse.ProgressEmitter = pulse.NewLogEmitter(logger.ComponentLogger("progress"))
	if !asJSON {
		emitter = pulse.Multi{pulse.NewCLIEmitter(verbosity(cmd, cfg)), emitter}
	}

	summary, err := Build(logger.WithComponent(cmd.Context(), "build"), BuildOptions{
		DataDir:        args[0],
		ExportPath:     args[1],
		ManifestPath:   manifestPath,
		VocabularyOnly: vocabularyOnly,
		Config:         cfg,
		Log:            logger.Logger,
		Emitter:        emitter,
	})
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), summary, asJSON)
}

// Build composes the starter data or a manifest in one session, commits it
// to the store in opts.DataDir and exports the committed snapshot.
func Build(ctx context.Context, opts BuildOptions) (summary *BuildSummary, err error) {
	start := time.Now()
	cfg := opts.Config
	if cfg == nil {
		cfg = am.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	log := logger.OrNop(opts.Log)

	stamp, err := cfg.StampDefaults()
	if err != nil {
		return nil, err
	}
	facets, err := cfg.FacetDefaults()
	if err != nil {
		return nil, err
	}
	dialect, err := cfg.DefaultDialect()
	if err != nil {
		return nil, err
	}
	starterOpts := starter.Options{Dialect: dialect, SkipSamples: opts.VocabularyOnly}

	var m *manifest.Manifest
	if opts.ManifestPath != "" {
		if m, err = manifest.Load(opts.ManifestPath); err != nil {
			if errors.IsNotFoundError(err) {
				err = errors.WithHint(err, "check the --manifest path")
			}
			return nil, err
		}
		if stamp, err = m.ApplyStamp(stamp); err != nil {
			return nil, errors.Wrapf(err, "manifest %s", opts.ManifestPath)
		}
	}

	store, err := storage.Open(ctx, storage.Config{DataDir: opts.DataDir, FileName: cfg.GetFileName()}, log.Named("store"))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = errors.CombineErrors(err, cerr)
		}
	}()

	c, err := compose.New(ctx, store,
		compose.WithLogger(log.Named("compose")),
		compose.WithDefaults(facets),
		compose.WithStampDefaults(stamp),
	)
	if err != nil {
		return nil, err
	}

	summary = &BuildSummary{Export: opts.ExportPath, Counts: map[string]int{}}
	if err := composeAndCommit(ctx, c, cfg, stamp, m, starterOpts, summary, log); err != nil {
		return nil, err
	}

	ctx = logger.WithSessionID(ctx, summary.Session)

	counts, err := store.CountComponents(ctx)
	if err != nil {
		return nil, err
	}
	for kind, n := range counts {
		summary.Counts[kind.String()] = n
	}

	exporter := export.New(store,
		export.WithLogger(log.Named("export")),
		export.WithEmitter(emitterOrNop(opts.Emitter)),
		export.WithGenerator(version.Get().Generator()),
		export.WithTempPrefix(cfg.GetTempPrefix()),
		export.WithProgressInterval(cfg.ProgressInterval()),
	)
	job := exporter.Export(ctx, opts.ExportPath)
	summary.JobID = job.ID
	ctx = logger.WithJobID(ctx, job.ID)
	// Wait without ctx so an interrupted export finishes cleaning up.
	if err := job.Wait(context.Background()); err != nil {
		return nil, errors.Wrapf(err, "export to %s", opts.ExportPath)
	}
	summary.DurationMS = time.Since(start).Milliseconds()
	log.Infow(sym.Export+" Build complete", append(logger.FieldsFromContext(ctx),
		logger.FieldPath, opts.ExportPath,
		logger.FieldDurationMS, summary.DurationMS,
	)...)
	return summary, nil
}

func composeAndCommit(ctx context.Context, c *compose.Composer, cfg *am.Config, stamp types.Stamp, m *manifest.Manifest,
	opts starter.Options, summary *BuildSummary, log *zap.SugaredLogger) (err error) {
	if cfg.Store.LoadPhase {
		if err := c.BeginLoadPhase(ctx); err != nil {
			return err
		}
		defer func() {
			// Indexes are rebuilt even when the session failed or ctx was cancelled.
			if endErr := c.EndLoadPhase(context.WithoutCancel(ctx)); endErr != nil {
				err = errors.CombineErrors(err, endErr)
			}
		}()
	}

	s, err := c.Open(stamp)
	if err != nil {
		return err
	}
	summary.Session = s.ID()
	summary.Stamp = s.Stamp().ID.String()

	att, err := s.Compose(func(a *compose.Assembler) error {
		if m != nil {
			return m.Compose(a, opts)
		}
		return starter.Compose(a, opts)
	})
	if err != nil {
		err = errors.Wrapf(err, "%s compose", sym.Compose)
		if errors.IsContractViolation(err) {
			err = errors.WithHint(err, "fix the offending record and rebuild; nothing was committed")
		}
		return err
	}
	summary.Composed = len(att.IDs)

	if err := c.CommitSession(ctx, s); err != nil {
		return err
	}
	log.Infow(sym.Commit+" Session committed",
		logger.FieldSessionID, s.ID(),
		logger.FieldStamp, summary.Stamp,
		logger.FieldCount, summary.Composed,
	)
	return nil
}

func emitterOrNop(e pulse.ProgressEmitter) pulse.ProgressEmitter {
	if e == nil {
		return pulse.NopEmitter{}
	}
	return e
}

func printSummary(w io.Writer, s *BuildSummary, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal summary")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	rows := pterm.TableData{{"Kind", "Components"}}
	kinds := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		rows = append(rows, []string{k, fmt.Sprint(s.Counts[k])})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render summary")
	}
	fmt.Fprintf(w, "%s session %s composed %d records (stamp %s)\n", sym.Commit, s.Session, s.Composed, s.Stamp)
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "%s exported to %s in %dms\n", sym.Export, s.Export, s.DurationMS)
	return nil
}
