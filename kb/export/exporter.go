// Package export serializes a committed knowledge base into a portable
// artifact and reads artifacts back.
//
// An artifact is a zip container with two entries:
//
//	entities.pb  length-delimited Chronology messages, in store order
//	manifest.pb  format version, counts, creation time and the SHA-256 of entities.pb
//
// Export runs as an async.Job. It writes to a temporary file next to the
// destination and renames it into place only after the container is complete,
// so a failed or cancelled export never leaves a file at the destination.
package export

import (
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/logger"
	"github.com/teranos/termforge/pulse"
	"github.com/teranos/termforge/pulse/async"
)

const (
	// HandlerName identifies export jobs in logs and job ids.
	HandlerName = "kb.export"

	DefaultTempPrefix       = ".termforge-export-"
	DefaultProgressInterval = 250 * time.Millisecond
	DefaultGenerator        = "termforge"
)

// Exporter writes artifacts from a store.
type Exporter struct {
	store            kb.Reader
	logger           *zap.SugaredLogger
	emitter          pulse.ProgressEmitter
	hooks            []func(async.Progress)
	now              func() time.Time
	tempPrefix       string
	generator        string
	progressInterval time.Duration
}

// Option configures an Exporter.
type Option func(*Exporter)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithEmitter reports progress to em, throttled to the progress interval.
func WithEmitter(em pulse.ProgressEmitter) Option {
	return func(e *Exporter) { e.emitter = em }
}

// WithProgressHook registers fn on every job the exporter starts. Hooks run
// synchronously on the export goroutine after each entity.
func WithProgressHook(fn func(async.Progress)) Option {
	return func(e *Exporter) { e.hooks = append(e.hooks, fn) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

func WithTempPrefix(prefix string) Option {
	return func(e *Exporter) { e.tempPrefix = prefix }
}

func WithGenerator(name string) Option {
	return func(e *Exporter) { e.generator = name }
}

func WithProgressInterval(d time.Duration) Option {
	return func(e *Exporter) { e.progressInterval = d }
}

// New creates an exporter over store.
func New(store kb.Reader, opts ...Option) *Exporter {
	e := &Exporter{
		store:            store,
		now:              time.Now,
		tempPrefix:       DefaultTempPrefix,
		generator:        DefaultGenerator,
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logger.OrNop(e.logger)
	if e.emitter == nil {
		e.emitter = pulse.NopEmitter{}
	}
	return e
}

// Export starts writing the store's contents to destination and returns the
// running job. The job fails with ErrExportIO when the destination cannot be
// written and with ErrExportInterrupted when ctx or the job is cancelled.
func (e *Exporter) Export(ctx context.Context, destination string) *async.Job {
	job := async.NewJob(HandlerName, destination)
	for _, hook := range e.hooks {
		job.OnProgress(hook)
	}
	log := e.logger.With(logger.FieldJobID, job.ID, logger.FieldPath, destination)
	job.Start(ctx, func(ctx context.Context, j *async.Job) error {
		start := time.Now()
		m, err := e.write(ctx, j, destination)
		if err != nil {
			log.Warnw("Export failed", logger.FieldError, err)
			e.emitter.EmitError("export", err)
			return err
		}
		log.Infow("Export complete",
			logger.FieldCount, m.Entities(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
		e.emitter.EmitComplete(map[string]interface{}{
			"entities": m.Entities(),
			"versions": m.Versions,
			"stamps":   m.Stamps,
			"path":     destination,
		})
		return nil
	})
	return job
}

func (e *Exporter) write(ctx context.Context, j *async.Job, destination string) (m Manifest, err error) {
	counts, err := e.store.CountComponents(ctx)
	if err != nil {
		return m, interrupted(ctx, errors.Wrap(err, "count components"))
	}
	total := kb.Total(counts)
	j.SetTotal(total)
	e.emitter.EmitStage("export", "writing artifact")

	tmp, err := os.CreateTemp(filepath.Dir(destination), e.tempPrefix+"*")
	if err != nil {
		return m, errors.MarkExportIO(err, "create temporary file for %s", destination)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	m = Manifest{
		FormatVersion: FormatVersion,
		Generator:     e.generator,
		CreatedAt:     e.now().UTC().Truncate(time.Millisecond),
		Counts:        map[types.Kind]int{},
	}
	zw := zip.NewWriter(tmp)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: entitiesEntry, Method: zip.Deflate, Modified: m.CreatedAt})
	if err != nil {
		return m, errors.MarkExportIO(err, "create %s", entitiesEntry)
	}

	progress := pulse.Throttle(e.emitter, e.progressInterval)
	digest := sha256.New()
	out := io.MultiWriter(w, digest)
	stamps := make(map[types.StableID]struct{})
	var frame, rec []byte
	written := 0

	err = e.store.ForEachChronology(ctx, func(c types.Chronology) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var encErr error
		rec, encErr = EncodeChronology(rec[:0], c)
		if encErr != nil {
			return encErr
		}
		frame = protowire.AppendVarint(frame[:0], uint64(len(rec)))
		if _, werr := out.Write(frame); werr != nil {
			return errors.MarkExportIO(werr, "write %s %s", c.Kind, c.ID)
		}
		if _, werr := out.Write(rec); werr != nil {
			return errors.MarkExportIO(werr, "write %s %s", c.Kind, c.ID)
		}
		m.Counts[c.Kind]++
		m.Versions += len(c.Versions)
		for _, v := range c.Versions {
			stamps[v.Stamp.ID] = struct{}{}
		}
		written++
		j.UpdateProgress(written)
		progress.EmitProgress(written, map[string]interface{}{"total": total, "type": "entities"})
		return nil
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return m, interrupted(ctx, errors.Wrapf(err, "export stopped after %d of %d entities", written, total))
	}
	m.Stamps = len(stamps)
	m.Digest = digest.Sum(nil)

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: manifestEntry, Method: zip.Store, Modified: m.CreatedAt})
	if err != nil {
		return m, errors.MarkExportIO(err, "create %s", manifestEntry)
	}
	if _, err = mw.Write(encodeManifest(m)); err != nil {
		return m, errors.MarkExportIO(err, "write %s", manifestEntry)
	}
	if err = zw.Close(); err != nil {
		return m, errors.MarkExportIO(err, "finish container")
	}
	if err = tmp.Sync(); err != nil {
		return m, errors.MarkExportIO(err, "sync %s", tmpName)
	}
	if err = tmp.Close(); err != nil {
		return m, errors.MarkExportIO(err, "close %s", tmpName)
	}
	// Last chance to honour a cancel before the artifact becomes visible.
	if err = ctx.Err(); err != nil {
		return m, interrupted(ctx, errors.Wrap(err, "export cancelled before rename"))
	}
	if err = os.Rename(tmpName, destination); err != nil {
		return m, errors.MarkExportIO(err, "move artifact to %s", destination)
	}
	return m, nil
}

// interrupted marks err as ErrExportInterrupted when ctx was cancelled.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, errors.ErrExportIO) {
		return errors.Mark(err, errors.ErrExportInterrupted)
	}
	return err
}
