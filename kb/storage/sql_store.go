// Package storage provides the knowledge base stores: SQLStore on SQLite
// and MemStore for tests and dry runs.
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/termforge/db"
	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/logger"
	"github.com/teranos/termforge/sym"
)

// DefaultFileName is the database file created inside the data directory.
const DefaultFileName = "termforge.db"

// Config locates the database.
type Config struct {
	DataDir  string
	FileName string
}

// Path returns the database file path.
func (c Config) Path() string {
	name := c.FileName
	if name == "" {
		name = DefaultFileName
	}
	return filepath.Join(c.DataDir, name)
}

// Query constants
const (
	stampUpsertQuery = `
		INSERT INTO stamps (id, status, time_ms, author, module, path)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	componentKindQuery = `SELECT kind FROM components WHERE id = ?`

	componentInsertQuery = `INSERT INTO components (id, kind) VALUES (?, ?)`

	aliasOwnerQuery = `SELECT component_id FROM aliases WHERE alias = ?`

	aliasInsertQuery = `INSERT INTO aliases (alias, component_id) VALUES (?, ?)`

	versionUpsertQuery = `
		INSERT INTO versions (component_id, stamp_id, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(component_id, stamp_id) DO UPDATE SET payload = excluded.payload`

	countByKindQuery = `SELECT kind, COUNT(*) FROM components GROUP BY kind`

	allAliasesQuery = `SELECT alias, component_id FROM aliases ORDER BY component_id, rowid`

	allComponentsQuery = `SELECT id, kind FROM components ORDER BY kind, id`

	chronologyQuery = `
		SELECT c.id, c.kind, v.payload,
		       s.id, s.status, s.time_ms, s.author, s.module, s.path
		FROM components c
		JOIN versions v ON v.component_id = c.id
		JOIN stamps s ON s.id = v.stamp_id
		ORDER BY c.kind, c.id, s.time_ms, v.seq`
)

// secondaryIndexes are dropped for a load phase and rebuilt at its end.
var secondaryIndexes = []struct{ name, create string }{
	{"idx_components_kind", "CREATE INDEX IF NOT EXISTS idx_components_kind ON components(kind, id)"},
	{"idx_aliases_component", "CREATE INDEX IF NOT EXISTS idx_aliases_component ON aliases(component_id)"},
	{"idx_versions_component", "CREATE INDEX IF NOT EXISTS idx_versions_component ON versions(component_id, seq)"},
}

// SQLStore is a kb.Store on SQLite. Every write runs in one transaction.
type SQLStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger

	mu        sync.Mutex
	loadPhase bool
	closed    bool
}

// NewSQLStore wraps an already migrated database.
func NewSQLStore(conn *sql.DB, log *zap.SugaredLogger) *SQLStore {
	return &SQLStore{db: conn, logger: logger.OrNop(log)}
}

// Open creates the data directory if needed, opens the database and applies
// migrations.
func Open(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*SQLStore, error) {
	if cfg.DataDir == "" {
		return nil, errors.NewInvalidRequestError("store data directory is empty")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data directory %s", cfg.DataDir)
	}
	conn, err := db.OpenWithMigrations(cfg.Path(), log)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ping %s", cfg.Path())
	}
	return NewSQLStore(conn, log), nil
}

// DB exposes the underlying connection.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return db.ErrDatabaseClosed
	}
	return nil
}

// PersistBatch writes the batch stamp and one version per component in a
// single transaction. Any failure rolls everything back.
func (s *SQLStore) PersistBatch(ctx context.Context, batch *types.Batch) error {
	if batch == nil {
		return errors.New("nil batch")
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	start := time.Now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertStamp(ctx, tx, batch.Stamp); err != nil {
			return err
		}
		for _, c := range batch.Components() {
			if err := writeVersion(ctx, tx, batch.Stamp, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "persist batch of %d", batch.Len())
	}

	s.logger.Debugw("Batch persisted",
		logger.FieldSymbol, sym.DB,
		logger.FieldStamp, batch.Stamp.ID,
		logger.FieldCount, batch.Len(),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// Restore writes chronologies with their original stamps in one
// transaction. Versions already present are overwritten in place, so
// restoring the same artifact twice is harmless.
func (s *SQLStore) Restore(ctx context.Context, chronologies []types.Chronology) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, ch := range chronologies {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := ensureComponent(ctx, tx, ch.ID, ch.Kind, ch.Aliases); err != nil {
				return err
			}
			for _, v := range ch.Versions {
				if err := upsertStamp(ctx, tx, v.Stamp); err != nil {
					return err
				}
				if err := writeVersion(ctx, tx, v.Stamp, v.Component); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return errors.Wrapf(err, "restore %d chronologies", len(chronologies))
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.WithSecondaryError(err, rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

func upsertStamp(ctx context.Context, tx *sql.Tx, st types.Stamp) error {
	_, err := tx.ExecContext(ctx, stampUpsertQuery,
		st.ID.String(),
		st.Status.String(),
		st.Time.UnixMilli(),
		st.Author.String(),
		st.Module.String(),
		st.Path.String(),
	)
	return errors.Wrapf(err, "write stamp %s", st.ID)
}

// ensureComponent inserts the component row and its aliases, refusing a
// change of kind or an alias owned by another component.
func ensureComponent(ctx context.Context, tx *sql.Tx, id types.StableID, kind types.Kind, aliases []types.StableID) error {
	var stored types.Kind
	err := tx.QueryRowContext(ctx, componentKindQuery, id.String()).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, componentInsertQuery, id.String(), int(kind)); err != nil {
			return errors.Wrapf(err, "insert %s %s", kind, id)
		}
	case err != nil:
		return errors.Wrapf(err, "read kind of %s", id)
	case stored != kind:
		return errors.Wrapf(errors.ErrDuplicateEntity, "%s stored as %s, written as %s", id, stored, kind)
	}

	for _, alias := range aliases {
		var owner string
		err := tx.QueryRowContext(ctx, aliasOwnerQuery, alias.String()).Scan(&owner)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, aliasInsertQuery, alias.String(), id.String()); err != nil {
				return errors.Wrapf(err, "insert alias %s", alias)
			}
		case err != nil:
			return errors.Wrapf(err, "read alias %s", alias)
		case owner != id.String():
			return errors.Wrapf(errors.ErrAliasConflict, "alias %s belongs to %s", alias, owner)
		}
	}
	return nil
}

func writeVersion(ctx context.Context, tx *sql.Tx, st types.Stamp, c types.Component) error {
	if err := ensureComponent(ctx, tx, c.ComponentID(), c.ComponentKind(), types.AliasesOf(c)); err != nil {
		return err
	}
	payload, err := MarshalComponent(c)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, versionUpsertQuery, c.ComponentID().String(), st.ID.String(), payload); err != nil {
		return errors.Wrapf(err, "insert version of %s", c.ComponentID())
	}
	return nil
}

func (s *SQLStore) CountComponents(ctx context.Context) (map[types.Kind]int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, countByKindQuery)
	if err != nil {
		return nil, errors.Wrap(err, "count components")
	}
	defer rows.Close()

	counts := make(map[types.Kind]int)
	for rows.Next() {
		var kind types.Kind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		counts[kind] = n
	}
	return counts, errors.Wrap(rows.Err(), "count components")
}

func (s *SQLStore) aliases(ctx context.Context) (map[string][]types.StableID, error) {
	rows, err := s.db.QueryContext(ctx, allAliasesQuery)
	if err != nil {
		return nil, errors.Wrap(err, "query aliases")
	}
	defer rows.Close()

	out := make(map[string][]types.StableID)
	for rows.Next() {
		var alias, owner string
		if err := rows.Scan(&alias, &owner); err != nil {
			return nil, errors.Wrap(err, "scan alias")
		}
		id, err := types.ParseID(alias)
		if err != nil {
			return nil, errors.Wrapf(err, "parse alias %q", alias)
		}
		out[owner] = append(out[owner], id)
	}
	return out, errors.Wrap(rows.Err(), "query aliases")
}

// KnownIDs returns every committed component with its aliases.
func (s *SQLStore) KnownIDs(ctx context.Context) ([]types.Identity, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	aliases, err := s.aliases(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, allComponentsQuery)
	if err != nil {
		return nil, errors.Wrap(err, "query components")
	}
	defer rows.Close()

	var out []types.Identity
	for rows.Next() {
		var raw string
		var kind types.Kind
		if err := rows.Scan(&raw, &kind); err != nil {
			return nil, errors.Wrap(err, "scan component")
		}
		id, err := types.ParseID(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse component id %q", raw)
		}
		out = append(out, types.Identity{ID: id, Kind: kind, Aliases: aliases[raw]})
	}
	return out, errors.Wrap(rows.Err(), "query components")
}

// ForEachChronology streams chronologies from one query. fn must not call
// back into the store: with a single connection the open cursor holds it.
func (s *SQLStore) ForEachChronology(ctx context.Context, fn func(types.Chronology) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	aliases, err := s.aliases(ctx)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, chronologyQuery)
	if err != nil {
		return errors.Wrap(err, "query chronologies")
	}
	defer rows.Close()

	var (
		current   *types.Chronology
		currentID string
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		ch := *current
		current = nil
		return fn(ch)
	}

	for rows.Next() {
		var (
			rawID, payload, stampID, status, author, module, path string
			kind                                                  types.Kind
			timeMS                                                int64
		)
		if err := rows.Scan(&rawID, &kind, &payload, &stampID, &status, &timeMS, &author, &module, &path); err != nil {
			return errors.Wrap(err, "scan version")
		}

		if rawID != currentID {
			if err := flush(); err != nil {
				return err
			}
			id, err := types.ParseID(rawID)
			if err != nil {
				return errors.Wrapf(err, "parse component id %q", rawID)
			}
			current = &types.Chronology{Kind: kind, ID: id, Aliases: aliases[rawID]}
			currentID = rawID
		}

		comp, err := UnmarshalComponent(kind, payload)
		if err != nil {
			return err
		}
		st, err := scanStamp(stampID, status, timeMS, author, module, path)
		if err != nil {
			return err
		}
		current.Versions = append(current.Versions, types.Version{Stamp: st, Component: comp})
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate chronologies")
	}
	return flush()
}

func scanStamp(id, status string, timeMS int64, author, module, path string) (types.Stamp, error) {
	var st types.Stamp
	var err error
	if st.ID, err = types.ParseID(id); err != nil {
		return st, errors.Wrapf(err, "parse stamp id %q", id)
	}
	if st.Status, err = types.ParseStatus(status); err != nil {
		return st, err
	}
	st.Time = time.UnixMilli(timeMS).UTC()
	for _, f := range []struct {
		dst *types.StableID
		raw string
	}{{&st.Author, author}, {&st.Module, module}, {&st.Path, path}} {
		if *f.dst, err = types.ParseID(f.raw); err != nil {
			return st, errors.Wrapf(err, "parse stamp %s field %q", id, f.raw)
		}
	}
	return st, nil
}

// BeginLoadPhase drops secondary indexes and relaxes fsync until
// EndLoadPhase.
func (s *SQLStore) BeginLoadPhase(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadPhase {
		return errors.Wrap(errors.ErrInvalidRequest, "load phase already open")
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous = OFF"); err != nil {
		return errors.Wrap(err, "relax synchronous")
	}
	for _, idx := range secondaryIndexes {
		if _, err := s.db.ExecContext(ctx, "DROP INDEX IF EXISTS "+idx.name); err != nil {
			return errors.Wrapf(err, "drop index %s", idx.name)
		}
	}
	s.loadPhase = true
	s.logger.Infow("Load phase started", logger.FieldSymbol, sym.DB)
	return nil
}

// EndLoadPhase rebuilds the indexes, restores fsync and refreshes planner
// statistics.
func (s *SQLStore) EndLoadPhase(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loadPhase {
		return errors.Wrap(errors.ErrInvalidRequest, "no load phase open")
	}
	start := time.Now()
	for _, idx := range secondaryIndexes {
		if _, err := s.db.ExecContext(ctx, idx.create); err != nil {
			return errors.Wrapf(err, "rebuild index %s", idx.name)
		}
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous = FULL"); err != nil {
		return errors.Wrap(err, "restore synchronous")
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return errors.Wrap(err, "analyze")
	}
	s.loadPhase = false
	s.logger.Infow("Load phase finished",
		logger.FieldSymbol, sym.DB,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// Close closes the database. A load phase left open is finished first so
// the indexes exist next time.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	open := s.loadPhase
	s.mu.Unlock()
	if open {
		if err := s.EndLoadPhase(context.Background()); err != nil {
			s.logger.Warnw("Failed to finish load phase on close", logger.FieldError, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.db.Close()
	if db.IsDatabaseClosed(err) {
		return nil
	}
	return errors.Wrap(err, "close database")
}
