// Package compose builds knowledge base records and commits them through
// sessions.
//
// A Composer owns the identity resolver and at most one open Session at a
// time. Records are created with builders and attachers inside
// Session.Compose and become durable, all together, in Session.Commit:
//
//	s, _ := c.Open(types.Stamp{Status: types.StatusActive, Time: now})
//	_, err := s.Compose(func(a *compose.Assembler) error {
//	    if _, err := a.Concept(id, "Blood pressure"); err != nil {
//	        return err
//	    }
//	    _, err := a.Attach(compose.Name(id, "Blood pressure (observable entity)"))
//	    return err
//	})
//	err = c.CommitSession(ctx, s)
package compose

import (
	"context"
	"sync"
	"time"

	id "github.com/teranos/vanity-id"
	"go.uber.org/zap"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb"
	"github.com/teranos/termforge/kb/ident"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/kb/vocab"
	"github.com/teranos/termforge/logger"
)

// Composer opens sessions against a store.
type Composer struct {
	store    kb.Store
	resolver *ident.Resolver
	logger   *zap.SugaredLogger
	defaults Defaults
	stamp    types.Stamp
	now      func() time.Time

	mu      sync.Mutex
	current *Session
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger; nil is allowed.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Composer) { c.logger = l }
}

// WithResolver shares a resolver with other pipelines.
func WithResolver(r *ident.Resolver) Option {
	return func(c *Composer) { c.resolver = r }
}

// WithDefaults overrides the facet defaults.
func WithDefaults(d Defaults) Option {
	return func(c *Composer) { c.defaults = d }
}

// WithStampDefaults fills stamp fields left zero by Open.
func WithStampDefaults(s types.Stamp) Option {
	return func(c *Composer) { c.stamp = s }
}

// WithClock replaces time.Now for stamps opened without a time.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// DefaultFacets are the facet defaults used when none are configured.
func DefaultFacets() Defaults {
	return Defaults{
		Language:         vocab.English,
		CaseSignificance: vocab.CaseInsensitive,
		IdentifierSource: vocab.UUIDSource,
	}
}

// New returns a composer over store. The resolver is primed with every
// component already committed, so facets may reference them.
func New(ctx context.Context, store kb.Store, opts ...Option) (*Composer, error) {
	c := &Composer{
		store:    store,
		defaults: DefaultFacets(),
		stamp: types.Stamp{
			Status: types.StatusActive,
			Author: vocab.UserAuthor,
			Module: vocab.CoreModule,
			Path:   vocab.DevelopmentPath,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = ident.NewResolver()
	}
	c.logger = logger.OrNop(c.logger)

	known, err := store.KnownIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read committed ids")
	}
	for _, k := range known {
		h, err := c.resolver.ResolveAll(k.ID, k.Aliases...)
		if err != nil {
			return nil, errors.Wrapf(err, "prime %s %s", k.Kind, k.ID)
		}
		if err := c.resolver.Bind(h, k.Kind); err != nil {
			return nil, errors.Wrapf(err, "prime %s %s", k.Kind, k.ID)
		}
	}
	c.logger.Debugw("Composer ready", logger.FieldCount, len(known))
	return c, nil
}

// Resolver returns the composer's identity resolver.
func (c *Composer) Resolver() *ident.Resolver { return c.resolver }

// Open starts a new session. Zero stamp fields are filled from the stamp
// defaults; a zero time means now. Only one session may be open at a time.
func (c *Composer) Open(stamp types.Stamp) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.State() == StateOpen {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrAlreadyOpen, "session %s", c.current.ID()),
			"commit or abandon the current session first")
	}

	if stamp.Status == types.StatusUnknown {
		stamp.Status = c.stamp.Status
	}
	if stamp.Time.IsZero() {
		stamp.Time = c.now()
	}
	if stamp.Author == (types.StableID{}) {
		stamp.Author = c.stamp.Author
	}
	if stamp.Module == (types.StableID{}) {
		stamp.Module = c.stamp.Module
	}
	if stamp.Path == (types.StableID{}) {
		stamp.Path = c.stamp.Path
	}

	s := &Session{
		id:       id.GenerateASIDSimple("SS", "session", stamp.Module.String()),
		composer: c,
		pending:  newPendingSet(),
	}
	s.logger = c.logger.With(logger.FieldSessionID, s.id)
	if err := s.Open(stamp); err != nil {
		return nil, err
	}
	c.current = s
	return s, nil
}

// CommitSession commits s and frees the composer for the next session,
// whether or not the commit succeeded.
func (c *Composer) CommitSession(ctx context.Context, s *Session) error {
	err := s.Commit(ctx)

	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
	return err
}

// Run opens a session, composes fn into it and commits.
func (c *Composer) Run(ctx context.Context, stamp types.Stamp, fn func(*Assembler) error) (Attachment, error) {
	s, err := c.Open(stamp)
	if err != nil {
		return Attachment{}, err
	}
	att, err := s.Compose(fn)
	if err != nil {
		c.release(s)
		return Attachment{}, err
	}
	if err := c.CommitSession(ctx, s); err != nil {
		return Attachment{}, err
	}
	return att, nil
}

// BeginLoadPhase tells the store a bulk load is starting.
func (c *Composer) BeginLoadPhase(ctx context.Context) error {
	c.logger.Debugw("Load phase begin")
	return c.store.BeginLoadPhase(ctx)
}

// EndLoadPhase tells the store the bulk load is over.
func (c *Composer) EndLoadPhase(ctx context.Context) error {
	c.logger.Debugw("Load phase end")
	return c.store.EndLoadPhase(ctx)
}

func (c *Composer) release(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == s {
		c.current = nil
	}
}

// markCommitted binds the aliases and kinds of a committed pending set so
// later sessions see them as existing.
func (c *Composer) markCommitted(p *pendingSet) {
	for _, cid := range p.order {
		comp := p.items[cid]
		h, err := c.resolver.ResolveAll(cid, types.AliasesOf(comp)...)
		if err != nil {
			// Aliases were checked while staging; a conflict here means another
			// pipeline resolved one of them in the meantime.
			c.logger.Warnw("Alias binding after commit failed",
				logger.FieldStableID, cid,
				logger.FieldError, err,
			)
			h = c.resolver.Resolve(cid)
		}
		if err := c.resolver.Bind(h, comp.ComponentKind()); err != nil {
			// Kinds were checked while staging; a mismatch here means another
			// pipeline bound the handle concurrently.
			c.logger.Warnw("Kind binding after commit failed",
				logger.FieldStableID, cid,
				logger.FieldError, err,
			)
		}
	}
}
