package compose

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/termforge/errors"
	"github.com/teranos/termforge/kb/types"
	"github.com/teranos/termforge/logger"
)

// State of a session. Committed and Aborted are terminal.
type State int32

const (
	StateUnopened State = iota
	StateOpen
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Session buffers composed records under one stamp until Commit. Compose
// calls are meant to come from one goroutine; the mutex guards state
// transitions and the pending set between calls.
type Session struct {
	mu       sync.Mutex
	id       string
	composer *Composer
	state    State
	stamp    types.Stamp
	pending  *pendingSet
	logger   *zap.SugaredLogger
}

// ID returns the session's vanity id, used in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stamp returns the normalized stamp set by Open.
func (s *Session) Stamp() types.Stamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stamp
}

// Pending returns the number of staged components.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.len()
}

// Open moves the session from Unopened to Open under stamp. The stamp time
// is normalized to UTC milliseconds and its id derived from its content.
func (s *Session) Open(stamp types.Stamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnopened {
		return errors.Wrapf(errors.ErrAlreadyOpen, "session %s is %s", s.id, s.state)
	}
	if stamp.Status == types.StatusUnknown {
		return errors.Wrap(errors.ErrInvalidRequest, "stamp has no status")
	}
	if stamp.Time.IsZero() {
		return errors.Wrap(errors.ErrInvalidRequest, "stamp has no time")
	}
	s.stamp = stamp.Normalize()
	s.state = StateOpen
	s.logger.Debugw("Session opened",
		logger.FieldStamp, s.stamp.ID,
		logger.FieldStatus, s.stamp.Status.String(),
	)
	return nil
}

// Compose runs fn with an Assembler and, if fn returns nil, adds what it
// staged to the pending set. An error or panic from fn aborts the session:
// nothing it staged, and nothing staged before, will be committed.
//
// fn runs without the session lock, so it may call Pending, State and Stamp.
// If the session is committed or abandoned while fn runs, Compose returns
// ErrSessionClosed and merges nothing.
func (s *Session) Compose(fn func(*Assembler) error) (Attachment, error) {
	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		return Attachment{}, errors.Wrapf(errors.ErrSessionClosed, "session %s is %s", s.id, state)
	}
	s.mu.Unlock()

	asm := newAssembler(s)
	err := runComposer(fn, asm)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return Attachment{}, errors.Wrapf(errors.ErrSessionClosed, "session %s became %s during compose", s.id, s.state)
	}
	if err != nil {
		s.abortLocked(err)
		return Attachment{}, err
	}
	s.pending.merge(asm.staged)
	s.logger.Debugw("Composed",
		logger.FieldCount, len(asm.out.IDs),
		logger.FieldTotalCount, s.pending.len(),
	)
	return asm.out, nil
}

// runComposer calls fn, turning a panic into an error.
func runComposer(fn func(*Assembler) error, asm *Assembler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.AssertionFailedf("compose panicked: %v", r)
		}
	}()
	return fn(asm)
}

// Commit hands the pending set to the store in one PersistBatch and blocks
// until it returns. A store failure aborts the session and is returned
// wrapped so it matches errors.ErrCommit and the original cause.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return errors.Wrapf(errors.ErrSessionClosed, "commit of session %s: session is %s", s.id, s.state)
	}

	start := time.Now()
	batch := s.pending.batch(s.stamp)
	if err := s.composer.store.PersistBatch(ctx, batch); err != nil {
		err = errors.MarkCommit(err, "commit session %s", s.id)
		s.abortLocked(err)
		return err
	}

	s.state = StateCommitted
	s.composer.markCommitted(s.pending)
	s.logger.Infow("Session committed",
		logger.FieldStamp, s.stamp.ID,
		logger.FieldCount, batch.Len(),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// Abandon aborts an open session without committing.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpen || s.state == StateUnopened {
		s.abortLocked(nil)
	}
}

func (s *Session) abortLocked(cause error) {
	discarded := s.pending.len()
	s.state = StateAborted
	s.pending = newPendingSet()
	if cause != nil {
		s.logger.Warnw("Session aborted",
			logger.FieldCount, discarded,
			logger.FieldError, cause,
		)
		return
	}
	s.logger.Infow("Session abandoned", logger.FieldCount, discarded)
}
