package universe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dotcommander/continuity/internal/narrative"
)

// Mutator changes a universe in place. Returning an error discards the change.
type Mutator func(u *narrative.NarrativeUniverse) error

// Store owns the lifecycle of every universe. Mutations of one universe are
// serialized; mutations of different universes proceed independently. Reads
// return deep copies, so callers never hold a lock while using a snapshot.
type Store struct {
	backend Backend
	bible   *narrative.StoryBible
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces time.Now, for deterministic timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoryBible seeds new universes from a story bible.
func WithStoryBible(b *narrative.StoryBible) StoreOption {
	return func(s *Store) { s.bible = b }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  slog.Default(),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "universe_store")
	return s
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func validID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidUniverseID
	}
	return nil
}

// GetOrCreate returns a snapshot of the universe, creating and persisting an
// empty one on first access. Errors only come from the backend or a bad id.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*narrative.NarrativeUniverse, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	u, err := s.backend.Load(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	l := s.lock(id)
	l.Lock()
	defer l.Unlock()
	u, created, err := s.loadOrNew(ctx, id)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.backend.Save(ctx, u); err != nil {
			return nil, fmt.Errorf("creating universe %s: %w", id, err)
		}
		s.logger.Info("universe created", "universe_id", id)
	}
	return u.Clone(), nil
}

// loadOrNew must be called with the id lock held.
func (s *Store) loadOrNew(ctx context.Context, id string) (*narrative.NarrativeUniverse, bool, error) {
	u, err := s.backend.Load(ctx, id)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	u = narrative.NewUniverse(id, s.now())
	s.bible.Seed(u)
	return u, true, nil
}

// Replace applies fn to a copy of the universe under the universe's exclusive
// lock and persists the result. On any error the stored state is unchanged.
// On success the revision advances and LastUpdated is set.
func (s *Store) Replace(ctx context.Context, id string, fn Mutator) (*narrative.NarrativeUniverse, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, _, err := s.loadOrNew(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.Revision = current.Revision + 1
	next.LastUpdated = s.now()
	if err := s.backend.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("persisting universe %s: %w", id, err)
	}
	return next.Clone(), nil
}

// IDs lists every persisted universe.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	ids, err := s.backend.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing universes: %w", err)
	}
	return ids, nil
}

// Versions lists stored versions, newest first.
func (s *Store) Versions(ctx context.Context, id string, limit int) ([]Version, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	vb, ok := s.backend.(VersionedBackend)
	if !ok {
		return nil, ErrVersioningUnsupported
	}
	return vb.Versions(ctx, id, limit)
}

// Rollback restores the content of an earlier version as a new revision.
// History is never rewritten: the restored state is appended like any update.
func (s *Store) Rollback(ctx context.Context, id, versionID string) (*narrative.NarrativeUniverse, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	vb, ok := s.backend.(VersionedBackend)
	if !ok {
		return nil, ErrVersioningUnsupported
	}
	target, err := vb.LoadVersion(ctx, id, versionID)
	if err != nil {
		return nil, err
	}
	u, err := s.Replace(ctx, id, func(u *narrative.NarrativeUniverse) error {
		createdAt := u.CreatedAt
		*u = *target.Clone()
		u.CreatedAt = createdAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("universe rolled back", "universe_id", id, "version_id", versionID, "revision", u.Revision)
	return u, nil
}

// Now reads the store clock.
func (s *Store) Now() time.Time { return s.now() }

// Bible returns the story bible new universes are seeded from, possibly nil.
func (s *Store) Bible() *narrative.StoryBible { return s.bible }
