package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/observability"
	"github.com/dotcommander/continuity/internal/universe"
)

// Engine is the entry point used by content producers: validate content,
// fold accepted content into the universe, and apply automatic corrections.
type Engine struct {
	store    *universe.Store
	updater  *universe.Updater
	pipeline *Pipeline
	applier  *Applier
	cache    *ResultCache
	policy   atomic.Pointer[Policy]
	logger   *slog.Logger
}

type engineOptions struct {
	policy     Policy
	observer   observability.Observer
	cacheSize  int
	cacheTTL   time.Duration
	validators []Validator
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*engineOptions)

func WithPolicy(p Policy) Option {
	return func(o *engineOptions) { o.policy = p }
}

func WithObserver(obs observability.Observer) Option {
	return func(o *engineOptions) { o.observer = obs }
}

// WithCache bounds the result cache. A size below zero disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(o *engineOptions) { o.cacheSize, o.cacheTTL = size, ttl }
}

func WithValidators(vs ...Validator) Option {
	return func(o *engineOptions) { o.validators = vs }
}

// WithClock sets the clock stamped on violations.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// NewEngine wires an engine around a store. The store's story bible, if any,
// is also used for new-character checks.
func NewEngine(store *universe.Store, opts ...Option) *Engine {
	o := engineOptions{
		policy:    DefaultPolicy(),
		cacheSize: 1000,
		cacheTTL:  10 * time.Minute,
		now:       store.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		store:   store,
		updater: universe.NewUpdater(store, o.observer),
		logger:  o.observer.Component("engine"),
	}
	e.policy.Store(&o.policy)
	if o.cacheSize >= 0 {
		e.cache = NewResultCache(o.cacheSize, o.cacheTTL)
	}
	e.pipeline = NewPipeline(store, PipelineConfig{
		Validators: o.validators,
		Cache:      e.cache,
		Policy:     e.Policy,
		Bible:      store.Bible(),
		Now:        o.now,
		Observer:   o.observer,
	})
	e.applier = NewApplier(e.Policy, o.observer)
	return e
}

// Policy returns the acceptance policy currently in force.
func (e *Engine) Policy() Policy {
	return *e.policy.Load()
}

// SetPolicy swaps the acceptance policy. Cached results computed under the old
// policy are dropped.
func (e *Engine) SetPolicy(p Policy) {
	e.policy.Store(&p)
	if e.cache != nil {
		e.cache.Purge()
	}
	e.logger.Info("policy updated", "valid_threshold", p.ValidThreshold, "automatic_threshold", p.AutomaticThreshold)
}

func checkTab(p content.Payload, tab content.TabType) error {
	if p == nil {
		return fmt.Errorf("%w: nil content payload", ErrInvalidArgument)
	}
	if tab != "" && tab != p.TabType() {
		return fmt.Errorf("%w: tab type %q does not match %s content", ErrInvalidArgument, tab, p.TabType())
	}
	return nil
}

// ValidateContentConsistency validates content against the universe. tabType
// may be empty, in which case the payload's own tab type is used.
func (e *Engine) ValidateContentConsistency(ctx context.Context, p content.Payload, contentType, universeID string, tabType content.TabType) (*narrative.ValidationResult, error) {
	if err := checkTab(p, tabType); err != nil {
		return nil, err
	}
	return e.pipeline.Validate(ctx, Request{UniverseID: universeID, ContentType: contentType, Payload: p})
}

// UpdateUniverseWithContent folds accepted content into the universe.
// It reports nothing: failures are logged and counted.
func (e *Engine) UpdateUniverseWithContent(ctx context.Context, p content.Payload, contentType, universeID string, tabType content.TabType) {
	if err := checkTab(p, tabType); err != nil {
		e.logger.Warn("universe update rejected", "universe_id", universeID, "error", err)
		return
	}
	e.updater.Apply(ctx, universeID, p, contentType)
}

// ApplyConsistencyCorrections returns a copy of p with the automatic
// corrections applied. The universe is not touched.
func (e *Engine) ApplyConsistencyCorrections(p content.Payload, corrections []narrative.Correction) (content.Payload, error) {
	if err := checkTab(p, ""); err != nil {
		return nil, err
	}
	return e.applier.Apply(p, corrections), nil
}

// Universe returns a snapshot of the universe, creating it if needed.
func (e *Engine) Universe(ctx context.Context, universeID string) (*narrative.NarrativeUniverse, error) {
	return e.store.GetOrCreate(ctx, universeID)
}

// Universes lists the ids of every stored universe.
func (e *Engine) Universes(ctx context.Context) ([]string, error) {
	return e.store.IDs(ctx)
}

func (e *Engine) Versions(ctx context.Context, universeID string, limit int) ([]universe.Version, error) {
	return e.store.Versions(ctx, universeID, limit)
}

func (e *Engine) Rollback(ctx context.Context, universeID, versionID string) (*narrative.NarrativeUniverse, error) {
	return e.store.Rollback(ctx, universeID, versionID)
}

// CacheStats reports result cache statistics.
func (e *Engine) CacheStats() (hits, misses uint64, size int) {
	if e.cache == nil {
		return 0, 0, 0
	}
	return e.cache.Stats()
}
