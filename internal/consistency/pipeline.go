package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/observability"
	"github.com/dotcommander/continuity/internal/universe"
)

// Snapshotter hands out point-in-time universe snapshots.
type Snapshotter interface {
	GetOrCreate(ctx context.Context, id string) (*narrative.NarrativeUniverse, error)
}

// Request is one content unit to validate.
type Request struct {
	UniverseID  string
	ContentType string
	Payload     content.Payload
}

// Pipeline validates content against a universe snapshot. It keeps no state
// between calls apart from the result cache.
type Pipeline struct {
	store      Snapshotter
	validators []Validator
	cache      *ResultCache
	policy     func() Policy
	bible      *narrative.StoryBible
	now        func() time.Time
	logger     *slog.Logger
	metrics    *observability.Metrics
	flight     singleflight.Group
}

// PipelineConfig carries the collaborators of a Pipeline. Zero fields get defaults.
type PipelineConfig struct {
	Validators []Validator
	Cache      *ResultCache
	Policy     func() Policy
	Bible      *narrative.StoryBible
	Now        func() time.Time
	Observer   observability.Observer
}

func NewPipeline(store Snapshotter, cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		store:      store,
		validators: cfg.Validators,
		cache:      cfg.Cache,
		policy:     cfg.Policy,
		bible:      cfg.Bible,
		now:        cfg.Now,
		logger:     cfg.Observer.Component("pipeline"),
		metrics:    cfg.Observer.Metrics,
	}
	if p.validators == nil {
		p.validators = DefaultValidators()
	}
	if p.policy == nil {
		def := DefaultPolicy()
		p.policy = func() Policy { return def }
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Validate runs the pipeline. Business-level inconsistencies never produce an
// error; only invalid arguments and cancellation do. When the universe cannot
// be read the result degrades to a permissive default.
func (p *Pipeline) Validate(ctx context.Context, req Request) (*narrative.ValidationResult, error) {
	if strings.TrimSpace(req.UniverseID) == "" {
		return nil, universe.ErrInvalidUniverseID
	}
	if req.Payload == nil {
		return nil, fmt.Errorf("%w: nil content payload", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		p.metrics.Validation("cancelled")
		return nil, err
	}

	ctx, span := observability.Tracer().Start(ctx, "consistency.validate", trace.WithAttributes(
		attribute.String("universe.id", req.UniverseID),
		attribute.String("content.type", req.ContentType),
		attribute.String("content.tab", string(req.Payload.TabType())),
	))
	defer span.End()

	hash, err := content.Hash(req.Payload.TabType(), req.ContentType, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	snapshot, err := p.store.GetOrCreate(ctx, req.UniverseID)
	if err != nil {
		if errors.Is(err, universe.ErrInvalidUniverseID) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			p.metrics.Validation("cancelled")
			return nil, ctxErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "universe unavailable")
		p.metrics.Validation("degraded")
		p.logger.Warn("validation degraded", "universe_id", req.UniverseID, "error", err)
		return p.degraded(req.UniverseID, hash, err), nil
	}

	key := CacheKey{UniverseID: req.UniverseID, ContentType: req.ContentType, ContentHash: hash}
	if p.cache != nil {
		if r, ok := p.cache.Get(key, snapshot.Revision); ok {
			p.metrics.CacheLookup(true)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return r, nil
		}
		p.metrics.CacheLookup(false)
	}

	// Identical concurrent validations share one run. The run is detached from
	// any single caller's cancellation; each caller still returns on its own ctx.
	flightKey := strings.Join([]string{key.UniverseID, key.ContentType, key.ContentHash, strconv.FormatUint(snapshot.Revision, 10)}, "\x00")
	runCtx := context.WithoutCancel(ctx)
	ch := p.flight.DoChan(flightKey, func() (any, error) {
		r := p.run(runCtx, req, snapshot, hash)
		if p.cache != nil {
			p.cache.Set(key, snapshot.Revision, r)
		}
		return r, nil
	})

	select {
	case <-ctx.Done():
		p.metrics.Validation("cancelled")
		return nil, ctx.Err()
	case res := <-ch:
		if err := ctx.Err(); err != nil {
			p.metrics.Validation("cancelled")
			return nil, err
		}
		return cloneResult(res.Val.(*narrative.ValidationResult)), nil
	}
}

// run is the Idle → Validating → Scored → (Correcting) → Complete state machine.
func (p *Pipeline) run(ctx context.Context, req Request, snapshot *narrative.NarrativeUniverse, hash string) *narrative.ValidationResult {
	policy := p.policy()
	r := &narrative.ValidationResult{
		UniverseID:  req.UniverseID,
		ContentHash: hash,
		Revision:    snapshot.Revision,
		ValidatedAt: p.now(),
		Violations:  []narrative.Violation{},
		Warnings:    []string{},
		Suggestions: []string{},
		Corrections: []narrative.Correction{},
		Stages:      []narrative.Stage{narrative.StageIdle},
	}

	in := Input{
		UniverseID: req.UniverseID,
		Tab:        req.Payload.TabType(),
		Extraction: req.Payload.Extract(),
		Universe:   snapshot,
		Bible:      p.bible,
		Policy:     policy,
	}

	r.Stages = append(r.Stages, narrative.StageValidating)
	for _, f := range p.fanOut(ctx, in) {
		r.Violations = append(r.Violations, f.Violations...)
		r.Warnings = append(r.Warnings, f.Warnings...)
		r.Suggestions = append(r.Suggestions, f.Suggestions...)
	}
	r.Violations = dedupe(r.Violations)

	r.OverallScore, r.IsValid = Score(policy, r.Violations, len(r.Warnings))
	r.Stages = append(r.Stages, narrative.StageScored)

	if slices.ContainsFunc(r.Violations, func(v narrative.Violation) bool { return v.AutoCorrectible }) {
		r.Stages = append(r.Stages, narrative.StageCorrecting)
		r.Corrections = append(r.Corrections, GenerateCorrections(in, r.Violations)...)
	}
	r.Stages = append(r.Stages, narrative.StageComplete)

	for _, v := range r.Violations {
		p.metrics.Violation(string(v.Type), string(v.Severity))
	}
	outcome := "invalid"
	if r.IsValid {
		outcome = "valid"
	}
	p.metrics.Validation(outcome)
	p.logger.Debug("content validated",
		"universe_id", req.UniverseID,
		"revision", snapshot.Revision,
		"score", r.OverallScore,
		"valid", r.IsValid,
		"violations", len(r.Violations),
	)
	return r
}

// fanOut runs every validator concurrently over the same snapshot and joins
// them. A validator that panics contributes a warning instead of violations.
func (p *Pipeline) fanOut(ctx context.Context, in Input) []Findings {
	results := make([]Findings, len(p.validators))
	var g errgroup.Group
	for i, v := range p.validators {
		g.Go(func() error {
			_, span := observability.Tracer().Start(ctx, "consistency.validate."+string(v.Dimension()))
			defer span.End()
			defer func() {
				if rec := recover(); rec != nil {
					p.logger.Error("validator failed", "dimension", v.Dimension(), "panic", rec)
					span.SetStatus(codes.Error, "validator panicked")
					results[i] = Findings{Warnings: []string{
						fmt.Sprintf("%s validation unavailable: internal error", v.Dimension()),
					}}
				}
			}()
			results[i] = v.Validate(in)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// degraded is the permissive default used when validation cannot run at all.
func (p *Pipeline) degraded(universeID, hash string, cause error) *narrative.ValidationResult {
	return &narrative.ValidationResult{
		UniverseID:   universeID,
		ContentHash:  hash,
		ValidatedAt:  p.now(),
		IsValid:      true,
		OverallScore: p.policy().DegradedScore,
		Violations:   []narrative.Violation{},
		Warnings:     []string{fmt.Sprintf("consistency validation unavailable: %v", cause)},
		Suggestions:  []string{},
		Corrections:  []narrative.Correction{},
		Stages:       []narrative.Stage{narrative.StageIdle, narrative.StageValidating, narrative.StageComplete},
		Degraded:     true,
	}
}

func dedupe(vs []narrative.Violation) []narrative.Violation {
	seen := make(map[string]bool, len(vs))
	out := vs[:0]
	for _, v := range vs {
		if seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		out = append(out, v)
	}
	return out
}

func cloneResult(r *narrative.ValidationResult) *narrative.ValidationResult {
	out := *r
	out.Violations = slices.Clone(r.Violations)
	out.Warnings = slices.Clone(r.Warnings)
	out.Suggestions = slices.Clone(r.Suggestions)
	out.Corrections = slices.Clone(r.Corrections)
	out.Stages = slices.Clone(r.Stages)
	return &out
}
