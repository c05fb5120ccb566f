package universe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/observability"
)

// Updater folds accepted content into universe state.
type Updater struct {
	store   *Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewUpdater(store *Store, obs observability.Observer) *Updater {
	return &Updater{
		store:   store,
		logger:  obs.Component("universe_updater"),
		metrics: obs.Metrics,
	}
}

// Apply folds p into the universe. Failures are logged and counted but never
// returned: accepted content stays accepted even when the universe cannot be updated.
func (up *Updater) Apply(ctx context.Context, universeID string, p content.Payload, contentType string) {
	ctx, span := observability.Tracer().Start(ctx, "universe.apply", trace.WithAttributes(
		attribute.String("universe.id", universeID),
		attribute.String("content.type", contentType),
	))
	defer span.End()

	u, err := up.apply(ctx, universeID, p, contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "universe update failed")
		up.metrics.Update("failed")
		up.logger.Warn("universe update failed", "universe_id", universeID, "content_type", contentType, "error", err)
		return
	}
	up.metrics.Update("ok")
	up.logger.Debug("universe updated", "universe_id", universeID, "revision", u.Revision)
}

func (up *Updater) apply(ctx context.Context, universeID string, p content.Payload, contentType string) (*narrative.NarrativeUniverse, error) {
	if p == nil {
		return nil, errors.New("nil content payload")
	}
	hash, err := content.Hash(p.TabType(), contentType, p)
	if err != nil {
		return nil, err
	}
	ext := p.Extract()
	f := folder{
		tab:         string(p.TabType()),
		contentType: contentType,
		hash:        hash,
		now:         up.store.Now(),
		bible:       up.store.Bible(),
	}
	return up.store.Replace(ctx, universeID, func(u *narrative.NarrativeUniverse) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("folding content: %v", r)
			}
		}()
		f.fold(u, ext)
		return nil
	})
}
