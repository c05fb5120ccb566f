package consistency

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/universe"
)

// seededEngine returns an engine whose "pilot" universe holds maraUniverse.
func seededEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	store := universe.NewStore(universe.NewMemoryBackend(), universe.WithClock(clock))
	_, err := store.Replace(context.Background(), "pilot", func(u *narrative.NarrativeUniverse) error {
		*u = *maraUniverse()
		return nil
	})
	require.NoError(t, err)
	return NewEngine(store, append([]Option{WithObserver(quiet)}, opts...)...)
}

func TestValidateContentConsistency(t *testing.T) {
	tests := []struct {
		name       string
		payload    content.Payload
		wantValid  bool
		wantScore  float64
		wantCounts map[narrative.Severity]int
	}{
		{
			name:       "unmotivated emotional jump",
			payload:    maraRequest().Payload,
			wantValid:  false,
			wantScore:  0.78,
			wantCounts: map[narrative.Severity]int{narrative.SeverityMajor: 1},
		},
		{
			name:      "consistent location",
			payload:   scriptWith(nil, content.LocationMention{Name: "Lighthouse", Description: "abandoned, collapsing roof"}),
			wantValid: true,
			wantScore: 1,
		},
		{
			name:       "callback to a thread that never existed",
			payload:    &content.Outline{Beats: []content.PlotBeat{{Kind: content.BeatCallback, ThreadID: "heist-plan"}}},
			wantValid:  false,
			wantScore:  0.7,
			wantCounts: map[narrative.Severity]int{narrative.SeverityCritical: 1},
		},
		{
			name:      "schedule only names entities",
			payload:   &content.Schedule{Days: []content.ShootDay{{Episode: 2, Locations: []string{"Lighthouse"}, Cast: []string{"Mara"}}}},
			wantValid: true,
			wantScore: 1,
		},
		{
			name:      "unknown tab",
			payload:   &content.Unknown{Tab: "budget"},
			wantValid: true,
			wantScore: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := seededEngine(t)
			r, err := e.ValidateContentConsistency(context.Background(), tt.payload, "scene", "pilot", "")
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, r.IsValid)
			assert.InDelta(t, tt.wantScore, r.OverallScore, 1e-9)
			for _, sev := range []narrative.Severity{narrative.SeverityCritical, narrative.SeverityMajor, narrative.SeverityMinor, narrative.SeveritySuggestion} {
				assert.Equal(t, tt.wantCounts[sev], r.CountBySeverity(sev), sev)
			}
			assert.Equal(t, uint64(1), r.Revision)
		})
	}
}

func TestValidateMaraReportsCorrectableViolation(t *testing.T) {
	e := seededEngine(t)
	r, err := e.ValidateContentConsistency(context.Background(), maraRequest().Payload, "scene", "pilot", content.TabScript)
	require.NoError(t, err)

	require.Len(t, r.Violations, 1)
	assert.True(t, r.Violations[0].AutoCorrectible)
	assert.LessOrEqual(t, r.OverallScore, 0.80)
	assert.NotEmpty(t, r.Warnings)
	require.Len(t, r.Corrections, 1)
	assert.Equal(t, r.Violations[0].ID, r.Corrections[0].ViolationID)
	assert.Equal(t, "grieving", r.Corrections[0].CorrectedContent)
}

func TestValidateDoesNotMutateUniverse(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()
	before, err := e.Universe(ctx, "pilot")
	require.NoError(t, err)

	_, err = e.ValidateContentConsistency(ctx, maraRequest().Payload, "scene", "pilot", "")
	require.NoError(t, err)

	after, err := e.Universe(ctx, "pilot")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestValidateRejectsTabMismatch(t *testing.T) {
	e := seededEngine(t)
	_, err := e.ValidateContentConsistency(context.Background(), maraRequest().Payload, "scene", "pilot", content.TabOutline)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = e.ValidateContentConsistency(context.Background(), nil, "scene", "pilot", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValidateIsIdempotent(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	first, err := e.ValidateContentConsistency(ctx, maraRequest().Payload, "scene", "pilot", "")
	require.NoError(t, err)
	second, err := e.ValidateContentConsistency(ctx, maraRequest().Payload, "scene", "pilot", "")
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, a, b)

	hits, misses, size := e.CacheStats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 1, size)
}

func TestCacheFollowsUniverseRevision(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()
	p := maraRequest().Payload

	r, err := e.ValidateContentConsistency(ctx, p, "scene", "pilot", "")
	require.NoError(t, err)
	require.False(t, r.IsValid)

	// Accept a scene that motivates the change, then revalidate the original.
	e.UpdateUniverseWithContent(ctx, scriptWith([]content.CharacterMention{{
		Name: "Mara", EmotionalState: "euphoric", Arc: &content.ArcBeat{Event: "finds Theo alive"},
	}}, content.LocationMention{}), "scene", "pilot", content.TabScript)

	r, err = e.ValidateContentConsistency(ctx, p, "scene", "pilot", "")
	require.NoError(t, err)
	assert.True(t, r.IsValid)
	assert.Empty(t, r.Violations)
	assert.Equal(t, uint64(2), r.Revision)
}

func TestSetPolicyPurgesCache(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	r, err := e.ValidateContentConsistency(ctx, maraRequest().Payload, "scene", "pilot", "")
	require.NoError(t, err)
	require.False(t, r.IsValid)

	lenient := DefaultPolicy()
	lenient.ValidThreshold = 0.75
	e.SetPolicy(lenient)
	_, _, size := e.CacheStats()
	assert.Zero(t, size)
	assert.InDelta(t, 0.75, e.Policy().ValidThreshold, 1e-9)

	r, err = e.ValidateContentConsistency(ctx, maraRequest().Payload, "scene", "pilot", "")
	require.NoError(t, err)
	assert.True(t, r.IsValid)
}

func TestCacheDisabled(t *testing.T) {
	e := seededEngine(t, WithCache(-1, 0))
	for range 2 {
		_, err := e.ValidateContentConsistency(context.Background(), maraRequest().Payload, "scene", "pilot", "")
		require.NoError(t, err)
	}
	hits, misses, size := e.CacheStats()
	assert.Zero(t, hits+misses)
	assert.Zero(t, size)
}

func TestUpdateUniverseWithContent(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	e.UpdateUniverseWithContent(ctx, scriptWith(
		[]content.CharacterMention{{Name: "Mara", EmotionalState: "hopeful", Arc: &content.ArcBeat{Event: "reads the letters"}}},
		content.LocationMention{Name: "Lighthouse"},
	), "scene", "pilot", "")

	u, err := e.Universe(ctx, "pilot")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), u.Revision)
	assert.Equal(t, "hopeful", u.Characters["mara"].CurrentState.EmotionalState)
	assert.Equal(t, 3, u.WorldState.Locations["lighthouse"].Appearances)
}

func TestUnattributedChangeIsNotEstablished(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	e.UpdateUniverseWithContent(ctx, scriptWith(
		[]content.CharacterMention{{Name: "Mara", EmotionalState: "euphoric"}},
		content.LocationMention{},
	), "scene", "pilot", content.TabScript)

	u, err := e.Universe(ctx, "pilot")
	require.NoError(t, err)
	mara := u.Characters["mara"]
	assert.Equal(t, "grieving", mara.CurrentState.EmotionalState)
	require.Len(t, mara.ArcProgression, 1)
	assert.False(t, mara.ArcProgression[0].Attributed)
	assert.Equal(t, "euphoric", mara.ArcProgression[0].Observed)

	// sad follows from grieving, the state still established.
	r, err := e.ValidateContentConsistency(ctx, scriptWith(
		[]content.CharacterMention{{Name: "Mara", EmotionalState: "sad"}},
		content.LocationMention{},
	), "scene", "pilot", content.TabScript)
	require.NoError(t, err)
	assert.True(t, r.IsValid)
	assert.Empty(t, r.Violations)
	assert.InDelta(t, 0.98, r.OverallScore, 1e-9)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], `from "grieving" to "sad"`)
}

func TestUpdateUniverseRejectsTabMismatchSilently(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	e.UpdateUniverseWithContent(ctx, maraRequest().Payload, "scene", "pilot", content.TabCasting)
	e.UpdateUniverseWithContent(ctx, maraRequest().Payload, "scene", "", "")

	u, err := e.Universe(ctx, "pilot")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), u.Revision)
}

func TestApplyConsistencyCorrections(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()
	p := scriptWith(
		[]content.CharacterMention{{Name: "Mara", EmotionalState: "euphoric"}},
		content.LocationMention{Name: "Lighthouse", Description: "freshly painted"},
	)

	r, err := e.ValidateContentConsistency(ctx, p, "scene", "pilot", "")
	require.NoError(t, err)
	require.Len(t, r.Corrections, 2)

	fixed, err := e.ApplyConsistencyCorrections(p, r.Corrections)
	require.NoError(t, err)
	s := fixed.(*content.Script)
	assert.Equal(t, "abandoned, collapsing roof", s.Scenes[0].Location.Description)
	assert.Equal(t, "euphoric", s.Scenes[0].Characters[0].EmotionalState, "below-threshold corrections stay manual")
	assert.Equal(t, "freshly painted", p.Scenes[0].Location.Description)

	again, err := e.ValidateContentConsistency(ctx, fixed, "scene", "pilot", "")
	require.NoError(t, err)
	assert.Equal(t, 1, again.CountBySeverity(narrative.SeverityMajor), "only the emotional jump remains")

	_, err = e.ApplyConsistencyCorrections(nil, r.Corrections)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRollbackNeedsVersionedBackend(t *testing.T) {
	e := seededEngine(t)
	_, err := e.Versions(context.Background(), "pilot", 10)
	assert.ErrorIs(t, err, universe.ErrVersioningUnsupported)
	_, err = e.Rollback(context.Background(), "pilot", "v1")
	assert.ErrorIs(t, err, universe.ErrVersioningUnsupported)
}
