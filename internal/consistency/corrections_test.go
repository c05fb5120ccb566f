package consistency

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/observability"
)

func corrected(t *testing.T, u *narrative.NarrativeUniverse, p content.Payload) []narrative.Correction {
	t.Helper()
	in := input(u, p)
	var violations []narrative.Violation
	for _, v := range DefaultValidators() {
		violations = append(violations, v.Validate(in).Violations...)
	}
	return GenerateCorrections(in, violations)
}

func TestGenerateCorrectionsConfidence(t *testing.T) {
	established := maraUniverse()
	established.Characters["mara"].ArcProgression = []narrative.ArcPoint{{Episode: 1, Event: "funeral", ResultingState: "grieving", Attributed: true}}

	themed := maraUniverse()
	themed.ThematicFramework.PrimaryTheme = "redemption"

	tests := []struct {
		name     string
		universe *narrative.NarrativeUniverse
		payload  content.Payload
		want     float64
		kind     narrative.CorrectionType
	}{
		{
			name:     "emotion without arc history",
			universe: maraUniverse(),
			payload:  scriptWith([]content.CharacterMention{{Name: "Mara", EmotionalState: "euphoric"}}, content.LocationMention{}),
			want:     0.75,
			kind:     narrative.CorrectionSuggested,
		},
		{
			name:     "emotion backed by an arc point",
			universe: established,
			payload:  scriptWith([]content.CharacterMention{{Name: "Mara", EmotionalState: "euphoric"}}, content.LocationMention{}),
			want:     0.9,
			kind:     narrative.CorrectionAutomatic,
		},
		{
			name:     "relationship with history",
			universe: maraUniverse(),
			payload:  scriptWith([]content.CharacterMention{{Name: "Mara", Relationships: map[string]string{"Theo": "devoted"}}}, content.LocationMention{}),
			want:     0.85,
			kind:     narrative.CorrectionAutomatic,
		},
		{
			name:     "well established location",
			universe: maraUniverse(),
			payload:  scriptWith(nil, content.LocationMention{Name: "Lighthouse", Description: "freshly painted"}),
			want:     0.9,
			kind:     narrative.CorrectionAutomatic,
		},
		{
			name:     "object seen once",
			universe: maraUniverse(),
			payload:  &content.Worldbuilding{Objects: []content.ObjectMention{{Name: "Brass key", Status: "found"}}},
			want:     0.8,
			kind:     narrative.CorrectionSuggested,
		},
		{
			name:     "theme is capped",
			universe: themed,
			payload:  &content.Outline{Themes: []content.ThemeMention{{Theme: "redemptoin"}}},
			want:     0.6,
			kind:     narrative.CorrectionSuggested,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := corrected(t, tt.universe, tt.payload)
			require.Len(t, got, 1)
			assert.InDelta(t, tt.want, got[0].Confidence, 1e-9)
			assert.Equal(t, tt.kind, got[0].CorrectionType)
			assert.NotEmpty(t, got[0].ViolationID)
		})
	}
}

func TestGenerateCorrectionsSkipsManualViolations(t *testing.T) {
	in := input(maraUniverse(), &content.Outline{})
	got := GenerateCorrections(in, []narrative.Violation{
		{ID: "a", Severity: narrative.SeverityCritical, Observed: "heist-plan"},
		{ID: "b", Severity: narrative.SeverityMajor, AutoCorrectible: true},
	})
	assert.Empty(t, got)
}

func TestAutomaticIffAboveThreshold(t *testing.T) {
	u := maraUniverse()
	u.PlotContinuity.ActiveConflicts["heist-plan"] = &narrative.PlotThread{ID: "heist-plan", Status: narrative.ThreadActive}
	u.ThematicFramework.PrimaryTheme = "redemption"

	payloads := []content.Payload{
		scriptWith([]content.CharacterMention{{Name: "Mara", EmotionalState: "euphoric", PhysicalState: "healed",
			Relationships: map[string]string{"theo": "close"}}}, content.LocationMention{Name: "Lighthouse", Status: "restored"}),
		&content.Outline{
			Beats:  []content.PlotBeat{{Kind: content.BeatCallback, ThreadID: "heist-pan"}, {Kind: content.BeatCallback, ThreadID: "hiest-plna"}},
			Themes: []content.ThemeMention{{Theme: "redemptoin"}, {Theme: "redemtion"}},
		},
	}
	policy := DefaultPolicy()
	for _, p := range payloads {
		for _, c := range corrected(t, u, p) {
			assert.Equal(t, c.Confidence > policy.AutomaticThreshold, c.CorrectionType == narrative.CorrectionAutomatic, c.Explanation)
			if c.Dimension == narrative.DimensionTheme {
				assert.LessOrEqual(t, c.Confidence, policy.ThemeConfidenceCap)
			}
		}
	}
}

func newTestApplier(buf *bytes.Buffer) *Applier {
	obs := observability.Observer{Logger: slog.New(slog.NewTextHandler(buf, nil))}
	return NewApplier(DefaultPolicy, obs)
}

func TestApplierAppliesOnlyAutomatic(t *testing.T) {
	original := scriptWith(
		[]content.CharacterMention{{Name: "Mara", EmotionalState: "euphoric", Relationships: map[string]string{"Theo": "devoted"}}},
		content.LocationMention{Name: "Lighthouse", Description: "freshly painted"},
	)
	corrections := []narrative.Correction{
		{ID: "1", Entity: "Mara", Field: content.FieldEmotionalState, OriginalContent: "euphoric", CorrectedContent: "grieving",
			Confidence: 0.75, CorrectionType: narrative.CorrectionSuggested},
		{ID: "2", Entity: "Mara", Field: content.RelationshipField("theo"), OriginalContent: "devoted", CorrectedContent: "estranged",
			Confidence: 0.85, CorrectionType: narrative.CorrectionAutomatic},
		{ID: "3", Entity: "Lighthouse", Field: content.FieldLocationDescription, OriginalContent: "freshly painted",
			CorrectedContent: "abandoned, collapsing roof", Confidence: 0.9, CorrectionType: narrative.CorrectionAutomatic},
		{ID: "4", Entity: "Mara", Field: content.FieldPhysicalState, OriginalContent: "x", CorrectedContent: "y",
			Confidence: 0.8, CorrectionType: narrative.CorrectionAutomatic},
	}

	var buf bytes.Buffer
	got := newTestApplier(&buf).Apply(original, corrections).(*content.Script)

	sc := got.Scenes[0]
	assert.Equal(t, "euphoric", sc.Characters[0].EmotionalState, "suggested corrections are never applied")
	assert.Equal(t, "estranged", sc.Characters[0].Relationships["Theo"])
	assert.Equal(t, "abandoned, collapsing roof", sc.Location.Description)

	orig := original.Scenes[0]
	assert.Equal(t, "devoted", orig.Characters[0].Relationships["Theo"], "input must not be modified")
	assert.Equal(t, "freshly painted", orig.Location.Description)
	assert.Empty(t, buf.String(), "a correction at the threshold is skipped, not failed")
}

func TestApplierSkipsFailingCorrections(t *testing.T) {
	original := scriptWith(nil, content.LocationMention{Name: "Lighthouse", Description: "freshly painted"})
	corrections := []narrative.Correction{
		{ID: "missing", Entity: "Harbour", Field: content.FieldLocationDescription, OriginalContent: "busy",
			CorrectedContent: "quiet", Confidence: 0.95, CorrectionType: narrative.CorrectionAutomatic},
		{ID: "ok", Entity: "Lighthouse", Field: content.FieldLocationDescription, OriginalContent: "freshly painted",
			CorrectedContent: "abandoned", Confidence: 0.95, CorrectionType: narrative.CorrectionAutomatic},
	}

	var buf bytes.Buffer
	got := newTestApplier(&buf).Apply(original, corrections).(*content.Script)

	assert.Equal(t, "abandoned", got.Scenes[0].Location.Description)
	assert.Contains(t, buf.String(), "correction skipped")
	assert.Contains(t, buf.String(), "correction_id=missing")
}

func TestApplierRejectsUnknownPayloads(t *testing.T) {
	var buf bytes.Buffer
	p := &content.Unknown{Tab: "budget"}
	got := newTestApplier(&buf).Apply(p, []narrative.Correction{{
		ID: "x", Entity: "a", Field: content.FieldTheme, OriginalContent: "a", CorrectedContent: "b",
		Confidence: 0.99, CorrectionType: narrative.CorrectionAutomatic,
	}})
	assert.Equal(t, p, got)
	assert.NotSame(t, p, got)
	assert.Contains(t, buf.String(), "correction skipped")
}
