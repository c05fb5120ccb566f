package consistency

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/observability"
)

// GenerateCorrections proposes one correction per auto-correctible violation.
// Confidence depends on how firmly the contradicted fact is established.
func GenerateCorrections(in Input, violations []narrative.Violation) []narrative.Correction {
	var out []narrative.Correction
	for _, v := range violations {
		if !v.AutoCorrectible || v.Expected == "" {
			continue
		}
		conf := confidence(in, v)
		if v.Type == narrative.DimensionTheme {
			conf = min(conf, in.Policy.ThemeConfidenceCap)
		}
		kind := narrative.CorrectionSuggested
		if conf > in.Policy.AutomaticThreshold {
			kind = narrative.CorrectionAutomatic
		}
		out = append(out, narrative.Correction{
			ID:               correctionID(v.ID, v.Expected),
			ViolationID:      v.ID,
			Dimension:        v.Type,
			Entity:           v.Entity,
			Field:            v.Field,
			OriginalContent:  v.Observed,
			CorrectedContent: v.Expected,
			Explanation:      explain(v),
			Confidence:       conf,
			CorrectionType:   kind,
		})
	}
	return out
}

func explain(v narrative.Violation) string {
	return fmt.Sprintf("replace %q with %q: %s", v.Observed, v.Expected, v.Description)
}

func confidence(in Input, v narrative.Violation) float64 {
	u := in.Universe
	switch v.Type {
	case narrative.DimensionCharacter:
		c, ok := u.Character(v.Entity)
		if !ok {
			// Only the story bible backs the expected value.
			return 0.6
		}
		switch {
		case v.Field == content.FieldEmotionalState:
			if est := c.EstablishedEmotion(); est != "" && narrative.Key(est) == narrative.Key(c.CurrentState.EmotionalState) {
				return 0.9
			}
			return 0.75
		case strings.HasPrefix(v.Field, content.FieldRelationshipPrefix):
			other := strings.TrimPrefix(v.Field, content.FieldRelationshipPrefix)
			if r, ok := c.Relationships[narrative.Key(other)]; ok && r.Since > 0 {
				return 0.85
			}
			return 0.7
		}
		return 0.7
	case narrative.DimensionWorld:
		w := u.WorldState
		appearances := 0
		switch v.Field {
		case content.FieldLocationDescription, content.FieldLocationStatus:
			if l, ok := w.Locations[narrative.Key(v.Entity)]; ok {
				appearances = l.Appearances
			}
		case content.FieldObjectDescription, content.FieldObjectStatus:
			if o, ok := w.Objects[narrative.Key(v.Entity)]; ok {
				appearances = o.Appearances
			}
		case content.FieldRuleStatement:
			if r, ok := w.Rules[narrative.Key(v.Entity)]; ok {
				appearances = r.Appearances
			}
		}
		if appearances >= 2 {
			return 0.9
		}
		return 0.8
	case narrative.DimensionPlot:
		if v.Field == content.FieldThreadID {
			return min(similarity(v.Observed, v.Expected), 0.95)
		}
		return 0.7
	case narrative.DimensionTheme:
		return similarity(v.Observed, v.Expected)
	}
	return 0.5
}

// Applier applies automatic corrections to content.
type Applier struct {
	policy  func() Policy
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewApplier(policy func() Policy, obs observability.Observer) *Applier {
	return &Applier{policy: policy, logger: obs.Component("corrections"), metrics: obs.Metrics}
}

// Apply returns a corrected copy of p. Only automatic corrections above the
// threshold are applied, in order. A correction that fails is logged and
// skipped; the rest still apply. p itself is never modified.
func (a *Applier) Apply(p content.Payload, corrections []narrative.Correction) content.Payload {
	threshold := a.policy().AutomaticThreshold
	out := p.Clone()
	for _, c := range corrections {
		if c.CorrectionType != narrative.CorrectionAutomatic || c.Confidence <= threshold {
			a.metrics.Correction("skipped")
			continue
		}
		if err := applyOne(out, c); err != nil {
			a.metrics.Correction("failed")
			a.logger.Warn("correction skipped", "correction_id", c.ID, "entity", c.Entity, "field", c.Field, "error", err)
			continue
		}
		a.metrics.Correction("applied")
	}
	return out
}

func applyOne(p content.Payload, c narrative.Correction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("applying correction panicked: %v", r)
		}
	}()
	return p.ApplyEdit(content.Edit{
		Entity:    c.Entity,
		Field:     c.Field,
		Original:  c.OriginalContent,
		Corrected: c.CorrectedContent,
	})
}
