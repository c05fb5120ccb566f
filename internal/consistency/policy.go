package consistency

import (
	"math"
	"slices"
	"strings"

	"github.com/dotcommander/continuity/internal/narrative"
)

// SeverityWeights is the score deducted per violation of each severity.
type SeverityWeights struct {
	Critical   float64 `yaml:"critical" json:"critical" validate:"gte=0,lte=1"`
	Major      float64 `yaml:"major" json:"major" validate:"gte=0,lte=1"`
	Minor      float64 `yaml:"minor" json:"minor" validate:"gte=0,lte=1"`
	Suggestion float64 `yaml:"suggestion" json:"suggestion" validate:"gte=0,lte=1"`
}

func (w SeverityWeights) of(s narrative.Severity) float64 {
	switch s {
	case narrative.SeverityCritical:
		return w.Critical
	case narrative.SeverityMajor:
		return w.Major
	case narrative.SeverityMinor:
		return w.Minor
	case narrative.SeveritySuggestion:
		return w.Suggestion
	}
	return 0
}

// VoiceRule is a heuristic for one voice descriptor. Dialogue breaking the rule
// is reported as a minor voice inconsistency.
type VoiceRule struct {
	MaxAvgWords float64  `yaml:"max_avg_words" json:"max_avg_words,omitempty" validate:"gte=0"`
	MinAvgWords float64  `yaml:"min_avg_words" json:"min_avg_words,omitempty" validate:"gte=0"`
	Forbid      []string `yaml:"forbid" json:"forbid,omitempty"`
}

// Policy is the acceptance policy of the engine. Every value is tunable.
type Policy struct {
	Weights            SeverityWeights `yaml:"weights" json:"weights"`
	WarningPenalty     float64         `yaml:"warning_penalty" json:"warning_penalty" validate:"gte=0,lte=1"`
	ValidThreshold     float64         `yaml:"valid_threshold" json:"valid_threshold" validate:"gte=0,lte=1"`
	AutomaticThreshold float64         `yaml:"automatic_threshold" json:"automatic_threshold" validate:"gte=0,lte=1"`
	ThemeConfidenceCap float64         `yaml:"theme_confidence_cap" json:"theme_confidence_cap" validate:"gte=0,lte=1"`
	NearMatch          float64         `yaml:"near_match" json:"near_match" validate:"gt=0,lte=1"`
	DegradedScore      float64         `yaml:"degraded_score" json:"degraded_score" validate:"gte=0,lte=1"`

	// EmotionalTransitions maps a prior emotional state to the states it may
	// move to without an arc beat. States missing from the table are unconstrained.
	EmotionalTransitions map[string][]string  `yaml:"emotional_transitions" json:"emotional_transitions,omitempty"`
	VoiceRules           map[string]VoiceRule `yaml:"voice_rules" json:"voice_rules,omitempty" validate:"dive"`
}

// DefaultPolicy returns the stock acceptance policy.
func DefaultPolicy() Policy {
	return Policy{
		Weights: SeverityWeights{
			Critical:   0.30,
			Major:      0.20,
			Minor:      0.10,
			Suggestion: 0.05,
		},
		WarningPenalty:       0.02,
		ValidThreshold:       0.80,
		AutomaticThreshold:   0.80,
		ThemeConfidenceCap:   0.60,
		NearMatch:            0.75,
		DegradedScore:        0.70,
		EmotionalTransitions: DefaultEmotionalTransitions(),
		VoiceRules:           DefaultVoiceRules(),
	}
}

// DefaultEmotionalTransitions is a starting table; productions are expected to
// replace it with their own.
func DefaultEmotionalTransitions() map[string][]string {
	return map[string][]string{
		"grieving":   {"sad", "numb", "angry", "withdrawn", "reflective", "hopeful", "determined"},
		"sad":        {"grieving", "numb", "withdrawn", "reflective", "hopeful", "calm"},
		"angry":      {"furious", "resentful", "determined", "guilty", "calm", "sad"},
		"afraid":     {"anxious", "panicked", "relieved", "determined", "angry"},
		"anxious":    {"afraid", "relieved", "calm", "determined", "panicked"},
		"calm":       {"anxious", "content", "hopeful", "reflective", "sad", "angry"},
		"hopeful":    {"determined", "happy", "anxious", "disappointed", "calm"},
		"happy":      {"content", "euphoric", "hopeful", "calm", "disappointed", "surprised"},
		"euphoric":   {"happy", "content", "exhausted", "hopeful"},
		"determined": {"hopeful", "angry", "exhausted", "triumphant", "anxious"},
	}
}

// DefaultVoiceRules maps common voice descriptors to dialogue heuristics.
func DefaultVoiceRules() map[string]VoiceRule {
	return map[string]VoiceRule{
		"terse":   {MaxAvgWords: 8},
		"laconic": {MaxAvgWords: 8},
		"verbose": {MinAvgWords: 15},
		"formal":  {Forbid: []string{"n't", "'re", "'ll", "'ve", "'m", "gonna", "wanna", "yeah"}},
	}
}

// Compatible reports whether a character may move from prev to next without
// an explicit arc beat.
func (p Policy) Compatible(prev, next string) bool {
	if narrative.Key(prev) == narrative.Key(next) {
		return true
	}
	allowed, ok := p.EmotionalTransitions[narrative.Key(prev)]
	if !ok {
		for k, v := range p.EmotionalTransitions {
			if narrative.Key(k) == narrative.Key(prev) {
				allowed, ok = v, true
				break
			}
		}
	}
	if !ok {
		return true
	}
	return slices.ContainsFunc(allowed, func(s string) bool {
		return narrative.Key(s) == narrative.Key(next)
	})
}

// voiceRules returns the rules for every descriptor word in voice, in order.
func (p Policy) voiceRules(voice string) []namedRule {
	var out []namedRule
	for _, word := range strings.FieldsFunc(strings.ToLower(voice), func(r rune) bool {
		return r == ',' || r == ' ' || r == ';' || r == '/'
	}) {
		if rule, ok := p.VoiceRules[word]; ok {
			out = append(out, namedRule{name: word, rule: rule})
		}
	}
	return out
}

type namedRule struct {
	name string
	rule VoiceRule
}

// basisPoints converts a fraction to integer ten-thousandths so scoring is exact.
func basisPoints(f float64) int {
	return int(math.Round(f * 10000))
}
