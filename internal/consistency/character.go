package consistency

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
)

// CharacterValidator checks emotional and physical continuity, dialogue voice
// and relationships against stored character state, falling back to the story
// bible for characters the universe has not seen yet.
type CharacterValidator struct{}

func (CharacterValidator) Dimension() narrative.Dimension { return narrative.DimensionCharacter }

func (v CharacterValidator) Validate(in Input) Findings {
	f := newFinding(in, v.Dimension())
	for _, m := range in.Extraction.Characters {
		c, ok := in.Universe.Character(m.Name)
		if !ok {
			newCharacter(f, m)
			continue
		}
		emotion(f, c, m)
		physical(f, c, m)
		voice(f, m.Name, c.Profile.Voice, m.Dialogue)
		relationships(f, c, m)
	}
	return f.out
}

func emotion(f *finding, c *narrative.CharacterState, m content.CharacterMention) {
	prev, next := c.CurrentState.EmotionalState, m.EmotionalState
	if prev == "" || next == "" || narrative.Key(prev) == narrative.Key(next) || m.Arc != nil {
		return
	}
	f.warn(fmt.Sprintf("%s moves from %q to %q without an arc point establishing the change", m.Name, prev, next))
	if f.in.Policy.Compatible(prev, next) {
		return
	}
	f.add(narrative.Violation{
		Severity:        narrative.SeverityMajor,
		Description:     fmt.Sprintf("%s is %s, but was last established as %s", m.Name, next, prev),
		Entity:          m.Name,
		Field:           content.FieldEmotionalState,
		Observed:        next,
		Expected:        prev,
		ConflictsWith:   c.LastSeen,
		SuggestedFix:    fmt.Sprintf("keep %s %s, or add an arc beat that motivates the change to %s", m.Name, prev, next),
		AutoCorrectible: true,
	})
}

func physical(f *finding, c *narrative.CharacterState, m content.CharacterMention) {
	prev, next := c.CurrentState.PhysicalState, m.PhysicalState
	if prev == "" || next == "" || sameText(prev, next) || m.Arc != nil {
		return
	}
	f.add(narrative.Violation{
		Severity:        narrative.SeverityMinor,
		Description:     fmt.Sprintf("%s is physically %s, but was last %s", m.Name, next, prev),
		Entity:          m.Name,
		Field:           content.FieldPhysicalState,
		Observed:        next,
		Expected:        prev,
		ConflictsWith:   c.LastSeen,
		SuggestedFix:    fmt.Sprintf("show how %s went from %s to %s, or keep %s", m.Name, prev, next, prev),
		AutoCorrectible: true,
	})
}

// voice checks dialogue against the rules of each descriptor in the voice.
func voice(f *finding, name, descriptor string, dialogue []string) {
	if descriptor == "" || len(dialogue) == 0 {
		return
	}
	words := 0
	for _, line := range dialogue {
		words += len(strings.Fields(line))
	}
	avg := float64(words) / float64(len(dialogue))

	for _, nr := range f.in.Policy.voiceRules(descriptor) {
		var problem string
		switch {
		case nr.rule.MaxAvgWords > 0 && avg > nr.rule.MaxAvgWords:
			problem = fmt.Sprintf("averages %.1f words per line", avg)
		case nr.rule.MinAvgWords > 0 && avg < nr.rule.MinAvgWords:
			problem = fmt.Sprintf("averages only %.1f words per line", avg)
		default:
			if marker, found := forbidden(dialogue, nr.rule.Forbid); found {
				problem = fmt.Sprintf("uses %q", marker)
			}
		}
		if problem == "" {
			continue
		}
		f.add(narrative.Violation{
			Severity:     narrative.SeverityMinor,
			Description:  fmt.Sprintf("%s's dialogue %s, inconsistent with a %s voice", name, problem, nr.name),
			Entity:       name,
			Field:        "voice",
			Observed:     strings.Join(dialogue, " / "),
			Expected:     descriptor,
			SuggestedFix: fmt.Sprintf("rewrite %s's lines in a %s voice", name, nr.name),
		})
	}
}

func forbidden(dialogue, markers []string) (string, bool) {
	for _, line := range dialogue {
		lower := strings.ToLower(line)
		for _, m := range markers {
			if strings.Contains(lower, strings.ToLower(m)) {
				return m, true
			}
		}
	}
	return "", false
}

func relationships(f *finding, c *narrative.CharacterState, m content.CharacterMention) {
	if m.Arc != nil {
		return
	}
	others := make([]string, 0, len(m.Relationships))
	for other := range m.Relationships {
		others = append(others, other)
	}
	slices.Sort(others)

	for _, other := range others {
		status := m.Relationships[other]
		r, ok := c.Relationships[narrative.Key(other)]
		if !ok || status == "" || sameText(r.Status, status) {
			continue
		}
		desc := fmt.Sprintf("%s is %s with %s, but their relationship was %s", m.Name, status, other, r.Status)
		if r.Since > 0 {
			desc += fmt.Sprintf(" since episode %d", r.Since)
		}
		f.add(narrative.Violation{
			Severity:        narrative.SeverityMajor,
			Description:     desc,
			Entity:          m.Name,
			Field:           content.RelationshipField(other),
			Observed:        status,
			Expected:        r.Status,
			ConflictsWith:   c.LastSeen,
			SuggestedFix:    fmt.Sprintf("restore %s and %s as %s, or dramatise the change", m.Name, other, r.Status),
			AutoCorrectible: true,
		})
	}
}

// newCharacter checks a first appearance against the story bible only. It never
// reports anything above minor.
func newCharacter(f *finding, m content.CharacterMention) {
	b, ok := f.in.Bible.Character(m.Name)
	if !ok {
		if f.in.Bible.HasCharacters() {
			f.add(narrative.Violation{
				Severity:     narrative.SeveritySuggestion,
				Description:  fmt.Sprintf("%s does not appear in the story bible", m.Name),
				Entity:       m.Name,
				Field:        "name",
				Observed:     m.Name,
				SuggestedFix: fmt.Sprintf("add %s to the story bible, or check the spelling", m.Name),
			})
		}
		return
	}
	if b.BaselineEmotion != "" && m.EmotionalState != "" && m.Arc == nil &&
		!f.in.Policy.Compatible(b.BaselineEmotion, m.EmotionalState) {
		f.add(narrative.Violation{
			Severity:        narrative.SeverityMinor,
			Description:     fmt.Sprintf("%s first appears %s, far from the bible baseline of %s", m.Name, m.EmotionalState, b.BaselineEmotion),
			Entity:          m.Name,
			Field:           content.FieldEmotionalState,
			Observed:        m.EmotionalState,
			Expected:        b.BaselineEmotion,
			ConflictsWith:   narrative.ContentRef{TabType: "story_bible", Excerpt: b.BaselineEmotion},
			SuggestedFix:    fmt.Sprintf("introduce %s as %s, or motivate the difference", m.Name, b.BaselineEmotion),
			AutoCorrectible: true,
		})
	}
	voice(f, m.Name, b.Voice, m.Dialogue)
}
