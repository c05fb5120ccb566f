package consistency

import (
	"fmt"

	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
)

// WorldValidator compares stated locations, objects and rules with the stored
// world. Mentions flagged as deliberate changes are not compared.
type WorldValidator struct{}

func (WorldValidator) Dimension() narrative.Dimension { return narrative.DimensionWorld }

func (v WorldValidator) Validate(in Input) Findings {
	f := newFinding(in, v.Dimension())
	w := in.Universe.WorldState

	for _, m := range in.Extraction.Locations {
		if m.Changed {
			continue
		}
		l, ok := w.Locations[narrative.Key(m.Name)]
		if !ok {
			bibleLocation(f, m)
			continue
		}
		compareAttribute(f, "location", m.Name, content.FieldLocationDescription, "described as", m.Description, l.Description, l.LastSeen)
		compareAttribute(f, "location", m.Name, content.FieldLocationStatus, "in state", m.Status, l.Status, l.LastSeen)
	}

	for _, m := range in.Extraction.Objects {
		if m.Changed {
			continue
		}
		o, ok := w.Objects[narrative.Key(m.Name)]
		if !ok {
			continue
		}
		compareAttribute(f, "object", m.Name, content.FieldObjectDescription, "described as", m.Description, o.Description, o.LastSeen)
		compareAttribute(f, "object", m.Name, content.FieldObjectStatus, "in state", m.Status, o.Status, o.LastSeen)
	}

	for _, m := range in.Extraction.Rules {
		if m.Changed {
			continue
		}
		r, ok := w.Rules[narrative.Key(m.Name)]
		if !ok {
			continue
		}
		compareAttribute(f, "world rule", m.Name, content.FieldRuleStatement, "stated as", m.Statement, r.Statement, r.LastSeen)
	}
	return f.out
}

func compareAttribute(f *finding, kind, name, field, verb, stated, stored string, last narrative.ContentRef) {
	if stated == "" || stored == "" || sameText(stated, stored) {
		return
	}
	f.add(narrative.Violation{
		Severity:        narrative.SeverityMajor,
		Description:     fmt.Sprintf("%s %s is %s %q, but was established as %q", kind, name, verb, stated, stored),
		Entity:          name,
		Field:           field,
		Observed:        stated,
		Expected:        stored,
		ConflictsWith:   last,
		SuggestedFix:    fmt.Sprintf("use the established %s of %s, or mark the change as deliberate", field, name),
		AutoCorrectible: true,
	})
}

// bibleLocation checks a location the universe has not seen against the story bible.
func bibleLocation(f *finding, m content.LocationMention) {
	if f.in.Bible == nil || m.Description == "" {
		return
	}
	for name, desc := range f.in.Bible.Locations {
		if narrative.Key(name) != narrative.Key(m.Name) || desc == "" || sameText(desc, m.Description) {
			continue
		}
		f.add(narrative.Violation{
			Severity:      narrative.SeverityMinor,
			Description:   fmt.Sprintf("location %s is described as %q, but the story bible has %q", m.Name, m.Description, desc),
			Entity:        m.Name,
			Field:         content.FieldLocationDescription,
			Observed:      m.Description,
			Expected:      desc,
			ConflictsWith: narrative.ContentRef{TabType: "story_bible", Excerpt: desc},
			SuggestedFix:  fmt.Sprintf("align %s with the story bible", m.Name),
		})
		return
	}
}
