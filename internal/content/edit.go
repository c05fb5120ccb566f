package content

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEditTarget is returned when an edit matches nothing in a payload.
var ErrEditTarget = errors.New("edit target not found")

// Edit fields understood by ApplyEdit.
const (
	FieldEmotionalState      = "emotional_state"
	FieldPhysicalState       = "physical_state"
	FieldRelationshipPrefix  = "relationship."
	FieldLocationDescription = "location.description"
	FieldLocationStatus      = "location.status"
	FieldObjectDescription   = "object.description"
	FieldObjectStatus        = "object.status"
	FieldRuleStatement       = "rule.statement"
	FieldThreadID            = "thread.id"
	FieldThreadStatus        = "thread.status"
	FieldTheme               = "theme"
)

// RelationshipField builds the edit field for a character's relation to other.
func RelationshipField(other string) string {
	return FieldRelationshipPrefix + other
}

// Edit replaces Original with Corrected in one field of every mention of Entity.
// Mentions whose current value is not Original are left alone.
type Edit struct {
	Entity    string
	Field     string
	Original  string
	Corrected string
}

func (e Edit) matches(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(e.Entity))
}

func swap(dst *string, e Edit) int {
	if *dst != e.Original {
		return 0
	}
	*dst = e.Corrected
	return 1
}

func editCharacters(ms []CharacterMention, e Edit) int {
	n := 0
	for i := range ms {
		m := &ms[i]
		if !e.matches(m.Name) {
			continue
		}
		switch {
		case e.Field == FieldEmotionalState:
			n += swap(&m.EmotionalState, e)
		case e.Field == FieldPhysicalState:
			n += swap(&m.PhysicalState, e)
		case strings.HasPrefix(e.Field, FieldRelationshipPrefix):
			other := strings.TrimPrefix(e.Field, FieldRelationshipPrefix)
			for k, v := range m.Relationships {
				if strings.EqualFold(k, other) && v == e.Original {
					m.Relationships[k] = e.Corrected
					n++
				}
			}
		}
	}
	return n
}

func editLocation(m *LocationMention, e Edit) int {
	if !e.matches(m.Name) {
		return 0
	}
	switch e.Field {
	case FieldLocationDescription:
		return swap(&m.Description, e)
	case FieldLocationStatus:
		return swap(&m.Status, e)
	}
	return 0
}

func editObjects(ms []ObjectMention, e Edit) int {
	n := 0
	for i := range ms {
		if !e.matches(ms[i].Name) {
			continue
		}
		switch e.Field {
		case FieldObjectDescription:
			n += swap(&ms[i].Description, e)
		case FieldObjectStatus:
			n += swap(&ms[i].Status, e)
		}
	}
	return n
}

func editRules(ms []RuleMention, e Edit) int {
	n := 0
	for i := range ms {
		if e.Field == FieldRuleStatement && e.matches(ms[i].Name) {
			n += swap(&ms[i].Statement, e)
		}
	}
	return n
}

func editBeats(bs []PlotBeat, e Edit) int {
	n := 0
	for i := range bs {
		b := &bs[i]
		switch e.Field {
		case FieldThreadID:
			if b.ThreadID == e.Entity {
				n += swap(&b.ThreadID, e)
			}
		case FieldThreadStatus:
			if b.ThreadID == e.Entity {
				n += swap(&b.Status, e)
			}
		}
	}
	return n
}

func editThemes(ts []ThemeMention, e Edit) int {
	if e.Field != FieldTheme {
		return 0
	}
	n := 0
	for i := range ts {
		n += swap(&ts[i].Theme, e)
	}
	return n
}

func result(tab TabType, n int, e Edit) error {
	if n == 0 {
		return fmt.Errorf("%w: %s %s %q in %s content", ErrEditTarget, e.Entity, e.Field, e.Original, tab)
	}
	return nil
}

func (s *Script) ApplyEdit(e Edit) error {
	n := 0
	for i := range s.Scenes {
		sc := &s.Scenes[i]
		n += editLocation(&sc.Location, e)
		n += editCharacters(sc.Characters, e)
		n += editObjects(sc.Objects, e)
		n += editRules(sc.Rules, e)
		n += editBeats(sc.Beats, e)
		n += editThemes(sc.Themes, e)
	}
	return result(s.TabType(), n, e)
}

func (c *Casting) ApplyEdit(e Edit) error {
	n := 0
	for i := range c.Roles {
		r := &c.Roles[i]
		if !e.matches(r.Character) {
			continue
		}
		switch {
		case e.Field == FieldEmotionalState:
			n += swap(&r.EmotionalState, e)
		case strings.HasPrefix(e.Field, FieldRelationshipPrefix):
			other := strings.TrimPrefix(e.Field, FieldRelationshipPrefix)
			for k, v := range r.Relationships {
				if strings.EqualFold(k, other) && v == e.Original {
					r.Relationships[k] = e.Corrected
					n++
				}
			}
		}
	}
	return result(c.TabType(), n, e)
}

func (s *Storyboard) ApplyEdit(e Edit) error {
	n := 0
	for i := range s.Panels {
		p := &s.Panels[i]
		n += editLocation(&p.Location, e)
		n += editCharacters(p.Characters, e)
		n += editObjects(p.Objects, e)
	}
	return result(s.TabType(), n, e)
}

// ApplyEdit always fails: a schedule only names entities, it states nothing to correct.
func (s *Schedule) ApplyEdit(e Edit) error {
	return result(s.TabType(), 0, e)
}

func (w *Worldbuilding) ApplyEdit(e Edit) error {
	n := 0
	for i := range w.Locations {
		n += editLocation(&w.Locations[i], e)
	}
	n += editObjects(w.Objects, e)
	n += editRules(w.Rules, e)
	return result(w.TabType(), n, e)
}

func (o *Outline) ApplyEdit(e Edit) error {
	n := editBeats(o.Beats, e) + editThemes(o.Themes, e)
	if e.Field == FieldTheme && o.PrimaryTheme == e.Original {
		o.PrimaryTheme = e.Corrected
		n++
	}
	return result(o.TabType(), n, e)
}
